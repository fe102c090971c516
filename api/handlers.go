/*
handlers.go - HTTP API handlers for the stock ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, input validation, and delegates to domain logic.

ENDPOINTS:
  Transactions:
    GET    /api/transactions            Search/paginate the history
    POST   /api/transactions            Record a transaction
    GET    /api/transactions/unpaid     Unpaid import aggregate
    GET    /api/transactions/{id}       Get one transaction
    PUT    /api/transactions/{id}       Replace a transaction
    DELETE /api/transactions/{id}      Delete a transaction
    POST   /api/transactions/{id}/pay   Mark an import as paid

  Balances:
    GET    /api/balances                All material positions
    GET    /api/balances/{materialId}   One material position

  Reference data:
    GET    /api/materials               Catalog materials

  Reporting:
    GET    /api/export                  Download an xlsx report

  Admin:
    POST   /api/seed                    Load the demo dataset
    POST   /api/reset                   Wipe all data

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (go-playground/validator on the DTO)
  3. Call domain logic (service, query, payments)
  4. Serialize response
  5. Map domain errors to HTTP status

ERROR HANDLING:
  Errors are returned as an ErrorResponse with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Transaction or material not found
  - 409: Consistency violation or concurrent-edit conflict
  - 503: Storage temporarily unavailable
  - 500: Everything else

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public
  and intended to sit behind the clinic's internal network.

SEE ALSO:
  - dto.go: Request/response data structures
  - export.go: Spreadsheet report
  - seed.go: Demo data loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/medadmin/stock-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// RefStore is the write side of the reference catalog, used by the seed
// and reset endpoints. The sqlite store implements it.
type RefStore interface {
	SaveMaterial(ctx context.Context, m ledger.Material) error
	SaveCounterparty(ctx context.Context, c ledger.Counterparty) error
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for the API endpoints.
type Handler struct {
	Service    *ledger.Service
	Query      *ledger.Query
	Payments   *ledger.Payments
	Catalog    ledger.Catalog
	Aggregator *ledger.Aggregator
	Ref        RefStore // nil disables /api/seed and /api/reset
	Logger     *zap.Logger

	validate *validator.Validate
}

// NewHandler wires the endpoint dependencies. A nil logger falls back to
// a no-op logger so tests can construct handlers without one.
func NewHandler(svc *ledger.Service, q *ledger.Query, pay *ledger.Payments, catalog ledger.Catalog, agg *ledger.Aggregator, ref RefStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Service:    svc,
		Query:      q,
		Payments:   pay,
		Catalog:    catalog,
		Aggregator: agg,
		Ref:        ref,
		Logger:     logger,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates the ledger error taxonomy into HTTP. Unknown
// errors become opaque 500s so internals never leak to clients.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var resp ErrorResponse
	var status int

	var consistency *ledger.ConsistencyError
	var notFound *ledger.NotFoundError

	switch {
	case errors.As(err, &consistency):
		status = http.StatusConflict
		balance := consistency.BalanceAtFailure
		resp = ErrorResponse{
			Code:              "consistency_violation",
			Error:             consistency.Error(),
			MaterialID:        string(consistency.MaterialID),
			OffendingQuantity: consistency.OffendingQuantity,
			BalanceAtFailure:  &balance,
		}
	case errors.Is(err, ledger.ErrConflict):
		status = http.StatusConflict
		resp = ErrorResponse{Code: "conflict", Error: err.Error()}
	case errors.As(err, &notFound):
		status = http.StatusNotFound
		resp = ErrorResponse{Code: "not_found", Error: notFound.Error()}
	case errors.Is(err, ledger.ErrNotFound):
		status = http.StatusNotFound
		resp = ErrorResponse{Code: "not_found", Error: err.Error()}
	case errors.Is(err, ledger.ErrValidation):
		status = http.StatusBadRequest
		resp = ErrorResponse{Code: "validation_error", Error: err.Error()}
	case errors.Is(err, ledger.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
		resp = ErrorResponse{Code: "store_unavailable", Error: "storage temporarily unavailable, retry the request"}
	default:
		status = http.StatusInternalServerError
		resp = ErrorResponse{Code: "internal_error", Error: "internal server error"}
		h.Logger.Error("unhandled error",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}

	writeJSON(w, status, resp)
}

func (h *Handler) badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: "validation_error", Error: msg})
}

// decodeRequest parses and tag-validates a transaction body.
func (h *Handler) decodeRequest(r *http.Request) (TransactionRequest, error) {
	var req TransactionRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, &ledger.ValidationError{Field: "body", Reason: "malformed JSON: " + err.Error()}
	}
	if err := h.validate.Struct(req); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) && len(invalid) > 0 {
			f := invalid[0]
			return req, &ledger.ValidationError{
				Field:  strings.ToLower(f.Namespace()),
				Reason: "failed " + f.Tag() + " validation",
			}
		}
		return req, &ledger.ValidationError{Field: "body", Reason: err.Error()}
	}
	return req, nil
}

// =============================================================================
// TRANSACTION ENDPOINTS
// =============================================================================

// SearchTransactions handles GET /api/transactions.
//
// Query parameters: keyword, direction, from, to (YYYY-MM-DD, inclusive),
// page_index, page_size.
func (h *Handler) SearchTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := ledger.Filter{Keyword: strings.TrimSpace(q.Get("keyword"))}

	if raw := q.Get("direction"); raw != "" {
		d := ledger.Direction(raw)
		if !d.Valid() {
			h.badRequest(w, "direction must be IMPORT or EXPORT")
			return
		}
		filter.Direction = &d
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			h.badRequest(w, "from must be formatted as YYYY-MM-DD")
			return
		}
		filter.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			h.badRequest(w, "to must be formatted as YYYY-MM-DD")
			return
		}
		// Inclusive upper bound: cover the whole day.
		end := t.Add(24*time.Hour - time.Nanosecond)
		filter.To = &end
	}

	page := ledger.PageRequest{
		Index: intParam(q.Get("page_index"), 0),
		Size:  intParam(q.Get("page_size"), 0),
	}

	result, err := h.Query.Search(r.Context(), filter, page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(result))
}

// GetTransaction handles GET /api/transactions/{id}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := ledger.EntryID(chi.URLParam(r, "id"))
	view, err := h.Query.Entry(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(view))
}

// CreateTransaction handles POST /api/transactions.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entry, err := req.toEntry()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	created, err := h.Service.Create(r.Context(), entry)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	view, err := h.Query.Entry(r.Context(), created.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(view))
}

// UpdateTransaction handles PUT /api/transactions/{id}. The replacement
// is atomic: either every line is swapped or nothing changes.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := ledger.EntryID(chi.URLParam(r, "id"))

	req, err := h.decodeRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entry, err := req.toEntry()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	updated, err := h.Service.Update(r.Context(), id, entry)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	view, err := h.Query.Entry(r.Context(), updated.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(view))
}

// DeleteTransaction handles DELETE /api/transactions/{id}.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := ledger.EntryID(chi.URLParam(r, "id"))
	if err := h.Service.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// PAYMENT ENDPOINTS
// =============================================================================

// MarkPaid handles POST /api/transactions/{id}/pay. Marking an already
// paid import succeeds without change.
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	id := ledger.EntryID(chi.URLParam(r, "id"))
	if err := h.Payments.MarkPaid(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paid"})
}

// UnpaidStats handles GET /api/transactions/unpaid.
func (h *Handler) UnpaidStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Payments.UnpaidStats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UnpaidStatsDTO{
		Count:       stats.Count,
		TotalAmount: stats.TotalAmount.InexactFloat64(),
	})
}

// =============================================================================
// BALANCE ENDPOINTS
// =============================================================================

// ListBalances handles GET /api/balances. Every catalog material appears,
// including those with no recorded movements.
func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.Query.Balances(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	materials, err := h.Catalog.Materials(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	byID := make(map[ledger.MaterialID]ledger.Material, len(materials))
	for _, m := range materials {
		byID[m.ID] = m
	}

	out := make([]BalanceDTO, 0, len(balances))
	for _, b := range balances {
		out = append(out, toBalanceDTO(byID[b.MaterialID], b))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetBalance handles GET /api/balances/{materialId}.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	materialID := ledger.MaterialID(chi.URLParam(r, "materialId"))

	balance, err := h.Query.BalanceFor(r.Context(), materialID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	material, _, err := h.Catalog.Material(r.Context(), materialID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(material, balance))
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

// ListMaterials handles GET /api/materials.
func (h *Handler) ListMaterials(w http.ResponseWriter, r *http.Request) {
	materials, err := h.Catalog.Materials(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]MaterialDTO, 0, len(materials))
	for _, m := range materials {
		out = append(out, toMaterialDTO(m))
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// HELPERS
// =============================================================================

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
