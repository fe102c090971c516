/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal ledger model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation via struct tags
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Transactions:
    TransactionDTO, LineDTO, TransactionRequest, LineRequest, PageDTO

  Balances:
    BalanceDTO

  Payments:
    UnpaidStatsDTO

  Reference data:
    MaterialDTO

  Errors:
    ErrorResponse

MONEY:
  Monetary values travel as JSON numbers (float64) on the wire for client
  convenience. Internally they stay decimal.Decimal; conversion happens
  only at the DTO boundary.

VALIDATION:
  Request types carry go-playground/validator tags. Structural checks
  (positive quantities, known enum values, at least one line) run in the
  handler before the request ever reaches the ledger; the ledger then
  re-validates so the API is not the only line of defense.

SEE ALSO:
  - handlers.go: Uses these types
  - server.go: Router setup and middleware
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/medadmin/stock-ledger/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// TransactionRequest is the body for creating or replacing a transaction.
type TransactionRequest struct {
	Direction        string        `json:"direction" validate:"required,oneof=IMPORT EXPORT"`
	CounterpartyKind string        `json:"counterparty_kind" validate:"required,oneof=SUPPLIER DEPARTMENT"`
	CounterpartyID   string        `json:"counterparty_id" validate:"required"`
	Note             string        `json:"note"`
	IsPaid           *bool         `json:"is_paid"`
	CreatedBy        string        `json:"created_by"`
	Items            []LineRequest `json:"items" validate:"required,min=1,dive"`
}

// LineRequest is one material line inside a TransactionRequest.
type LineRequest struct {
	MaterialID   string  `json:"material_id" validate:"required"`
	MaterialKind string  `json:"material_kind" validate:"required,oneof=CHEMICAL SUPPLY"`
	Quantity     int64   `json:"quantity" validate:"required,gt=0"`
	ExpiryDate   string  `json:"expiry_date" validate:"omitempty,datetime=2006-01-02"`
	UnitPrice    float64 `json:"unit_price" validate:"gte=0"`
	Amount       float64 `json:"amount" validate:"gte=0"`
	Note         string  `json:"note"`
}

// toEntry converts a validated request into a ledger entry. The entry ID,
// sequence number and creation timestamp are assigned by the service, not
// the client.
func (r TransactionRequest) toEntry() (ledger.Entry, error) {
	e := ledger.Entry{
		Direction:        ledger.Direction(r.Direction),
		CounterpartyKind: ledger.CounterpartyKind(r.CounterpartyKind),
		CounterpartyID:   r.CounterpartyID,
		Note:             r.Note,
		IsPaid:           r.IsPaid,
		CreatedBy:        r.CreatedBy,
		Lines:            make([]ledger.Line, 0, len(r.Items)),
	}
	for _, it := range r.Items {
		line := ledger.Line{
			MaterialID:   ledger.MaterialID(it.MaterialID),
			MaterialKind: ledger.MaterialKind(it.MaterialKind),
			Quantity:     it.Quantity,
			UnitPrice:    decimal.NewFromFloat(it.UnitPrice),
			Amount:       decimal.NewFromFloat(it.Amount),
			Note:         it.Note,
		}
		if it.ExpiryDate != "" {
			d, err := time.Parse("2006-01-02", it.ExpiryDate)
			if err != nil {
				return ledger.Entry{}, &ledger.ValidationError{
					Field:  "items.expiry_date",
					Reason: "must be formatted as YYYY-MM-DD",
				}
			}
			line.ExpiryDate = &d
		}
		e.Lines = append(e.Lines, line)
	}
	return e, nil
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// LineDTO represents one material line in API responses. Material name and
// code are denormalized from the catalog for display.
type LineDTO struct {
	MaterialID   string  `json:"material_id"`
	MaterialName string  `json:"material_name,omitempty"`
	MaterialCode string  `json:"material_code,omitempty"`
	MaterialKind string  `json:"material_kind"`
	Quantity     int64   `json:"quantity"`
	ExpiryDate   *string `json:"expiry_date,omitempty"`
	UnitPrice    float64 `json:"unit_price"`
	Amount       float64 `json:"amount"`
	Note         string  `json:"note,omitempty"`
}

// TransactionDTO represents a full transaction in API responses.
type TransactionDTO struct {
	ID               string    `json:"id"`
	Direction        string    `json:"direction"`
	CounterpartyKind string    `json:"counterparty_kind"`
	CounterpartyID   string    `json:"counterparty_id"`
	CounterpartyName string    `json:"counterparty_name,omitempty"`
	Note             string    `json:"note,omitempty"`
	IsPaid           *bool     `json:"is_paid,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	CreatedBy        string    `json:"created_by,omitempty"`
	TotalAmount      float64   `json:"total_amount"`
	Items            []LineDTO `json:"items"`
}

// PageDTO wraps a page of transactions with pagination metadata.
type PageDTO struct {
	PageIndex     int              `json:"page_index"`
	PageSize      int              `json:"page_size"`
	TotalElements int64            `json:"total_elements"`
	TotalPages    int              `json:"total_pages"`
	Items         []TransactionDTO `json:"items"`
}

// BalanceDTO represents the derived stock position of one material.
type BalanceDTO struct {
	MaterialID      string    `json:"material_id"`
	MaterialName    string    `json:"material_name,omitempty"`
	MaterialCode    string    `json:"material_code,omitempty"`
	MaterialKind    string    `json:"material_kind,omitempty"`
	CurrentQuantity int64     `json:"current_quantity"`
	Status          string    `json:"status"`
	AsOf            time.Time `json:"as_of"`
}

// UnpaidStatsDTO aggregates the import transactions still awaiting payment.
type UnpaidStatsDTO struct {
	Count       int     `json:"count"`
	TotalAmount float64 `json:"total_amount"`
}

// MaterialDTO represents a catalog material in API responses.
type MaterialDTO struct {
	ID   string `json:"id"`
	Code string `json:"code,omitempty"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// ErrorResponse is the uniform error body. Code is a stable machine-readable
// discriminator; the consistency fields are populated only for rejected
// stock movements.
type ErrorResponse struct {
	Code              string `json:"code"`
	Error             string `json:"error"`
	MaterialID        string `json:"material_id,omitempty"`
	OffendingQuantity int64  `json:"offending_quantity,omitempty"`
	BalanceAtFailure  *int64 `json:"balance_at_failure,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toLineDTO(v ledger.LineView) LineDTO {
	dto := LineDTO{
		MaterialID:   string(v.MaterialID),
		MaterialName: v.MaterialName,
		MaterialCode: v.MaterialCode,
		MaterialKind: string(v.MaterialKind),
		Quantity:     v.Quantity,
		UnitPrice:    v.UnitPrice.InexactFloat64(),
		Amount:       v.Amount.InexactFloat64(),
		Note:         v.Note,
	}
	if v.ExpiryDate != nil {
		s := v.ExpiryDate.Format("2006-01-02")
		dto.ExpiryDate = &s
	}
	return dto
}

func toTransactionDTO(v ledger.EntryView) TransactionDTO {
	dto := TransactionDTO{
		ID:               string(v.ID),
		Direction:        string(v.Direction),
		CounterpartyKind: string(v.CounterpartyKind),
		CounterpartyID:   v.CounterpartyID,
		CounterpartyName: v.CounterpartyName,
		Note:             v.Note,
		IsPaid:           v.IsPaid,
		CreatedAt:        v.CreatedAt,
		CreatedBy:        v.CreatedBy,
		TotalAmount:      v.TotalAmount.InexactFloat64(),
		Items:            make([]LineDTO, 0, len(v.Lines)),
	}
	for _, line := range v.Lines {
		dto.Items = append(dto.Items, toLineDTO(line))
	}
	return dto
}

func toPageDTO(p ledger.EntryPage) PageDTO {
	dto := PageDTO{
		PageIndex:     p.PageIndex,
		PageSize:      p.PageSize,
		TotalElements: p.TotalElements,
		TotalPages:    p.TotalPages,
		Items:         make([]TransactionDTO, 0, len(p.Items)),
	}
	for _, v := range p.Items {
		dto.Items = append(dto.Items, toTransactionDTO(v))
	}
	return dto
}

func toBalanceDTO(m ledger.Material, b ledger.MaterialBalance) BalanceDTO {
	return BalanceDTO{
		MaterialID:      string(b.MaterialID),
		MaterialName:    m.Name,
		MaterialCode:    m.Code,
		MaterialKind:    string(m.Kind),
		CurrentQuantity: b.CurrentQuantity,
		Status:          string(b.Status),
		AsOf:            b.AsOf,
	}
}

func toMaterialDTO(m ledger.Material) MaterialDTO {
	return MaterialDTO{
		ID:   string(m.ID),
		Code: m.Code,
		Name: m.Name,
		Kind: string(m.Kind),
	}
}
