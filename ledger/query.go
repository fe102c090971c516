/*
query.go - Paginated, filtered read model

PURPOSE:
  Read-only access over transactions and computed balances. Filtering
  and pagination are owned entirely server-side: every page carries the
  total match count, so the front-end never re-filters or re-counts
  client-side. Material name/code and counterparty names are
  denormalized here through the master-data catalog.
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// READ-MODEL VIEWS
// =============================================================================

// LineView is a line item with its material reference resolved.
type LineView struct {
	MaterialID   MaterialID
	MaterialName string
	MaterialCode string
	MaterialKind MaterialKind
	Quantity     int64
	ExpiryDate   *time.Time
	UnitPrice    decimal.Decimal
	Amount       decimal.Decimal
	Note         string
}

// EntryView is an entry with denormalized lines and counterparty.
type EntryView struct {
	ID               EntryID
	Direction        Direction
	CounterpartyKind CounterpartyKind
	CounterpartyID   string
	CounterpartyName string
	Note             string
	IsPaid           *bool
	CreatedAt        time.Time
	CreatedBy        string
	TotalAmount      decimal.Decimal
	Lines            []LineView
}

// EntryPage is one stable page of search results.
type EntryPage struct {
	PageIndex     int
	PageSize      int
	TotalElements int64
	TotalPages    int
	Items         []EntryView
}

// =============================================================================
// QUERY SERVICE
// =============================================================================

// Query serves the read side. It never mutates.
type Query struct {
	store   Store
	catalog Catalog
	agg     *Aggregator
}

func NewQuery(store Store, catalog Catalog, agg *Aggregator) *Query {
	return &Query{store: store, catalog: catalog, agg: agg}
}

// Search returns one page of entries matching the filter, newest first.
func (q *Query) Search(ctx context.Context, filter Filter, page PageRequest) (EntryPage, error) {
	page = page.Normalize()

	entries, total, err := q.store.Search(ctx, filter, page)
	if err != nil {
		return EntryPage{}, err
	}

	items := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		view, err := q.denormalize(ctx, e)
		if err != nil {
			return EntryPage{}, err
		}
		items = append(items, view)
	}

	totalPages := int(total) / page.Size
	if int(total)%page.Size != 0 {
		totalPages++
	}

	return EntryPage{
		PageIndex:     page.Index,
		PageSize:      page.Size,
		TotalElements: total,
		TotalPages:    totalPages,
		Items:         items,
	}, nil
}

// Entry returns a single denormalized entry.
func (q *Query) Entry(ctx context.Context, id EntryID) (EntryView, error) {
	e, err := q.store.Get(ctx, id)
	if err != nil {
		return EntryView{}, err
	}
	return q.denormalize(ctx, e)
}

// Balances returns the balance of every material that appears in the
// transaction log, plus a zero / OUT_OF_STOCK row for each catalog
// material not yet transacted.
func (q *Query) Balances(ctx context.Context) ([]MaterialBalance, error) {
	balances, err := q.agg.Balances(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[MaterialID]bool, len(balances))
	for _, b := range balances {
		seen[b.MaterialID] = true
	}

	materials, err := q.catalog.Materials(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for _, m := range materials {
		if seen[m.ID] {
			continue
		}
		balances = append(balances, MaterialBalance{
			MaterialID:      m.ID,
			CurrentQuantity: 0,
			Status:          q.agg.Thresholds().StatusFor(0),
			AsOf:            now,
		})
	}
	return balances, nil
}

// BalanceFor returns one material's balance. Unknown materials are a
// not-found, not a zero balance.
func (q *Query) BalanceFor(ctx context.Context, materialID MaterialID) (MaterialBalance, error) {
	_, ok, err := q.catalog.Material(ctx, materialID)
	if err != nil {
		return MaterialBalance{}, err
	}
	if !ok {
		return MaterialBalance{}, &NotFoundError{MaterialID: materialID}
	}
	return q.agg.Balance(ctx, materialID)
}

func (q *Query) denormalize(ctx context.Context, e Entry) (EntryView, error) {
	view := EntryView{
		ID:               e.ID,
		Direction:        e.Direction,
		CounterpartyKind: e.CounterpartyKind,
		CounterpartyID:   e.CounterpartyID,
		Note:             e.Note,
		IsPaid:           e.IsPaid,
		CreatedAt:        e.CreatedAt,
		CreatedBy:        e.CreatedBy,
		TotalAmount:      e.TotalAmount(),
		Lines:            make([]LineView, 0, len(e.Lines)),
	}

	if name, ok, err := q.catalog.CounterpartyName(ctx, e.CounterpartyKind, e.CounterpartyID); err != nil {
		return EntryView{}, err
	} else if ok {
		view.CounterpartyName = name
	}

	for _, l := range e.Lines {
		lv := LineView{
			MaterialID:   l.MaterialID,
			MaterialKind: l.MaterialKind,
			Quantity:     l.Quantity,
			ExpiryDate:   l.ExpiryDate,
			UnitPrice:    l.UnitPrice,
			Amount:       l.Amount,
			Note:         l.Note,
		}
		if m, ok, err := q.catalog.Material(ctx, l.MaterialID); err != nil {
			return EntryView{}, err
		} else if ok {
			lv.MaterialName = m.Name
			lv.MaterialCode = m.Code
		}
		view.Lines = append(view.Lines, lv)
	}
	return view, nil
}
