/*
payments.go - Unpaid import exposure

PURPOSE:
  Answers "how much unpaid import exposure exists": the count of IMPORT
  entries with isPaid=false and the decimal sum of their line amounts.
  Reads go straight to the store - no cache beyond the single read - so
  the numbers reflect the log immediately after any commit.
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// UnpaidStats aggregates the outstanding import entries.
type UnpaidStats struct {
	Count       int
	TotalAmount decimal.Decimal
}

// Payments tracks payment status over import entries.
type Payments struct {
	store Store
}

func NewPayments(store Store) *Payments {
	return &Payments{store: store}
}

// UnpaidStats filters IMPORT entries with isPaid=false and sums their
// line amounts.
func (p *Payments) UnpaidStats(ctx context.Context) (UnpaidStats, error) {
	entries, err := p.store.UnpaidImports(ctx)
	if err != nil {
		return UnpaidStats{}, err
	}
	stats := UnpaidStats{TotalAmount: decimal.Zero}
	for _, e := range entries {
		stats.Count++
		stats.TotalAmount = stats.TotalAmount.Add(e.TotalAmount())
	}
	return stats, nil
}

// MarkPaid flips isPaid to true. Marking an already-paid entry is a
// no-op, not an error; marking an export is a validation error.
func (p *Payments) MarkPaid(ctx context.Context, id EntryID) error {
	_, err := p.store.SetPaid(ctx, id)
	return err
}
