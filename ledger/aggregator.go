/*
aggregator.go - Derived stock balances with an incremental cache

PURPOSE:
  Computes MaterialBalance per material by folding the transaction log:
  +quantity for IMPORT lines, -quantity for EXPORT lines. The fold is
  pure and synchronous over a bounded history.

CACHING STRATEGY:
  Running totals are maintained incrementally: after every committed
  mutation the service hands the aggregator the net per-material deltas
  and the cached quantity is adjusted in place. A cold cache entry is
  seeded with one full fold of that material's history. Recomputing from
  the full history on every read is reserved for verification in tests.

INVALIDATION:
  Invalidate drops cache entries outright (seed/reset paths); Apply
  adjusts them (the commit path). Both are called only after the store
  mutation has committed, so a concurrent read sees either the pre- or
  post-commit balance, never a partial one.
*/
package ledger

import (
	"context"
	"sync"
	"time"
)

// Aggregator derives current quantity and stock status per material.
//
// The fold in Balance runs outside the writers' material locks, so a
// commit can land mid-fold. Epochs close that window: Apply and
// Invalidate bump the touched material's epoch, and a fold result is
// installed into the cache only if the epoch it started under is still
// current. A fold that lost the race is served to its caller (it is a
// valid pre- or post-commit snapshot) but never cached, so the next
// read folds again instead of freezing a stale total.
type Aggregator struct {
	store      Store
	thresholds Thresholds

	mu     sync.RWMutex
	cache  map[MaterialID]int64
	epochs map[MaterialID]uint64
	gen    uint64 // bumped by full invalidation
}

func NewAggregator(store Store, thresholds Thresholds) *Aggregator {
	return &Aggregator{
		store:      store,
		thresholds: thresholds,
		cache:      make(map[MaterialID]int64),
		epochs:     make(map[MaterialID]uint64),
	}
}

// Balance returns the material's current balance, folding its history
// only when the cache is cold.
func (a *Aggregator) Balance(ctx context.Context, materialID MaterialID) (MaterialBalance, error) {
	a.mu.RLock()
	quantity, warm := a.cache[materialID]
	epoch, gen := a.epochs[materialID], a.gen
	a.mu.RUnlock()

	if !warm {
		folded, err := a.Fold(ctx, materialID)
		if err != nil {
			return MaterialBalance{}, err
		}

		a.mu.Lock()
		if a.epochs[materialID] == epoch && a.gen == gen {
			// No commit raced the fold; the total is safe to pin.
			// Otherwise the snapshot is still served, but caching it
			// could freeze a pre-commit total.
			a.cache[materialID] = folded
		}
		a.mu.Unlock()
		quantity = folded
	}

	return MaterialBalance{
		MaterialID:      materialID,
		CurrentQuantity: quantity,
		Status:          a.thresholds.StatusFor(quantity),
		AsOf:            time.Now().UTC(),
	}, nil
}

// Balances computes the balance of every material the log has seen.
func (a *Aggregator) Balances(ctx context.Context) ([]MaterialBalance, error) {
	ids, err := a.store.ListMaterialIDs(ctx)
	if err != nil {
		return nil, err
	}
	balances := make([]MaterialBalance, 0, len(ids))
	for _, id := range ids {
		b, err := a.Balance(ctx, id)
		if err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, nil
}

// Fold recomputes a material's quantity from its full history. This is
// the verification path; the commit path maintains totals via Apply.
func (a *Aggregator) Fold(ctx context.Context, materialID MaterialID) (int64, error) {
	history, err := a.store.ListForMaterial(ctx, materialID)
	if err != nil {
		return 0, err
	}
	var quantity int64
	for _, e := range history {
		quantity += e.SignedQuantity(materialID)
	}
	return quantity, nil
}

// Apply adjusts cached totals by the net deltas of a committed mutation.
// Cold entries are left cold; they will fold on first read. Every
// touched material's epoch is bumped, warm or cold, so an in-flight
// fold that started before this commit cannot cache its result.
func (a *Aggregator) Apply(deltas map[MaterialID]int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, delta := range deltas {
		a.epochs[id]++
		if quantity, ok := a.cache[id]; ok {
			a.cache[id] = quantity + delta
		}
	}
}

// Invalidate drops cached totals for the given materials, or the whole
// cache when called with no arguments.
func (a *Aggregator) Invalidate(materialIDs ...MaterialID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(materialIDs) == 0 {
		a.cache = make(map[MaterialID]int64)
		a.gen++
		return
	}
	for _, id := range materialIDs {
		delete(a.cache, id)
		a.epochs[id]++
	}
}

// Thresholds exposes the configured status boundaries so the read model
// can classify materials it derives zero balances for.
func (a *Aggregator) Thresholds() Thresholds { return a.thresholds }
