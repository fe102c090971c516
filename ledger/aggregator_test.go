package ledger_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medadmin/stock-ledger/ledger"
	"github.com/medadmin/stock-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestAggregator(t *testing.T) (*ledger.Aggregator, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return ledger.NewAggregator(mem, ledger.DefaultThresholds()), mem
}

func recordMovement(t *testing.T, mem *store.Memory, id ledger.EntryID, direction ledger.Direction, materialID ledger.MaterialID, qty int64) {
	t.Helper()
	require.NoError(t, mem.Create(context.Background(), ledger.Entry{
		ID:               id,
		Direction:        direction,
		CounterpartyKind: ledger.CounterpartySupplier,
		CounterpartyID:   "sup-1",
		Lines: []ledger.Line{{
			MaterialID:   materialID,
			MaterialKind: ledger.MaterialSupply,
			Quantity:     qty,
			UnitPrice:    decimal.Zero,
		}},
	}))
}

// =============================================================================
// STATUS THRESHOLDS
// =============================================================================

func TestThresholds_StatusBoundaries(t *testing.T) {
	th := ledger.DefaultThresholds()

	cases := []struct {
		quantity int64
		want     ledger.StockStatus
	}{
		{-3, ledger.StatusOutOfStock},
		{0, ledger.StatusOutOfStock},
		{1, ledger.StatusLowStock},
		{5, ledger.StatusLowStock},
		{6, ledger.StatusNormal},
		{49, ledger.StatusNormal},
		{50, ledger.StatusOverStock},
		{5000, ledger.StatusOverStock},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, th.StatusFor(tc.quantity), "quantity %d", tc.quantity)
	}
}

func TestThresholds_CustomBoundaries(t *testing.T) {
	th := ledger.Thresholds{LowMax: 10, NormalMax: 100}

	assert.Equal(t, ledger.StatusLowStock, th.StatusFor(10))
	assert.Equal(t, ledger.StatusNormal, th.StatusFor(11))
	assert.Equal(t, ledger.StatusNormal, th.StatusFor(100))
	assert.Equal(t, ledger.StatusOverStock, th.StatusFor(101))
}

// =============================================================================
// FOLD AND CACHE
// =============================================================================

func TestAggregator_Balance_FoldsHistoryOnFirstRead(t *testing.T) {
	// GIVEN: import 30, export 12 on record
	// WHEN: The balance is read
	// THEN: It is the fold of the full history

	agg, mem := newTestAggregator(t)
	recordMovement(t, mem, "e1", ledger.DirectionImport, "mat-a", 30)
	recordMovement(t, mem, "e2", ledger.DirectionExport, "mat-a", 12)

	b, err := agg.Balance(context.Background(), "mat-a")
	require.NoError(t, err)
	assert.Equal(t, int64(18), b.CurrentQuantity)
	assert.Equal(t, ledger.StatusNormal, b.Status)
	assert.False(t, b.AsOf.IsZero())
}

func TestAggregator_Apply_KeepsWarmCacheInSync(t *testing.T) {
	// GIVEN: A warm cache entry
	// WHEN: A committed delta is applied
	// THEN: The next read reflects it without refolding

	agg, mem := newTestAggregator(t)
	recordMovement(t, mem, "e1", ledger.DirectionImport, "mat-a", 30)

	// Warm the cache.
	_, err := agg.Balance(context.Background(), "mat-a")
	require.NoError(t, err)

	agg.Apply(map[ledger.MaterialID]int64{"mat-a": -25})

	b, err := agg.Balance(context.Background(), "mat-a")
	require.NoError(t, err)
	assert.Equal(t, int64(5), b.CurrentQuantity)
	assert.Equal(t, ledger.StatusLowStock, b.Status)
}

func TestAggregator_Apply_ColdEntriesStayCold(t *testing.T) {
	// Deltas for materials never read must not seed the cache with a
	// partial total; the first read still folds the real history.

	agg, mem := newTestAggregator(t)
	recordMovement(t, mem, "e1", ledger.DirectionImport, "mat-a", 30)

	agg.Apply(map[ledger.MaterialID]int64{"mat-a": 7})

	b, err := agg.Balance(context.Background(), "mat-a")
	require.NoError(t, err)
	assert.Equal(t, int64(30), b.CurrentQuantity, "fold of the store, not the stray delta")
}

func TestAggregator_Invalidate_ForcesRefold(t *testing.T) {
	agg, mem := newTestAggregator(t)
	recordMovement(t, mem, "e1", ledger.DirectionImport, "mat-a", 30)

	_, err := agg.Balance(context.Background(), "mat-a")
	require.NoError(t, err)

	// Mutate behind the cache's back, then invalidate.
	recordMovement(t, mem, "e2", ledger.DirectionExport, "mat-a", 10)
	agg.Invalidate("mat-a")

	b, err := agg.Balance(context.Background(), "mat-a")
	require.NoError(t, err)
	assert.Equal(t, int64(20), b.CurrentQuantity)
}

func TestAggregator_Balances_CoversEveryMaterialSeen(t *testing.T) {
	agg, mem := newTestAggregator(t)
	recordMovement(t, mem, "e1", ledger.DirectionImport, "mat-a", 3)
	recordMovement(t, mem, "e2", ledger.DirectionImport, "mat-b", 80)

	balances, err := agg.Balances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 2)

	byID := make(map[ledger.MaterialID]ledger.MaterialBalance)
	for _, b := range balances {
		byID[b.MaterialID] = b
	}
	assert.Equal(t, ledger.StatusLowStock, byID["mat-a"].Status)
	assert.Equal(t, ledger.StatusOverStock, byID["mat-b"].Status)
}

// gatedStore lets a test hold the first ListForMaterial call open while
// a commit lands in the underlying store mid-read.
type gatedStore struct {
	ledger.Store
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) ListForMaterial(ctx context.Context, materialID ledger.MaterialID) ([]ledger.Entry, error) {
	if g.armed {
		g.armed = false
		close(g.entered)
		<-g.release
	}
	return g.Store.ListForMaterial(ctx, materialID)
}

func TestAggregator_Balance_CommitDuringColdFoldIsNotLost(t *testing.T) {
	// GIVEN: A cold cache whose first fold is held open
	// WHEN: An import commits and is applied while the fold runs
	// THEN: The stale fold result is not pinned in the cache

	mem := store.NewMemory()
	gated := &gatedStore{
		Store:   mem,
		armed:   true,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	agg := ledger.NewAggregator(gated, ledger.DefaultThresholds())
	recordMovement(t, mem, "e1", ledger.DirectionImport, "mat-a", 10)

	done := make(chan ledger.MaterialBalance, 1)
	go func() {
		b, err := agg.Balance(context.Background(), "mat-a")
		assert.NoError(t, err)
		done <- b
	}()

	// Commit a second import while the fold is in flight.
	<-gated.entered
	recordMovement(t, mem, "e2", ledger.DirectionImport, "mat-a", 5)
	agg.Apply(map[ledger.MaterialID]int64{"mat-a": 5})
	close(gated.release)
	<-done

	b, err := agg.Balance(context.Background(), "mat-a")
	require.NoError(t, err)
	folded, err := agg.Fold(context.Background(), "mat-a")
	require.NoError(t, err)
	assert.Equal(t, folded, b.CurrentQuantity)
	assert.Equal(t, int64(15), b.CurrentQuantity)
}

// =============================================================================
// CACHE/FOLD AGREEMENT
// =============================================================================

func TestAggregator_IncrementalMatchesFold(t *testing.T) {
	// A warm cache maintained by Apply must always agree with a clean
	// fold of the same history.

	agg, mem := newTestAggregator(t)
	recordMovement(t, mem, "e1", ledger.DirectionImport, "mat-a", 100)
	_, err := agg.Balance(context.Background(), "mat-a")
	require.NoError(t, err)

	steps := []struct {
		id  ledger.EntryID
		dir ledger.Direction
		qty int64
	}{
		{"e2", ledger.DirectionExport, 40},
		{"e3", ledger.DirectionImport, 15},
		{"e4", ledger.DirectionExport, 60},
	}
	for _, s := range steps {
		recordMovement(t, mem, s.id, s.dir, "mat-a", s.qty)
		delta := s.qty
		if s.dir == ledger.DirectionExport {
			delta = -delta
		}
		agg.Apply(map[ledger.MaterialID]int64{"mat-a": delta})
	}

	cached, err := agg.Balance(context.Background(), "mat-a")
	require.NoError(t, err)
	folded, err := agg.Fold(context.Background(), "mat-a")
	require.NoError(t, err)

	assert.Equal(t, folded, cached.CurrentQuantity)
	assert.Equal(t, int64(15), folded)
}
