package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medadmin/stock-ledger/ledger"
	"github.com/medadmin/stock-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleEntry(id ledger.EntryID, direction ledger.Direction, materialID ledger.MaterialID, qty int64) ledger.Entry {
	e := ledger.Entry{
		ID:               id,
		Direction:        direction,
		CounterpartyKind: ledger.CounterpartySupplier,
		CounterpartyID:   "sup-1",
		Note:             "sample",
		CreatedAt:        time.Now().UTC().Truncate(time.Second),
		CreatedBy:        "test",
		Lines: []ledger.Line{{
			MaterialID:   materialID,
			MaterialKind: ledger.MaterialChemical,
			Quantity:     qty,
			UnitPrice:    decimal.RequireFromString("1.25"),
			Amount:       decimal.RequireFromString("1.25").Mul(decimal.NewFromInt(qty)),
		}},
	}
	if direction == ledger.DirectionImport {
		paid := false
		e.IsPaid = &paid
	}
	return e
}

// =============================================================================
// ROUNDTRIP
// =============================================================================

func TestSQLiteStore_CreateAndGet_FullFidelity(t *testing.T) {
	// Everything written must come back byte-equal: payment flag, expiry
	// date, decimal money, line order.

	store := newTestStore(t)
	ctx := context.Background()

	expiry := time.Date(2027, time.June, 1, 0, 0, 0, 0, time.UTC)
	paid := true
	e := ledger.Entry{
		ID:               "e1",
		Direction:        ledger.DirectionImport,
		CounterpartyKind: ledger.CounterpartySupplier,
		CounterpartyID:   "sup-1",
		Note:             "quarterly order",
		IsPaid:           &paid,
		CreatedAt:        time.Date(2026, time.August, 1, 9, 30, 0, 0, time.UTC),
		CreatedBy:        "alice",
		Lines: []ledger.Line{
			{
				MaterialID:   "mat-a",
				MaterialKind: ledger.MaterialChemical,
				Quantity:     12,
				ExpiryDate:   &expiry,
				UnitPrice:    decimal.RequireFromString("3.75"),
				Amount:       decimal.RequireFromString("45.00"),
				Note:         "batch 7",
			},
			{
				MaterialID:   "mat-b",
				MaterialKind: ledger.MaterialSupply,
				Quantity:     100,
				UnitPrice:    decimal.RequireFromString("0.10"),
				Amount:       decimal.RequireFromString("10.00"),
			},
		},
	}
	require.NoError(t, store.Create(ctx, e))

	got, err := store.Get(ctx, "e1")
	require.NoError(t, err)

	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, e.Direction, got.Direction)
	assert.Equal(t, e.CounterpartyKind, got.CounterpartyKind)
	assert.Equal(t, e.CounterpartyID, got.CounterpartyID)
	assert.Equal(t, e.Note, got.Note)
	require.NotNil(t, got.IsPaid)
	assert.True(t, *got.IsPaid)
	assert.True(t, e.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, "alice", got.CreatedBy)
	assert.Positive(t, got.Seq, "store assigns the creation sequence")

	require.Len(t, got.Lines, 2)
	assert.Equal(t, ledger.MaterialID("mat-a"), got.Lines[0].MaterialID)
	require.NotNil(t, got.Lines[0].ExpiryDate)
	assert.True(t, expiry.Equal(*got.Lines[0].ExpiryDate))
	assert.True(t, decimal.RequireFromString("3.75").Equal(got.Lines[0].UnitPrice))
	assert.True(t, decimal.RequireFromString("45.00").Equal(got.Lines[0].Amount))
	assert.Equal(t, "batch 7", got.Lines[0].Note)
	assert.Nil(t, got.Lines[1].ExpiryDate)
}

func TestSQLiteStore_Get_Unknown_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, ledger.IsNotFound(err))
}

func TestSQLiteStore_ExportHasNoPaymentFlag(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sampleEntry("e1", ledger.DirectionExport, "mat-a", 5)))

	got, err := store.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Nil(t, got.IsPaid)
}

// =============================================================================
// CREATION ORDER
// =============================================================================

func TestSQLiteStore_ListForMaterial_CreationOrder(t *testing.T) {
	// The sequence must reflect insertion order regardless of the
	// entries' CreatedAt timestamps.

	store := newTestStore(t)
	ctx := context.Background()

	older := sampleEntry("e1", ledger.DirectionImport, "mat-a", 10)
	older.CreatedAt = time.Now().UTC()
	newer := sampleEntry("e2", ledger.DirectionImport, "mat-a", 20)
	newer.CreatedAt = older.CreatedAt.Add(-time.Hour) // backdated

	require.NoError(t, store.Create(ctx, older))
	require.NoError(t, store.Create(ctx, newer))

	history, err := store.ListForMaterial(ctx, "mat-a")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ledger.EntryID("e1"), history[0].ID)
	assert.Equal(t, ledger.EntryID("e2"), history[1].ID)
	assert.Less(t, history[0].Seq, history[1].Seq)
}

// =============================================================================
// REPLACE AND REMOVE
// =============================================================================

func TestSQLiteStore_Replace_SwapsLinesKeepsSeq(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sampleEntry("e1", ledger.DirectionImport, "mat-a", 10)))
	original, err := store.Get(ctx, "e1")
	require.NoError(t, err)

	replacement := original
	replacement.Note = "corrected"
	replacement.Lines = []ledger.Line{{
		MaterialID:   "mat-b",
		MaterialKind: ledger.MaterialSupply,
		Quantity:     7,
		UnitPrice:    decimal.RequireFromString("0.50"),
		Amount:       decimal.RequireFromString("3.50"),
	}}
	require.NoError(t, store.Replace(ctx, replacement))

	got, err := store.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, original.Seq, got.Seq, "replace keeps the creation position")
	assert.Equal(t, "corrected", got.Note)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, ledger.MaterialID("mat-b"), got.Lines[0].MaterialID)

	// The old material's history no longer references the entry.
	history, err := store.ListForMaterial(ctx, "mat-a")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSQLiteStore_Replace_Unknown_NotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.Replace(context.Background(), sampleEntry("ghost", ledger.DirectionImport, "mat-a", 1))
	require.Error(t, err)
	assert.True(t, ledger.IsNotFound(err))
}

func TestSQLiteStore_Remove_CascadesLines(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sampleEntry("e1", ledger.DirectionImport, "mat-a", 10)))
	require.NoError(t, store.Remove(ctx, "e1"))

	_, err := store.Get(ctx, "e1")
	assert.True(t, ledger.IsNotFound(err))

	history, err := store.ListForMaterial(ctx, "mat-a")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSQLiteStore_Remove_Unknown_NotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.Remove(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, ledger.IsNotFound(err))
}

// =============================================================================
// SEARCH
// =============================================================================

func TestSQLiteStore_Search_FiltersAndPaginates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMaterial(ctx, ledger.Material{
		ID: "mat-a", Name: "Ethanol 96%", Code: "CHM-001", Kind: ledger.MaterialChemical,
	}))

	require.NoError(t, store.Create(ctx, sampleEntry("e1", ledger.DirectionImport, "mat-a", 10)))
	require.NoError(t, store.Create(ctx, sampleEntry("e2", ledger.DirectionExport, "mat-a", 4)))
	require.NoError(t, store.Create(ctx, sampleEntry("e3", ledger.DirectionImport, "mat-b", 50)))

	// Direction filter
	imports := ledger.DirectionImport
	entries, total, err := store.Search(ctx, ledger.Filter{Direction: &imports}, ledger.PageRequest{Size: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.EntryID("e3"), entries[0].ID, "newest first")

	// Keyword through the denormalized material name
	entries, total, err = store.Search(ctx, ledger.Filter{Keyword: "ethanol"}, ledger.PageRequest{Size: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total, "both entries touching Ethanol match")

	// Pagination: page 1 of size 2 holds the single oldest entry
	entries, total, err = store.Search(ctx, ledger.Filter{}, ledger.PageRequest{Index: 1, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EntryID("e1"), entries[0].ID)
}

func TestSQLiteStore_Search_DateWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := sampleEntry("e1", ledger.DirectionImport, "mat-a", 10)
	e.CreatedAt = time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(ctx, e))

	from := time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.August, 16, 0, 0, 0, 0, time.UTC)
	_, total, err := store.Search(ctx, ledger.Filter{From: &from, To: &to}, ledger.PageRequest{Size: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	later := time.Date(2026, time.August, 16, 0, 0, 0, 0, time.UTC)
	_, total, err = store.Search(ctx, ledger.Filter{From: &later}, ledger.PageRequest{Size: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestSQLiteStore_Search_DateWindow_SubSecondBoundary(t *testing.T) {
	// GIVEN: Two entries half a second apart inside the same second
	// WHEN: A filter boundary falls between them
	// THEN: The comparison honors the fraction, not its textual length

	store := newTestStore(t)
	ctx := context.Background()

	whole := time.Date(2026, time.August, 15, 12, 0, 59, 0, time.UTC)
	half := whole.Add(500 * time.Millisecond)

	early := sampleEntry("e-whole", ledger.DirectionImport, "mat-a", 10)
	early.CreatedAt = whole
	require.NoError(t, store.Create(ctx, early))

	late := sampleEntry("e-half", ledger.DirectionImport, "mat-a", 10)
	late.CreatedAt = half
	require.NoError(t, store.Create(ctx, late))

	// From the half-second mark: only the later entry qualifies.
	entries, total, err := store.Search(ctx, ledger.Filter{From: &half}, ledger.PageRequest{Size: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, ledger.EntryID("e-half"), entries[0].ID)

	// Up to the whole second: only the earlier one.
	entries, total, err = store.Search(ctx, ledger.Filter{To: &whole}, ledger.PageRequest{Size: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, ledger.EntryID("e-whole"), entries[0].ID)

	// Timestamps survive the roundtrip to the nanosecond.
	got, err := store.Get(ctx, "e-half")
	require.NoError(t, err)
	assert.True(t, half.Equal(got.CreatedAt))
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestSQLiteStore_SetPaid_Lifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sampleEntry("e1", ledger.DirectionImport, "mat-a", 10)))

	unpaid, err := store.UnpaidImports(ctx)
	require.NoError(t, err)
	require.Len(t, unpaid, 1)

	changed, err := store.SetPaid(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, changed)

	// Second call is a no-op, not an error.
	changed, err = store.SetPaid(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, changed)

	unpaid, err = store.UnpaidImports(ctx)
	require.NoError(t, err)
	assert.Empty(t, unpaid)
}

func TestSQLiteStore_SetPaid_Export_Rejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, sampleEntry("e1", ledger.DirectionExport, "mat-a", 2)))

	_, err := store.SetPaid(ctx, "e1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

// =============================================================================
// CATALOG
// =============================================================================

func TestSQLiteStore_Catalog_UpsertAndLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := ledger.Material{ID: "mat-a", Name: "Ethanol 96%", Code: "CHM-001", Kind: ledger.MaterialChemical}
	require.NoError(t, store.SaveMaterial(ctx, m))

	// Upsert overwrites in place.
	m.Name = "Ethanol 70%"
	require.NoError(t, store.SaveMaterial(ctx, m))

	got, ok, err := store.Material(ctx, "mat-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ethanol 70%", got.Name)

	_, ok, err = store.Material(ctx, "mat-unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveCounterparty(ctx, ledger.Counterparty{
		ID: "dep-1", Kind: ledger.CounterpartyDepartment, Name: "Surgery",
	}))
	name, ok, err := store.CounterpartyName(ctx, ledger.CounterpartyDepartment, "dep-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Surgery", name)
}

func TestSQLiteStore_Reset_ClearsEverything(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMaterial(ctx, ledger.Material{ID: "mat-a", Name: "X", Code: "C", Kind: ledger.MaterialSupply}))
	require.NoError(t, store.Create(ctx, sampleEntry("e1", ledger.DirectionImport, "mat-a", 10)))

	require.NoError(t, store.Reset(ctx))

	_, err := store.Get(ctx, "e1")
	assert.True(t, ledger.IsNotFound(err))

	materials, err := store.Materials(ctx)
	require.NoError(t, err)
	assert.Empty(t, materials)
}
