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

// The guard is exercised directly against a store, without the service's
// locking, to pin down the simulation semantics in isolation.
func newTestGuard(t *testing.T) (*ledger.Guard, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return ledger.NewGuard(mem), mem
}

func seedEntry(t *testing.T, mem *store.Memory, id ledger.EntryID, direction ledger.Direction, materialID ledger.MaterialID, qty int64) ledger.Entry {
	t.Helper()
	e := ledger.Entry{
		ID:               id,
		Direction:        direction,
		CounterpartyKind: ledger.CounterpartySupplier,
		CounterpartyID:   "sup-1",
		Lines: []ledger.Line{{
			MaterialID:   materialID,
			MaterialKind: ledger.MaterialChemical,
			Quantity:     qty,
			UnitPrice:    decimal.Zero,
		}},
	}
	require.NoError(t, mem.Create(context.Background(), e))
	stored, err := mem.Get(context.Background(), id)
	require.NoError(t, err)
	return stored
}

// =============================================================================
// CREATE CHECKS
// =============================================================================

func TestGuard_CheckCreate_ExportBeyondBalance_Rejected(t *testing.T) {
	// GIVEN: 10 units imported
	// WHEN: An export of 11 is simulated
	// THEN: The guard rejects with the offending quantity and the balance
	//       at the failure point

	guard, mem := newTestGuard(t)
	seedEntry(t, mem, "e1", ledger.DirectionImport, "mat-a", 10)

	export := ledger.Entry{
		ID:        "e2",
		Direction: ledger.DirectionExport,
		Lines: []ledger.Line{{
			MaterialID: "mat-a", MaterialKind: ledger.MaterialChemical, Quantity: 11,
		}},
	}

	err := guard.CheckCreate(context.Background(), export)
	require.Error(t, err)

	var consistency *ledger.ConsistencyError
	require.ErrorAs(t, err, &consistency)
	assert.Equal(t, ledger.MaterialID("mat-a"), consistency.MaterialID)
	assert.Equal(t, int64(11), consistency.OffendingQuantity)
	assert.Equal(t, int64(-1), consistency.BalanceAtFailure, "the balance that would result")
}

func TestGuard_CheckCreate_ExportExactBalance_Allowed(t *testing.T) {
	// Draining to exactly zero is legal; zero is not negative.

	guard, mem := newTestGuard(t)
	seedEntry(t, mem, "e1", ledger.DirectionImport, "mat-a", 10)

	export := ledger.Entry{
		ID:        "e2",
		Direction: ledger.DirectionExport,
		Lines: []ledger.Line{{
			MaterialID: "mat-a", MaterialKind: ledger.MaterialChemical, Quantity: 10,
		}},
	}
	assert.NoError(t, guard.CheckCreate(context.Background(), export))
}

func TestGuard_CheckCreate_SameMaterialTwiceInOneEntry_Netted(t *testing.T) {
	// GIVEN: 10 units on hand
	// WHEN: One export entry lists the same material in two lines of 6
	// THEN: The lines accumulate; 12 > 10 is rejected

	guard, mem := newTestGuard(t)
	seedEntry(t, mem, "e1", ledger.DirectionImport, "mat-a", 10)

	export := ledger.Entry{
		ID:        "e2",
		Direction: ledger.DirectionExport,
		Lines: []ledger.Line{
			{MaterialID: "mat-a", MaterialKind: ledger.MaterialChemical, Quantity: 6},
			{MaterialID: "mat-a", MaterialKind: ledger.MaterialChemical, Quantity: 6},
		},
	}
	assert.ErrorIs(t, guard.CheckCreate(context.Background(), export), ledger.ErrConsistency)
}

// =============================================================================
// REPLACE CHECKS
// =============================================================================

func TestGuard_CheckReplace_EarlyImportShrink_BreaksLaterExport(t *testing.T) {
	// GIVEN: History import 20 (e1), export 15 (e2)
	// WHEN: e1 is replaced with an import of 10
	// THEN: The prefix at e2 would dip to -5; rejected

	guard, mem := newTestGuard(t)
	existing := seedEntry(t, mem, "e1", ledger.DirectionImport, "mat-a", 20)
	seedEntry(t, mem, "e2", ledger.DirectionExport, "mat-a", 15)

	updated := existing
	updated.Lines = []ledger.Line{{
		MaterialID: "mat-a", MaterialKind: ledger.MaterialChemical, Quantity: 10,
	}}

	err := guard.CheckReplace(context.Background(), existing, updated)
	require.Error(t, err)

	var consistency *ledger.ConsistencyError
	require.ErrorAs(t, err, &consistency)
	assert.Equal(t, int64(-5), consistency.BalanceAtFailure,
		"the shrunken import covers only 10 of the 15 exported")
	assert.Equal(t, int64(15), consistency.OffendingQuantity)
}

func TestGuard_CheckReplace_KeepsOriginalPosition(t *testing.T) {
	// GIVEN: export 5 cannot precede its import
	// History: import 20 (e1), export 15 (e2), import 30 (e3)
	// WHEN: e2 is edited up to 20
	// THEN: Allowed - at e2's original position the balance is 20,
	//       regardless of the later import

	guard, mem := newTestGuard(t)
	seedEntry(t, mem, "e1", ledger.DirectionImport, "mat-a", 20)
	existing := seedEntry(t, mem, "e2", ledger.DirectionExport, "mat-a", 15)
	seedEntry(t, mem, "e3", ledger.DirectionImport, "mat-a", 30)

	updated := existing
	updated.Lines = []ledger.Line{{
		MaterialID: "mat-a", MaterialKind: ledger.MaterialChemical, Quantity: 20,
	}}
	assert.NoError(t, guard.CheckReplace(context.Background(), existing, updated))

	// Editing up to 21 overdraws at the original position even though the
	// final balance would still be positive.
	updated.Lines[0].Quantity = 21
	assert.ErrorIs(t, guard.CheckReplace(context.Background(), existing, updated), ledger.ErrConsistency)
}

func TestGuard_CheckReplace_NewMaterialInUpdate_Checked(t *testing.T) {
	// A replace may introduce a material the original never touched; the
	// new line is validated at the entry's original position.

	guard, mem := newTestGuard(t)
	seedEntry(t, mem, "e1", ledger.DirectionImport, "mat-a", 10)
	target := seedEntry(t, mem, "e2", ledger.DirectionExport, "mat-a", 5)

	updated := target
	updated.Lines = []ledger.Line{{
		MaterialID: "mat-b", MaterialKind: ledger.MaterialChemical, Quantity: 5,
	}}

	// mat-b has no stock at e2's position; rejected.
	err := guard.CheckReplace(context.Background(), target, updated)
	require.Error(t, err)

	var consistency *ledger.ConsistencyError
	require.ErrorAs(t, err, &consistency)
	assert.Equal(t, ledger.MaterialID("mat-b"), consistency.MaterialID)
}

// =============================================================================
// REMOVE CHECKS
// =============================================================================

func TestGuard_CheckRemove_LoadBearingImport_Rejected(t *testing.T) {
	// GIVEN: import 10 (e1), export 10 (e2)
	// WHEN: e1's removal is simulated
	// THEN: e2 would overdraw; rejected

	guard, mem := newTestGuard(t)
	existing := seedEntry(t, mem, "e1", ledger.DirectionImport, "mat-a", 10)
	seedEntry(t, mem, "e2", ledger.DirectionExport, "mat-a", 10)

	assert.ErrorIs(t, guard.CheckRemove(context.Background(), existing), ledger.ErrConsistency)
}

func TestGuard_CheckRemove_TailExport_Allowed(t *testing.T) {
	// Removing the last export only raises later balances; always safe.

	guard, mem := newTestGuard(t)
	seedEntry(t, mem, "e1", ledger.DirectionImport, "mat-a", 10)
	tail := seedEntry(t, mem, "e2", ledger.DirectionExport, "mat-a", 10)

	assert.NoError(t, guard.CheckRemove(context.Background(), tail))
}
