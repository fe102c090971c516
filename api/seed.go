/*
seed.go - Demo data loader for testing and demonstrations

PURPOSE:

	Populates the database with a realistic clinic inventory so the
	frontend and the reporting endpoints have something to show:
	a handful of chemicals and supplies, two suppliers, two consuming
	departments, and a short coherent transaction history (imports
	followed by exports that never overdraw a material).

HOW SEEDING WORKS:
 1. Reset the database and the balance cache
 2. Upsert catalog materials and counterparties
 3. Record import transactions (one left unpaid)
 4. Record export transactions against the imported stock

   Every transaction goes through the regular service path so the
   consistency guard and the balance cache see exactly what production
   traffic would produce.

USAGE VIA API:

	POST /api/seed
	POST /api/reset

NOTE:

	Seeding resets the database. Only use in development/demo
	environments; the router does not mount these routes unless a
	RefStore is configured.

SEE ALSO:
  - handlers.go: Shared response helpers
  - server.go: Route mounting
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medadmin/stock-ledger/ledger"
)

// =============================================================================
// DEMO DATASET
// =============================================================================

var demoMaterials = []ledger.Material{
	{ID: "mat-ethanol", Name: "Ethanol 96%", Code: "CHM-001", Kind: ledger.MaterialChemical},
	{ID: "mat-peroxide", Name: "Hydrogen Peroxide 3%", Code: "CHM-002", Kind: ledger.MaterialChemical},
	{ID: "mat-gloves", Name: "Nitrile Gloves M", Code: "SUP-001", Kind: ledger.MaterialSupply},
	{ID: "mat-syringes", Name: "Syringes 5ml", Code: "SUP-002", Kind: ledger.MaterialSupply},
	{ID: "mat-gauze", Name: "Sterile Gauze Pads", Code: "SUP-003", Kind: ledger.MaterialSupply},
}

var demoCounterparties = []ledger.Counterparty{
	{ID: "sup-medsupply", Kind: ledger.CounterpartySupplier, Name: "MedSupply Co."},
	{ID: "sup-chemlab", Kind: ledger.CounterpartySupplier, Name: "ChemLab Distribution"},
	{ID: "dep-surgery", Kind: ledger.CounterpartyDepartment, Name: "Surgery"},
	{ID: "dep-therapy", Kind: ledger.CounterpartyDepartment, Name: "Therapy"},
}

// =============================================================================
// HANDLERS
// =============================================================================

// SeedDemo handles POST /api/seed.
func (h *Handler) SeedDemo(w http.ResponseWriter, r *http.Request) {
	if err := h.loadDemo(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "seeded"})
}

// ResetData handles POST /api/reset.
func (h *Handler) ResetData(w http.ResponseWriter, r *http.Request) {
	if err := h.Ref.Reset(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Aggregator.Invalidate()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// LOADER
// =============================================================================

func (h *Handler) loadDemo(ctx context.Context) error {
	if err := h.Ref.Reset(ctx); err != nil {
		return err
	}
	h.Aggregator.Invalidate()

	for _, m := range demoMaterials {
		if err := h.Ref.SaveMaterial(ctx, m); err != nil {
			return err
		}
	}
	for _, c := range demoCounterparties {
		if err := h.Ref.SaveCounterparty(ctx, c); err != nil {
			return err
		}
	}

	paid := true
	unpaid := false

	// Imports first so the exports below always have cover.
	imports := []ledger.Entry{
		{
			Direction:        ledger.DirectionImport,
			CounterpartyKind: ledger.CounterpartySupplier,
			CounterpartyID:   "sup-chemlab",
			Note:             "quarterly chemical order",
			IsPaid:           &paid,
			CreatedBy:        "demo",
			Lines: []ledger.Line{
				demoLine("mat-ethanol", ledger.MaterialChemical, 60, "12.50"),
				demoLine("mat-peroxide", ledger.MaterialChemical, 40, "4.20"),
			},
		},
		{
			Direction:        ledger.DirectionImport,
			CounterpartyKind: ledger.CounterpartySupplier,
			CounterpartyID:   "sup-medsupply",
			Note:             "monthly consumables",
			IsPaid:           &unpaid,
			CreatedBy:        "demo",
			Lines: []ledger.Line{
				demoLine("mat-gloves", ledger.MaterialSupply, 200, "0.35"),
				demoLine("mat-syringes", ledger.MaterialSupply, 150, "0.80"),
				demoLine("mat-gauze", ledger.MaterialSupply, 80, "1.10"),
			},
		},
	}

	exports := []ledger.Entry{
		{
			Direction:        ledger.DirectionExport,
			CounterpartyKind: ledger.CounterpartyDepartment,
			CounterpartyID:   "dep-surgery",
			Note:             "weekly surgery restock",
			CreatedBy:        "demo",
			Lines: []ledger.Line{
				demoLine("mat-gloves", ledger.MaterialSupply, 60, "0.35"),
				demoLine("mat-syringes", ledger.MaterialSupply, 40, "0.80"),
				demoLine("mat-ethanol", ledger.MaterialChemical, 15, "12.50"),
			},
		},
		{
			Direction:        ledger.DirectionExport,
			CounterpartyKind: ledger.CounterpartyDepartment,
			CounterpartyID:   "dep-therapy",
			Note:             "therapy room supplies",
			CreatedBy:        "demo",
			Lines: []ledger.Line{
				demoLine("mat-gauze", ledger.MaterialSupply, 76, "1.10"),
				demoLine("mat-peroxide", ledger.MaterialChemical, 38, "4.20"),
			},
		},
	}

	for _, e := range append(imports, exports...) {
		if _, err := h.Service.Create(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func demoLine(id ledger.MaterialID, kind ledger.MaterialKind, qty int64, unitPrice string) ledger.Line {
	price := decimal.RequireFromString(unitPrice)
	return ledger.Line{
		MaterialID:   id,
		MaterialKind: kind,
		Quantity:     qty,
		ExpiryDate:   demoExpiry(kind),
		UnitPrice:    price,
		Amount:       price.Mul(decimal.NewFromInt(qty)),
	}
}

// Chemicals carry an expiry date a year out; supplies have none.
func demoExpiry(kind ledger.MaterialKind) *time.Time {
	if kind != ledger.MaterialChemical {
		return nil
	}
	d := time.Now().UTC().AddDate(1, 0, 0).Truncate(24 * time.Hour)
	return &d
}
