/*
Package ledger implements the inventory stock ledger engine.

PURPOSE:
  The ledger is the source of truth for all material stock movements.
  Every import from a supplier and every export to a department is
  recorded as a transaction entry with one or more line items. Current
  stock is always derived by folding the transaction history - there is
  no separately writable "stock" field that can drift out of sync.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry:           One import or export transaction (owns its lines)
  - Line:            A single material quantity movement within an entry
  - MaterialBalance: Derived current quantity + stock status per material
  - Thresholds:      Configurable stock-status boundaries

CRITICAL INVARIANTS:
  1. Every entry has at least one line; a line never exists without its entry.
  2. quantity > 0 and unitPrice >= 0 on every line.
  3. For every material, the running signed sum of quantities over the
     creation-order history is never negative at any prefix.
  4. isPaid is carried only by IMPORT entries.

DESIGN PRINCIPLES:
  - Precision: shopspring/decimal for money, int64 for unit counts
  - Type safety: closed string variants for direction/kind enums,
    validated at the request boundary, never inferred at display time
  - Derivation: balances are materialized views over the log, recomputed
    or incrementally maintained, never independently written

SEE ALSO:
  - guard.go:      Non-negative prefix-sum enforcement
  - aggregator.go: Balance derivation and caching
  - service.go:    The write path (validate -> guard -> commit)
*/
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntryID string
type MaterialID string

// =============================================================================
// CLOSED VARIANTS - validated at the boundary, never shape-inferred
// =============================================================================

// Direction of a stock movement.
type Direction string

const (
	DirectionImport Direction = "IMPORT"
	DirectionExport Direction = "EXPORT"
)

// Valid reports whether d is a recognized variant.
func (d Direction) Valid() bool {
	return d == DirectionImport || d == DirectionExport
}

// Sign is the ledger sign of the direction: imports add stock, exports
// remove it.
func (d Direction) Sign() int64 {
	if d == DirectionExport {
		return -1
	}
	return 1
}

// CounterpartyKind identifies who is on the other side of an entry:
// a supplier for imports, a department for exports.
type CounterpartyKind string

const (
	CounterpartySupplier   CounterpartyKind = "SUPPLIER"
	CounterpartyDepartment CounterpartyKind = "DEPARTMENT"
)

func (k CounterpartyKind) Valid() bool {
	return k == CounterpartySupplier || k == CounterpartyDepartment
}

// MaterialKind classifies a material in the master-data catalog.
type MaterialKind string

const (
	MaterialChemical MaterialKind = "CHEMICAL"
	MaterialSupply   MaterialKind = "SUPPLY"
)

func (k MaterialKind) Valid() bool {
	return k == MaterialChemical || k == MaterialSupply
}

// StockStatus is the display classification of a material balance.
type StockStatus string

const (
	StatusOutOfStock StockStatus = "OUT_OF_STOCK"
	StatusLowStock   StockStatus = "LOW_STOCK"
	StatusNormal     StockStatus = "NORMAL"
	StatusOverStock  StockStatus = "OVER_STOCK"
)

// =============================================================================
// ENTRY - one import/export transaction, composed of line items
// =============================================================================

// Entry is the ledger's unit of mutation. Lines are a composition:
// they live and die with their entry.
type Entry struct {
	ID               EntryID
	Direction        Direction
	CounterpartyKind CounterpartyKind
	CounterpartyID   string
	Note             string
	IsPaid           *bool // only set for IMPORT entries
	CreatedAt        time.Time
	CreatedBy        string
	Lines            []Line

	// Seq is the store-assigned creation sequence number. It defines the
	// creation-time ordering the guard validates against and survives edits.
	Seq int64
}

// Line is a single material quantity movement within an entry.
type Line struct {
	EntryID      EntryID
	MaterialID   MaterialID
	MaterialKind MaterialKind
	Quantity     int64
	ExpiryDate   *time.Time
	UnitPrice    decimal.Decimal
	Amount       decimal.Decimal
	Note         string
}

// MaterialIDs returns the distinct materials the entry touches, sorted.
// Lock acquisition and guard checks iterate this set.
func (e Entry) MaterialIDs() []MaterialID {
	seen := make(map[MaterialID]bool, len(e.Lines))
	var ids []MaterialID
	for _, l := range e.Lines {
		if !seen[l.MaterialID] {
			seen[l.MaterialID] = true
			ids = append(ids, l.MaterialID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SignedQuantity is the entry's net effect on a material: the sum of its
// line quantities for that material, negative for exports.
func (e Entry) SignedQuantity(materialID MaterialID) int64 {
	var total int64
	for _, l := range e.Lines {
		if l.MaterialID == materialID {
			total += l.Quantity
		}
	}
	return total * e.Direction.Sign()
}

// TotalAmount sums the monetary amount across all lines.
func (e Entry) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.Amount)
	}
	return total
}

// Paid reports whether an import entry has been settled. Exports and
// imports without a flag count as not-unpaid and unpaid respectively.
func (e Entry) Paid() bool {
	return e.IsPaid != nil && *e.IsPaid
}

// Validate enforces the structural invariants of an entry before it comes
// anywhere near the store. Prefix-sum consistency is the guard's job, not
// Validate's.
func (e Entry) Validate() error {
	if !e.Direction.Valid() {
		return &ValidationError{Field: "direction", Reason: "must be IMPORT or EXPORT"}
	}
	if !e.CounterpartyKind.Valid() {
		return &ValidationError{Field: "counterparty_kind", Reason: "must be SUPPLIER or DEPARTMENT"}
	}
	if e.CounterpartyID == "" {
		return &ValidationError{Field: "counterparty_id", Reason: "is required"}
	}
	if len(e.Lines) == 0 {
		return &ValidationError{Field: "items", Reason: "at least one line item is required"}
	}
	if e.Direction == DirectionExport && e.IsPaid != nil {
		return &ValidationError{Field: "is_paid", Reason: "only import entries carry a payment flag"}
	}
	for _, l := range e.Lines {
		if l.MaterialID == "" {
			return &ValidationError{Field: "material_id", Reason: "is required"}
		}
		if !l.MaterialKind.Valid() {
			return &ValidationError{Field: "material_kind", Reason: "must be CHEMICAL or SUPPLY"}
		}
		if l.Quantity <= 0 {
			return &ValidationError{Field: "quantity", Reason: "must be strictly positive"}
		}
		if l.UnitPrice.IsNegative() {
			return &ValidationError{Field: "unit_price", Reason: "must not be negative"}
		}
	}
	return nil
}

// =============================================================================
// MATERIAL BALANCE - derived view, never independently persisted
// =============================================================================

// MaterialBalance is the materialized fold of a material's history.
type MaterialBalance struct {
	MaterialID      MaterialID
	CurrentQuantity int64
	Status          StockStatus
	AsOf            time.Time
}

// Thresholds hold the stock-status boundaries. Quantities of at most
// LowMax are LOW_STOCK, above NormalMax OVER_STOCK, zero or less
// OUT_OF_STOCK, everything in between NORMAL.
type Thresholds struct {
	LowMax    int64
	NormalMax int64
}

// DefaultThresholds are the boundaries observed in the product:
// 0 out, 1-5 low, 6-49 normal, >=50 over.
func DefaultThresholds() Thresholds {
	return Thresholds{LowMax: 5, NormalMax: 49}
}

// StatusFor classifies a current quantity.
func (t Thresholds) StatusFor(quantity int64) StockStatus {
	switch {
	case quantity <= 0:
		return StatusOutOfStock
	case quantity <= t.LowMax:
		return StatusLowStock
	case quantity <= t.NormalMax:
		return StatusNormal
	default:
		return StatusOverStock
	}
}

// =============================================================================
// MASTER-DATA REFERENCES - owned elsewhere, consumed by id
// =============================================================================

// Material is the catalog record the ledger denormalizes into query
// results. The catalog owns it; the ledger only reads.
type Material struct {
	ID   MaterialID
	Name string
	Code string
	Kind MaterialKind
}

// Counterparty is a supplier or department reference.
type Counterparty struct {
	ID   string
	Kind CounterpartyKind
	Name string
}
