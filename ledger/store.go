/*
store.go - Persistence interfaces for the transaction log

PURPOSE:
  Defines the boundary between the ledger engine and the database. The
  Store is the single source of truth and the only mutable shared
  resource; everything else in the engine is a pure function over it or
  a cache derived from it.

ATOMICITY CONTRACT:
  Create/Replace/Remove commit an entry and its full line set as one
  unit. Partial persistence - some lines written, others not - must
  never be observable, under any error path.

ORDERING CONTRACT:
  The store assigns each created entry a monotonically increasing
  sequence number. ListForMaterial returns entries in that creation
  order, oldest first; Replace preserves the original sequence so an
  edit never reorders history.

IMPLEMENTATIONS:
  - store/sqlite:  production store (WAL mode, single file)
  - ledger/store:  in-memory store for tests and dev

SEE ALSO:
  - guard.go:   consumes ListForMaterial to validate prefix sums
  - service.go: drives mutations through the Store under material locks
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - durable, atomic persistence of entries and their lines
// =============================================================================

type Store interface {
	// Create persists the entry and all its lines atomically. The caller
	// has validated the entry and assigned its id.
	Create(ctx context.Context, entry Entry) error

	// Replace swaps the entry's header fields and its entire line set
	// atomically, keeping the original creation sequence and timestamp.
	// Returns NotFoundError if the id does not exist.
	Replace(ctx context.Context, entry Entry) error

	// Remove deletes the entry and its lines atomically.
	// Returns NotFoundError if the id does not exist.
	Remove(ctx context.Context, id EntryID) error

	// Get loads a single entry with its lines.
	Get(ctx context.Context, id EntryID) (Entry, error)

	// ListForMaterial returns every entry with at least one line for the
	// material, in creation order, oldest first. The guard and the
	// aggregator fold over this sequence.
	ListForMaterial(ctx context.Context, materialID MaterialID) ([]Entry, error)

	// ListMaterialIDs returns the distinct materials referenced by any line.
	ListMaterialIDs(ctx context.Context) ([]MaterialID, error)

	// Search returns one page of entries matching the filter, newest
	// first, plus the total match count for page math.
	Search(ctx context.Context, filter Filter, page PageRequest) ([]Entry, int64, error)

	// UnpaidImports returns all IMPORT entries with isPaid=false.
	UnpaidImports(ctx context.Context) ([]Entry, error)

	// SetPaid flips an import entry's isPaid flag to true. Returns whether
	// the flag actually changed, NotFoundError for a missing id, and
	// ValidationError when the entry is an export.
	SetPaid(ctx context.Context, id EntryID) (bool, error)
}

// =============================================================================
// SEARCH FILTER & PAGINATION
// =============================================================================

// Filter narrows a transaction search. Zero values mean "no constraint".
// Keyword matches entry note, counterparty id, line notes, and the
// denormalized material name/code.
type Filter struct {
	Keyword   string
	Direction *Direction
	From      *time.Time
	To        *time.Time
}

// PageRequest is a zero-based page selector.
type PageRequest struct {
	Index int
	Size  int
}

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Normalize clamps the request into serveable bounds.
func (p PageRequest) Normalize() PageRequest {
	if p.Index < 0 {
		p.Index = 0
	}
	if p.Size <= 0 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	return p
}

// Offset is the row offset of the first item on the page.
func (p PageRequest) Offset() int { return p.Index * p.Size }

// =============================================================================
// CATALOG - master-data collaborator, consumed read-only by id
// =============================================================================

// Catalog resolves material and counterparty references for display.
// The ledger never writes through this interface; ownership stays with
// the master-data system.
type Catalog interface {
	// Material resolves a material id. ok is false when unknown.
	Material(ctx context.Context, id MaterialID) (Material, bool, error)

	// Materials lists the full material catalog.
	Materials(ctx context.Context) ([]Material, error)

	// CounterpartyName resolves a supplier or department name.
	CounterpartyName(ctx context.Context, kind CounterpartyKind, id string) (string, bool, error)
}
