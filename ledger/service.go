/*
service.go - The write path: validate -> lock -> guard -> commit -> invalidate

PURPOSE:
  Service owns every mutation of the transaction log. The flow is fixed:
  structural validation first (no store work for malformed input), then
  the per-material critical section in which the guard check and the
  store commit are inseparable, then cache maintenance for the
  aggregator.

CRITICAL SECTION:
  Writes are serialized per material: two writes touching disjoint
  materials proceed in parallel, two writes on the same material are
  mutually exclusive for the whole guard-check-then-commit span.
  Without this, two concurrent exports can both pass the guard against
  a stale balance and jointly over-draw stock. Locks are keyed by
  material id and always taken in sorted order, so overlapping writes
  cannot deadlock.

EDIT/DELETE PREMISES:
  Update and Delete read the target entry before locking (the touched
  material set is not known until then) and re-read it inside the
  critical section. If a competing writer changed the entry's material
  footprint in between, the premises are stale and the operation fails
  with ErrConflict - safe for the caller to retry, never silently
  retried here.

FAILURE CONTRACT:
  Every rejected write leaves the store unchanged. Commit is the point
  of no return; there are no automatic retries on either side of it.
*/
package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service coordinates validation, guarding, and persistence of entries.
type Service struct {
	store  Store
	guard  *Guard
	agg    *Aggregator
	logger *zap.Logger
	locks  *materialLocks
}

func NewService(store Store, guard *Guard, agg *Aggregator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		guard:  guard,
		agg:    agg,
		logger: logger,
		locks:  newMaterialLocks(),
	}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Create validates and commits a new entry, returning it with its
// assigned id.
func (s *Service) Create(ctx context.Context, entry Entry) (Entry, error) {
	if err := entry.Validate(); err != nil {
		return Entry{}, err
	}

	entry.ID = EntryID(uuid.NewString())
	entry.CreatedAt = time.Now().UTC()
	normalize(&entry)

	materials := entry.MaterialIDs()
	unlock := s.locks.acquire(materials)
	defer unlock()

	if err := s.guard.CheckCreate(ctx, entry); err != nil {
		return Entry{}, err
	}
	if err := s.store.Create(ctx, entry); err != nil {
		return Entry{}, err
	}

	s.agg.Apply(entryDeltas(entry, 1))
	s.logger.Info("entry created",
		zap.String("entry_id", string(entry.ID)),
		zap.String("direction", string(entry.Direction)),
		zap.Int("lines", len(entry.Lines)))

	created, err := s.store.Get(ctx, entry.ID)
	if err != nil {
		// The commit already happened; fall back to what we wrote.
		return entry, nil
	}
	return created, nil
}

// Update replaces the entry's header and its line set wholesale.
func (s *Service) Update(ctx context.Context, id EntryID, updated Entry) (Entry, error) {
	if err := updated.Validate(); err != nil {
		return Entry{}, err
	}

	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}

	materials := unionMaterials(existing, updated)
	unlock := s.locks.acquire(materials)
	defer unlock()

	// Re-read inside the critical section: a competing write may have
	// changed the entry's material footprint since the unlocked read.
	existing, err = s.store.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if !covered(existing.MaterialIDs(), materials) {
		return Entry{}, ErrConflict
	}

	updated.ID = existing.ID
	updated.Seq = existing.Seq
	updated.CreatedAt = existing.CreatedAt
	if updated.CreatedBy == "" {
		updated.CreatedBy = existing.CreatedBy
	}
	normalize(&updated)

	if err := s.guard.CheckReplace(ctx, existing, updated); err != nil {
		return Entry{}, err
	}
	if err := s.store.Replace(ctx, updated); err != nil {
		return Entry{}, err
	}

	deltas := entryDeltas(existing, -1)
	for m, d := range entryDeltas(updated, 1) {
		deltas[m] += d
	}
	s.agg.Apply(deltas)
	s.logger.Info("entry replaced", zap.String("entry_id", string(id)))

	return s.store.Get(ctx, id)
}

// Delete removes the entry and its lines, provided no later export
// depends on the stock it brought in.
func (s *Service) Delete(ctx context.Context, id EntryID) error {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	materials := existing.MaterialIDs()
	unlock := s.locks.acquire(materials)
	defer unlock()

	existing, err = s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !covered(existing.MaterialIDs(), materials) {
		return ErrConflict
	}

	if err := s.guard.CheckRemove(ctx, existing); err != nil {
		return err
	}
	if err := s.store.Remove(ctx, id); err != nil {
		return err
	}

	s.agg.Apply(entryDeltas(existing, -1))
	s.logger.Info("entry removed", zap.String("entry_id", string(id)))
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// normalize fills derived line fields and the payment flag default:
// imports without an explicit flag start unpaid, exports carry none.
func normalize(e *Entry) {
	if e.Direction == DirectionImport && e.IsPaid == nil {
		unpaid := false
		e.IsPaid = &unpaid
	}
	if e.Direction == DirectionExport {
		e.IsPaid = nil
	}
	for i := range e.Lines {
		e.Lines[i].EntryID = e.ID
		if e.Lines[i].Amount.IsZero() && !e.Lines[i].UnitPrice.IsZero() {
			e.Lines[i].Amount = e.Lines[i].UnitPrice.Mul(decimal.NewFromInt(e.Lines[i].Quantity))
		}
	}
}

// entryDeltas is the entry's net per-material effect, scaled by sign
// (+1 applied, -1 rolled back).
func entryDeltas(e Entry, sign int64) map[MaterialID]int64 {
	deltas := make(map[MaterialID]int64)
	for _, id := range e.MaterialIDs() {
		deltas[id] += e.SignedQuantity(id) * sign
	}
	return deltas
}

func covered(ids, locked []MaterialID) bool {
	held := make(map[MaterialID]bool, len(locked))
	for _, id := range locked {
		held[id] = true
	}
	for _, id := range ids {
		if !held[id] {
			return false
		}
	}
	return true
}

// =============================================================================
// MATERIAL LOCKS - per-material write serialization
// =============================================================================

type materialLocks struct {
	mu    sync.Mutex
	locks map[MaterialID]*sync.Mutex
}

func newMaterialLocks() *materialLocks {
	return &materialLocks{locks: make(map[MaterialID]*sync.Mutex)}
}

// acquire locks the given materials in sorted order and returns the
// matching unlock. Sorted acquisition keeps overlapping writers from
// deadlocking.
func (l *materialLocks) acquire(materialIDs []MaterialID) func() {
	ids := make([]MaterialID, len(materialIDs))
	copy(ids, materialIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	held := make([]*sync.Mutex, 0, len(ids))
	for _, id := range ids {
		l.mu.Lock()
		m, ok := l.locks[id]
		if !ok {
			m = &sync.Mutex{}
			l.locks[id] = m
		}
		l.mu.Unlock()
		m.Lock()
		held = append(held, m)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
