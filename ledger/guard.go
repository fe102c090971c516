/*
guard.go - Non-negative balance enforcement across creates, edits, deletes

PURPOSE:
  The guard prevents any mutation that would make a material's running
  balance negative at any prefix of its creation-order history. It is a
  pure simulation over the stored history: the proposed entry is
  appended, substituted, or removed in-memory and every prefix sum is
  re-validated before the store commits anything.

WHY RE-VALIDATE THE WHOLE PREFIX SEQUENCE:
  An edit to an early IMPORT can invalidate a later EXPORT that depended
  on its quantity. Checking only the tail would accept history that is
  already broken in the middle, so replace/remove always rebuild and
  re-walk the full sequence for every touched material.

CONCURRENCY:
  Guard checks alone are not atomic. The service runs them inside the
  per-material critical section (see service.go) so "checked OK" and
  "committed" cannot be separated by a competing writer.
*/
package ledger

import (
	"context"
	"sort"
)

// Guard validates proposed mutations against the transaction store.
type Guard struct {
	store Store
}

func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// movement is one entry's net effect on a single material, positioned by
// its creation sequence.
type movement struct {
	seq    int64
	signed int64
}

// =============================================================================
// CHECKS - one per mutation kind
// =============================================================================

// CheckCreate simulates appending the new entry's lines to each affected
// material's history. The entry has no sequence yet; it lands at the end.
func (g *Guard) CheckCreate(ctx context.Context, entry Entry) error {
	for _, materialID := range entry.MaterialIDs() {
		history, err := g.store.ListForMaterial(ctx, materialID)
		if err != nil {
			return err
		}
		moves := movements(history, materialID, "")
		moves = append(moves, movement{seq: maxSeq(moves) + 1, signed: entry.SignedQuantity(materialID)})
		if err := walk(materialID, moves); err != nil {
			return err
		}
	}
	return nil
}

// CheckReplace simulates the history with the target entry's lines
// replaced wholesale. Materials dropped by the edit are re-validated too:
// removing an import's line can break exports that consumed it.
func (g *Guard) CheckReplace(ctx context.Context, existing, updated Entry) error {
	for _, materialID := range unionMaterials(existing, updated) {
		history, err := g.store.ListForMaterial(ctx, materialID)
		if err != nil {
			return err
		}
		moves := movements(history, materialID, existing.ID)
		if signed := updated.SignedQuantity(materialID); signed != 0 {
			// The edit keeps the entry's original position in history.
			moves = insertAt(moves, movement{seq: existing.Seq, signed: signed})
		}
		if err := walk(materialID, moves); err != nil {
			return err
		}
	}
	return nil
}

// CheckRemove simulates the history without the target entry.
func (g *Guard) CheckRemove(ctx context.Context, existing Entry) error {
	for _, materialID := range existing.MaterialIDs() {
		history, err := g.store.ListForMaterial(ctx, materialID)
		if err != nil {
			return err
		}
		if err := walk(materialID, movements(history, materialID, existing.ID)); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// SIMULATION PRIMITIVES
// =============================================================================

// movements flattens a material's history into per-entry net movements,
// skipping the entry identified by drop (empty id drops nothing).
func movements(history []Entry, materialID MaterialID, drop EntryID) []movement {
	moves := make([]movement, 0, len(history))
	for _, e := range history {
		if drop != "" && e.ID == drop {
			continue
		}
		moves = append(moves, movement{seq: e.Seq, signed: e.SignedQuantity(materialID)})
	}
	return moves
}

// walk validates every prefix sum, failing on the first negative balance.
func walk(materialID MaterialID, moves []movement) error {
	var balance int64
	for _, m := range moves {
		balance += m.signed
		if balance < 0 {
			offending := m.signed
			if offending < 0 {
				offending = -offending
			}
			return &ConsistencyError{
				MaterialID:        materialID,
				OffendingQuantity: offending,
				BalanceAtFailure:  balance,
			}
		}
	}
	return nil
}

func insertAt(moves []movement, m movement) []movement {
	i := sort.Search(len(moves), func(i int) bool { return moves[i].seq > m.seq })
	moves = append(moves, movement{})
	copy(moves[i+1:], moves[i:])
	moves[i] = m
	return moves
}

func maxSeq(moves []movement) int64 {
	if len(moves) == 0 {
		return 0
	}
	return moves[len(moves)-1].seq
}

func unionMaterials(a, b Entry) []MaterialID {
	seen := make(map[MaterialID]bool)
	var ids []MaterialID
	for _, id := range append(a.MaterialIDs(), b.MaterialIDs()...) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
