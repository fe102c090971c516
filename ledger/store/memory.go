// Package store provides an in-memory ledger.Store implementation for
// tests and development. It also implements ledger.Catalog so keyword
// search can match denormalized material names the way the production
// store does.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/medadmin/stock-ledger/ledger"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu             sync.RWMutex
	entries        map[ledger.EntryID]ledger.Entry
	seq            int64
	materials      map[ledger.MaterialID]ledger.Material
	counterparties map[counterpartyKey]string
}

type counterpartyKey struct {
	Kind ledger.CounterpartyKind
	ID   string
}

func NewMemory() *Memory {
	return &Memory{
		entries:        make(map[ledger.EntryID]ledger.Entry),
		materials:      make(map[ledger.MaterialID]ledger.Material),
		counterparties: make(map[counterpartyKey]string),
	}
}

// Create persists the entry with the next creation sequence.
func (m *Memory) Create(_ context.Context, entry ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[entry.ID]; exists {
		return &ledger.ValidationError{Field: "id", Reason: "already exists"}
	}
	m.seq++
	entry.Seq = m.seq
	m.entries[entry.ID] = copyEntry(entry)
	return nil
}

// Replace swaps header and lines, keeping the original sequence and
// creation timestamp.
func (m *Memory) Replace(_ context.Context, entry ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.entries[entry.ID]
	if !ok {
		return &ledger.NotFoundError{EntryID: entry.ID}
	}
	entry.Seq = existing.Seq
	entry.CreatedAt = existing.CreatedAt
	m.entries[entry.ID] = copyEntry(entry)
	return nil
}

func (m *Memory) Remove(_ context.Context, id ledger.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[id]; !ok {
		return &ledger.NotFoundError{EntryID: id}
	}
	delete(m.entries, id)
	return nil
}

func (m *Memory) Get(_ context.Context, id ledger.EntryID) (ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[id]
	if !ok {
		return ledger.Entry{}, &ledger.NotFoundError{EntryID: id}
	}
	return copyEntry(entry), nil
}

func (m *Memory) ListForMaterial(_ context.Context, materialID ledger.MaterialID) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Entry
	for _, e := range m.entries {
		if touches(e, materialID) {
			result = append(result, copyEntry(e))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	return result, nil
}

func (m *Memory) ListMaterialIDs(_ context.Context) ([]ledger.MaterialID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[ledger.MaterialID]bool)
	var ids []ledger.MaterialID
	for _, e := range m.entries {
		for _, l := range e.Lines {
			if !seen[l.MaterialID] {
				seen[l.MaterialID] = true
				ids = append(ids, l.MaterialID)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *Memory) Search(_ context.Context, filter ledger.Filter, page ledger.PageRequest) ([]ledger.Entry, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	page = page.Normalize()

	var matches []ledger.Entry
	for _, e := range m.entries {
		if m.matches(e, filter) {
			matches = append(matches, copyEntry(e))
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Seq > matches[j].Seq })

	total := int64(len(matches))
	start := page.Offset()
	if start >= len(matches) {
		return []ledger.Entry{}, total, nil
	}
	end := start + page.Size
	if end > len(matches) {
		end = len(matches)
	}
	return matches[start:end], total, nil
}

func (m *Memory) UnpaidImports(_ context.Context) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Entry
	for _, e := range m.entries {
		if e.Direction == ledger.DirectionImport && !e.Paid() {
			result = append(result, copyEntry(e))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	return result, nil
}

func (m *Memory) SetPaid(_ context.Context, id ledger.EntryID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok {
		return false, &ledger.NotFoundError{EntryID: id}
	}
	if entry.Direction != ledger.DirectionImport {
		return false, &ledger.ValidationError{Field: "direction", Reason: "only import entries carry a payment flag"}
	}
	if entry.Paid() {
		return false, nil
	}
	paid := true
	entry.IsPaid = &paid
	m.entries[id] = entry
	return true, nil
}

// Reset clears all ledger and catalog data (tests/demo).
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[ledger.EntryID]ledger.Entry)
	m.materials = make(map[ledger.MaterialID]ledger.Material)
	m.counterparties = make(map[counterpartyKey]string)
	m.seq = 0
	return nil
}

// =============================================================================
// CATALOG (ledger.Catalog)
// =============================================================================

func (m *Memory) AddMaterial(mat ledger.Material) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.materials[mat.ID] = mat
}

func (m *Memory) AddCounterparty(kind ledger.CounterpartyKind, id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counterparties[counterpartyKey{Kind: kind, ID: id}] = name
}

func (m *Memory) Material(_ context.Context, id ledger.MaterialID) (ledger.Material, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mat, ok := m.materials[id]
	return mat, ok, nil
}

func (m *Memory) Materials(_ context.Context) ([]ledger.Material, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Material, 0, len(m.materials))
	for _, mat := range m.materials {
		result = append(result, mat)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) CounterpartyName(_ context.Context, kind ledger.CounterpartyKind, id string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.counterparties[counterpartyKey{Kind: kind, ID: id}]
	return name, ok, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// matches mirrors the production store's filter semantics, including
// keyword hits on the denormalized material name/code.
func (m *Memory) matches(e ledger.Entry, f ledger.Filter) bool {
	if f.Direction != nil && e.Direction != *f.Direction {
		return false
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.CreatedAt.After(*f.To) {
		return false
	}
	if f.Keyword == "" {
		return true
	}

	kw := strings.ToLower(f.Keyword)
	if strings.Contains(strings.ToLower(e.Note), kw) ||
		strings.Contains(strings.ToLower(e.CounterpartyID), kw) {
		return true
	}
	for _, l := range e.Lines {
		if strings.Contains(strings.ToLower(l.Note), kw) {
			return true
		}
		if mat, ok := m.materials[l.MaterialID]; ok {
			if strings.Contains(strings.ToLower(mat.Name), kw) ||
				strings.Contains(strings.ToLower(mat.Code), kw) {
				return true
			}
		}
	}
	return false
}

func touches(e ledger.Entry, materialID ledger.MaterialID) bool {
	for _, l := range e.Lines {
		if l.MaterialID == materialID {
			return true
		}
	}
	return false
}

func copyEntry(e ledger.Entry) ledger.Entry {
	out := e
	out.Lines = make([]ledger.Line, len(e.Lines))
	copy(out.Lines, e.Lines)
	if e.IsPaid != nil {
		paid := *e.IsPaid
		out.IsPaid = &paid
	}
	for i, l := range e.Lines {
		if l.ExpiryDate != nil {
			d := *l.ExpiryDate
			out.Lines[i].ExpiryDate = &d
		}
	}
	return out
}
