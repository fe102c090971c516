/*
Package sqlite provides the SQLite-backed implementation of the ledger
storage interfaces.

PURPOSE:
  Implements ledger.Store (transaction log) and ledger.Catalog
  (master-data reference resolution) on a single SQLite file. The same
  patterns apply to PostgreSQL - only minor dialect differences.

ATOMICITY:
  Create/Replace/Remove wrap the entry row and its line rows in one SQL
  transaction. A failure at any point rolls the whole mutation back, so
  partial persistence is never observable.

CREATION ORDER:
  entries.seq is an AUTOINCREMENT rowid: the commit order of creates.
  Replace updates in place and never touches seq, so edits cannot
  reorder history. Every history read orders by seq.

KEY TABLES:
  entries:      transaction headers (direction, counterparty, payment flag)
  entry_lines:  line items, composition-owned by their entry
  materials:    master-data reference (denormalization only)
  suppliers, departments: counterparty references

WAL MODE:
  The database is opened with WAL so readers never block on the single
  writer and a reader sees either the pre- or post-commit state of a
  multi-line entry, never half of one.

SEE ALSO:
  - ledger/store.go:        interface contracts
  - ledger/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/medadmin/stock-ledger/ledger"
)

// Store implements ledger.Store and ledger.Catalog on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer anyway, and an in-memory database is
	// scoped to its connection; one pooled connection serves both cases.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Transaction log headers
	CREATE TABLE IF NOT EXISTS entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		direction TEXT NOT NULL,
		counterparty_kind TEXT NOT NULL,
		counterparty_id TEXT NOT NULL,
		note TEXT,
		is_paid INTEGER,          -- NULL for exports
		created_at TEXT NOT NULL,
		created_by TEXT
	);

	-- Line items: composition, deleted with their entry
	CREATE TABLE IF NOT EXISTS entry_lines (
		entry_id TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
		material_id TEXT NOT NULL,
		material_kind TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		expiry_date TEXT,
		unit_price TEXT NOT NULL,
		amount TEXT NOT NULL,
		note TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_lines_entry ON entry_lines(entry_id);
	-- Hot path: per-material history folds and guard checks
	CREATE INDEX IF NOT EXISTS idx_lines_material ON entry_lines(material_id);
	CREATE INDEX IF NOT EXISTS idx_entries_direction_paid ON entries(direction, is_paid);
	CREATE INDEX IF NOT EXISTS idx_entries_created_at ON entries(created_at);

	-- Master-data references (owned by the catalog system; mirrored here
	-- for denormalization and keyword search)
	CREATE TABLE IF NOT EXISTS materials (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		code TEXT NOT NULL,
		kind TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS suppliers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS departments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTION STORE (ledger.Store)
// =============================================================================

// Create persists the entry and all its lines in one SQL transaction.
func (s *Store) Create(ctx context.Context, entry ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return transient("begin create", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entries (id, direction, counterparty_kind, counterparty_id, note, is_paid, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Direction,
		entry.CounterpartyKind,
		entry.CounterpartyID,
		entry.Note,
		nullBool(entry.IsPaid),
		entry.CreatedAt.UTC().Format(timeLayout),
		entry.CreatedBy,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return &ledger.ValidationError{Field: "id", Reason: "already exists"}
		}
		return transient("insert entry", err)
	}

	if err := insertLines(ctx, tx, entry.ID, entry.Lines); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return transient("commit create", err)
	}
	return nil
}

// Replace swaps the header fields and the full line set atomically,
// keeping seq and created_at untouched.
func (s *Store) Replace(ctx context.Context, entry ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return transient("begin replace", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE entries
		SET direction = ?, counterparty_kind = ?, counterparty_id = ?, note = ?, is_paid = ?, created_by = ?
		WHERE id = ?`,
		entry.Direction,
		entry.CounterpartyKind,
		entry.CounterpartyID,
		entry.Note,
		nullBool(entry.IsPaid),
		entry.CreatedBy,
		entry.ID,
	)
	if err != nil {
		return transient("update entry", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{EntryID: entry.ID}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM entry_lines WHERE entry_id = ?`, entry.ID); err != nil {
		return transient("delete lines", err)
	}
	if err := insertLines(ctx, tx, entry.ID, entry.Lines); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return transient("commit replace", err)
	}
	return nil
}

// Remove deletes the entry and its lines atomically.
func (s *Store) Remove(ctx context.Context, id ledger.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return transient("begin remove", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entry_lines WHERE entry_id = ?`, id); err != nil {
		return transient("delete lines", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return transient("delete entry", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{EntryID: id}
	}
	if err := tx.Commit(); err != nil {
		return transient("commit remove", err)
	}
	return nil
}

// Get loads one entry with its lines.
func (s *Store) Get(ctx context.Context, id ledger.EntryID) (ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.queryEntries(ctx, entrySelect+` WHERE id = ?`, id)
	if err != nil {
		return ledger.Entry{}, err
	}
	if len(entries) == 0 {
		return ledger.Entry{}, &ledger.NotFoundError{EntryID: id}
	}
	return entries[0], nil
}

// ListForMaterial returns every entry touching the material, oldest
// first in creation order.
func (s *Store) ListForMaterial(ctx context.Context, materialID ledger.MaterialID) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEntries(ctx, entrySelect+`
		WHERE EXISTS (SELECT 1 FROM entry_lines l WHERE l.entry_id = entries.id AND l.material_id = ?)
		ORDER BY seq ASC`, materialID)
}

// ListMaterialIDs returns the distinct materials referenced by any line.
func (s *Store) ListMaterialIDs(ctx context.Context) ([]ledger.MaterialID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT material_id FROM entry_lines ORDER BY material_id`)
	if err != nil {
		return nil, transient("query material ids", err)
	}
	defer rows.Close()

	var ids []ledger.MaterialID
	for rows.Next() {
		var id ledger.MaterialID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Search filters and paginates server-side, newest first. Keyword hits
// entry notes, counterparty ids, line notes, and denormalized material
// name/code.
func (s *Store) Search(ctx context.Context, filter ledger.Filter, page ledger.PageRequest) ([]ledger.Entry, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page = page.Normalize()

	var where []string
	var args []any

	if filter.Direction != nil {
		where = append(where, `direction = ?`)
		args = append(args, *filter.Direction)
	}
	if filter.From != nil {
		where = append(where, `created_at >= ?`)
		args = append(args, filter.From.UTC().Format(timeLayout))
	}
	if filter.To != nil {
		where = append(where, `created_at <= ?`)
		args = append(args, filter.To.UTC().Format(timeLayout))
	}
	if filter.Keyword != "" {
		kw := "%" + filter.Keyword + "%"
		where = append(where, `(
			note LIKE ? OR counterparty_id LIKE ? OR EXISTS (
				SELECT 1 FROM entry_lines l
				LEFT JOIN materials m ON m.id = l.material_id
				WHERE l.entry_id = entries.id
				  AND (l.note LIKE ? OR m.name LIKE ? OR m.code LIKE ?)
			))`)
		args = append(args, kw, kw, kw, kw, kw)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`+clause, args...).Scan(&total); err != nil {
		return nil, 0, transient("count entries", err)
	}

	pageArgs := append(append([]any{}, args...), page.Size, page.Offset())
	entries, err := s.queryEntries(ctx, entrySelect+clause+` ORDER BY seq DESC LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// UnpaidImports returns all import entries still flagged unpaid.
func (s *Store) UnpaidImports(ctx context.Context) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEntries(ctx, entrySelect+`
		WHERE direction = ? AND is_paid = 0
		ORDER BY seq ASC`, ledger.DirectionImport)
}

// SetPaid flips an import's payment flag. Already-paid is a no-op.
func (s *Store) SetPaid(ctx context.Context, id ledger.EntryID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var direction ledger.Direction
	var isPaid sql.NullBool
	err := s.db.QueryRowContext(ctx,
		`SELECT direction, is_paid FROM entries WHERE id = ?`, id,
	).Scan(&direction, &isPaid)
	if err == sql.ErrNoRows {
		return false, &ledger.NotFoundError{EntryID: id}
	}
	if err != nil {
		return false, transient("query entry", err)
	}
	if direction != ledger.DirectionImport {
		return false, &ledger.ValidationError{Field: "direction", Reason: "only import entries carry a payment flag"}
	}
	if isPaid.Valid && isPaid.Bool {
		return false, nil
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE entries SET is_paid = 1 WHERE id = ?`, id); err != nil {
		return false, transient("update payment flag", err)
	}
	return true, nil
}

// =============================================================================
// CATALOG (ledger.Catalog)
// =============================================================================

func (s *Store) Material(ctx context.Context, id ledger.MaterialID) (ledger.Material, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m ledger.Material
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, code, kind FROM materials WHERE id = ?`, id,
	).Scan(&m.ID, &m.Name, &m.Code, &m.Kind)
	if err == sql.ErrNoRows {
		return ledger.Material{}, false, nil
	}
	if err != nil {
		return ledger.Material{}, false, transient("query material", err)
	}
	return m, true, nil
}

func (s *Store) Materials(ctx context.Context) ([]ledger.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, code, kind FROM materials ORDER BY name`)
	if err != nil {
		return nil, transient("query materials", err)
	}
	defer rows.Close()

	var materials []ledger.Material
	for rows.Next() {
		var m ledger.Material
		if err := rows.Scan(&m.ID, &m.Name, &m.Code, &m.Kind); err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

func (s *Store) CounterpartyName(ctx context.Context, kind ledger.CounterpartyKind, id string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table := "suppliers"
	if kind == ledger.CounterpartyDepartment {
		table = "departments"
	}

	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM `+table+` WHERE id = ?`, id).Scan(&name)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, transient("query counterparty", err)
	}
	return name, true, nil
}

// SaveMaterial upserts a catalog reference record (seed/sync path).
func (s *Store) SaveMaterial(ctx context.Context, m ledger.Material) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO materials (id, name, code, kind) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, code = excluded.code, kind = excluded.kind`,
		m.ID, m.Name, m.Code, m.Kind)
	return err
}

// SaveCounterparty upserts a supplier or department reference record.
func (s *Store) SaveCounterparty(ctx context.Context, c ledger.Counterparty) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := "suppliers"
	if c.Kind == ledger.CounterpartyDepartment {
		table = "departments"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO `+table+` (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		c.ID, c.Name)
	return err
}

// Reset clears all data (tests/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"entry_lines", "entries", "materials", "suppliers", "departments"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// ROW MAPPING
// =============================================================================

// timeLayout is a fixed-width RFC 3339 form. RFC3339Nano trims trailing
// fractional zeros, and the date filters compare created_at as text, so
// a trimmed "…59.5Z" would sort after "…59Z" within the same second.
// Padding the fraction to nine digits keeps string order equal to time
// order. Rows are read back with RFC3339Nano, which accepts any
// fraction width.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const entrySelect = `
	SELECT seq, id, direction, counterparty_kind, counterparty_id, note, is_paid, created_at, created_by
	FROM entries`

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, transient("query entries", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range entries {
		lines, err := s.loadLines(ctx, entries[i].ID)
		if err != nil {
			return nil, err
		}
		entries[i].Lines = lines
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (ledger.Entry, error) {
	var (
		e         ledger.Entry
		note      sql.NullString
		isPaid    sql.NullBool
		createdAt string
		createdBy sql.NullString
	)
	if err := rows.Scan(&e.Seq, &e.ID, &e.Direction, &e.CounterpartyKind, &e.CounterpartyID,
		&note, &isPaid, &createdAt, &createdBy); err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}
	e.Note = note.String
	e.CreatedBy = createdBy.String
	if isPaid.Valid {
		paid := isPaid.Bool
		e.IsPaid = &paid
	}
	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("entry %s: bad created_at %q: %w", e.ID, createdAt, err)
	}
	e.CreatedAt = parsed
	return e, nil
}

func (s *Store) loadLines(ctx context.Context, entryID ledger.EntryID) ([]ledger.Line, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, material_id, material_kind, quantity, expiry_date, unit_price, amount, note
		FROM entry_lines WHERE entry_id = ? ORDER BY rowid ASC`, entryID)
	if err != nil {
		return nil, transient("query lines", err)
	}
	defer rows.Close()

	var lines []ledger.Line
	for rows.Next() {
		var (
			l         ledger.Line
			expiry    sql.NullString
			unitPrice string
			amount    string
			note      sql.NullString
		)
		if err := rows.Scan(&l.EntryID, &l.MaterialID, &l.MaterialKind, &l.Quantity,
			&expiry, &unitPrice, &amount, &note); err != nil {
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}
		l.UnitPrice = mustDecimal(unitPrice)
		l.Amount = mustDecimal(amount)
		l.Note = note.String
		if expiry.Valid && expiry.String != "" {
			if d, err := time.Parse("2006-01-02", expiry.String); err == nil {
				l.ExpiryDate = &d
			}
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func insertLines(ctx context.Context, tx *sql.Tx, entryID ledger.EntryID, lines []ledger.Line) error {
	for _, l := range lines {
		var expiry any
		if l.ExpiryDate != nil {
			expiry = l.ExpiryDate.Format("2006-01-02")
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO entry_lines (entry_id, material_id, material_kind, quantity, expiry_date, unit_price, amount, note)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			entryID, l.MaterialID, l.MaterialKind, l.Quantity,
			expiry, l.UnitPrice.String(), l.Amount.String(), l.Note)
		if err != nil {
			return transient("insert line", err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// transient tags datastore failures as retryable per the error taxonomy.
func transient(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, ledger.ErrStoreUnavailable)
}
