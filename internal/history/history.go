// Package history provides SQLite-backed storage of gate decisions.
// Unlike the append-only audit stream it can be queried by statement
// text, status, or recency.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sadopc/sqlgate/internal/config"
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS decisions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	statement    TEXT NOT NULL,
	rewritten    TEXT,
	principal    TEXT,
	status       TEXT NOT NULL,
	reason_code  TEXT,
	backend      TEXT,
	decided_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
	duration_ms  INTEGER,
	row_count    INTEGER
)`

// Entry represents one gate decision.
type Entry struct {
	ID         int64
	Statement  string
	Rewritten  string
	Principal  string
	Status     string
	ReasonCode string
	Backend    string
	DecidedAt  time.Time
	DurationMS int64
	RowCount   int64
}

// History provides SQLite-backed decision storage.
type History struct {
	db *sql.DB
}

// New opens (or creates) the decision database at ConfigDir()/history.db
// and ensures the schema exists.
func New() (*History, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return nil, fmt.Errorf("history: config dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("history: create dir: %w", err)
	}
	return Open(filepath.Join(dir, "history.db"))
}

// Open opens (or creates) the decision database at the given path.
func Open(path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create table: %w", err)
	}

	return &History{db: db}, nil
}

// Add inserts a new decision entry.
func (h *History) Add(entry Entry) error {
	_, err := h.db.Exec(
		`INSERT INTO decisions (statement, rewritten, principal, status, reason_code, backend, decided_at, duration_ms, row_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Statement,
		entry.Rewritten,
		entry.Principal,
		entry.Status,
		entry.ReasonCode,
		entry.Backend,
		entry.DecidedAt,
		entry.DurationMS,
		entry.RowCount,
	)
	if err != nil {
		return fmt.Errorf("history add: %w", err)
	}
	return nil
}

// Search returns entries whose statement text matches the given pattern
// using SQL LIKE. Results are ordered by most recent first, limited to
// limit rows.
func (h *History) Search(pattern string, limit int) ([]Entry, error) {
	rows, err := h.db.Query(
		`SELECT id, statement, rewritten, principal, status, reason_code, backend, decided_at, duration_ms, row_count
		 FROM decisions
		 WHERE statement LIKE ?
		 ORDER BY decided_at DESC
		 LIMIT ?`,
		pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history search: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Recent returns the most recent entries, limited to limit rows.
func (h *History) Recent(limit int) ([]Entry, error) {
	rows, err := h.db.Query(
		`SELECT id, statement, rewritten, principal, status, reason_code, backend, decided_at, duration_ms, row_count
		 FROM decisions
		 ORDER BY decided_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history recent: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ByStatus returns the most recent entries with the given status,
// limited to limit rows.
func (h *History) ByStatus(status string, limit int) ([]Entry, error) {
	rows, err := h.db.Query(
		`SELECT id, statement, rewritten, principal, status, reason_code, backend, decided_at, duration_ms, row_count
		 FROM decisions
		 WHERE status = ?
		 ORDER BY decided_at DESC
		 LIMIT ?`,
		status, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history by status: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Clear deletes all entries.
func (h *History) Clear() error {
	if _, err := h.db.Exec(`DELETE FROM decisions`); err != nil {
		return fmt.Errorf("history clear: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (h *History) Close() error {
	return h.db.Close()
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID,
			&e.Statement,
			&e.Rewritten,
			&e.Principal,
			&e.Status,
			&e.ReasonCode,
			&e.Backend,
			&e.DecidedAt,
			&e.DurationMS,
			&e.RowCount,
		); err != nil {
			return nil, fmt.Errorf("history scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history rows: %w", err)
	}
	return entries, nil
}
