package progress

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one reconciled file of an upload.
type Entry struct {
	ID          int64
	Transaction int64
	Batch       int
	Path        string
	Kind        string
	Size        uint64
	Status      string
	Message     string
	At          time.Time
}

// Ledger keeps a durable history of upload outcomes in sqlite.
type Ledger struct {
	db   *sql.DB
	path string
}

var schema = []string{
	`PRAGMA journal_mode=WAL;`,
	`CREATE TABLE IF NOT EXISTS uploads (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  transaction_id INTEGER NOT NULL,
  batch INTEGER NOT NULL,
  path TEXT NOT NULL,
  kind TEXT NOT NULL,
  size INTEGER NOT NULL,
  status TEXT NOT NULL,
  message TEXT NOT NULL DEFAULT '',
  recorded_at TEXT NOT NULL
);`,
	`CREATE INDEX IF NOT EXISTS idx_uploads_path ON uploads(path);`,
	`CREATE INDEX IF NOT EXISTS idx_uploads_transaction ON uploads(transaction_id);`,
}

// OpenLedger opens or creates the ledger database at path.
func OpenLedger(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("could not create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init ledger: %w", err)
		}
	}
	return &Ledger{db: db, path: path}, nil
}

// Record appends one entry. A zero At is replaced with the current time.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
INSERT INTO uploads (transaction_id, batch, path, kind, size, status, message, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Transaction, e.Batch, e.Path, e.Kind, int64(e.Size), e.Status, e.Message,
		e.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record %s: %w", filepath.Base(e.Path), err)
	}
	return nil
}

// History returns the most recent entries, newest first.
func (l *Ledger) History(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT id, transaction_id, batch, path, kind, size, status, message, recorded_at
FROM uploads
ORDER BY id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			size int64
			at   string
		)
		if err := rows.Scan(&e.ID, &e.Transaction, &e.Batch, &e.Path, &e.Kind, &size, &e.Status, &e.Message, &at); err != nil {
			return nil, err
		}
		e.Size = uint64(size)
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats counts entries per status.
func (l *Ledger) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM uploads GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats[status] = n
	}
	return stats, rows.Err()
}

// Path returns the database file.
func (l *Ledger) Path() string {
	return l.path
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
