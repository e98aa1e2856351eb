package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/reachcore/journal/digest"
)

// SQLiteBackend persists packed resources in a single SQLite table,
// adapted from the teacher's root storage.go / internal/storage.SQLiteStore
// (sql.Open + WAL pragma + migrate-on-open), swapping the run/event/audit
// schema for a flat content-addressed table. Uses modernc.org/sqlite (the
// pure-Go driver the runner service itself depends on) rather than
// mattn/go-sqlite3, to keep the runner's own dependency closure exercised.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_busy_timeout=5000&_journal_mode=WAL&_sync=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS resources (
		digest TEXT PRIMARY KEY,
		type_id TEXT NOT NULL,
		bytes BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate sqlite: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (s *SQLiteBackend) Close() error { return s.db.Close() }

func (s *SQLiteBackend) Commit(d digest.Digest, packed []byte) error {
	typeID := extractTypeID(packed)
	_, err := s.db.ExecContext(context.Background(),
		"INSERT OR IGNORE INTO resources(digest, type_id, bytes) VALUES (?, ?, ?)",
		string(d), typeID, packed)
	return err
}

func (s *SQLiteBackend) Has(d digest.Digest) (bool, error) {
	var exists int
	err := s.db.QueryRow("SELECT 1 FROM resources WHERE digest = ?", string(d)).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteBackend) Get(d digest.Digest) ([]byte, error) {
	var b []byte
	err := s.db.QueryRow("SELECT bytes FROM resources WHERE digest = ?", string(d)).Scan(&b)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return b, err
}

// GC is a no-op: eviction policy is a backend's own business per spec.md's
// Non-goals, and nothing in the resources table is ever debris.
func (s *SQLiteBackend) GC() (int, error) { return 0, nil }

func (s *SQLiteBackend) Stats() (count int, bytes int64, err error) {
	row := s.db.QueryRow("SELECT COUNT(*), COALESCE(SUM(LENGTH(bytes)), 0) FROM resources")
	err = row.Scan(&count, &bytes)
	return count, bytes, err
}

// extractTypeID pulls the type_id.name out of canonical bytes for the
// informational type_id column, without a full unpack (which would need a
// registry). Best-effort: falls back to empty on any parse failure.
func extractTypeID(packed []byte) string {
	var raw struct {
		TypeID struct {
			Name string `json:"name"`
		} `json:"type_id"`
	}
	if err := json.Unmarshal(packed, &raw); err != nil {
		return ""
	}
	return raw.TypeID.Name
}
