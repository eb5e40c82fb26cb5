package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the sqlite database shared by every pipeline stage.
type Store struct {
	db *sql.DB
}

// Open opens the sqlite database at path, creating parent directories and
// applying the pragmas the pipeline relies on (foreign keys for the
// training→center relation, WAL so the extractor and the enrichment worker
// can run against the same file).
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure data dir: %w", err)
		}
	}

	// Pragmas ride on the DSN so every pool connection gets them.
	dsn := path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection sidesteps SQLITE_BUSY between the pipeline
	// stages and keeps in-memory databases on one handle.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle
func (s *Store) DB() *sql.DB {
	return s.db
}
