// Package storage opens and migrates the shared SQLite database that
// backs the version store and the proposal store. It is a thin durability
// layer: no retries, no business logic. Driver-level failures surface as
// ErrUnavailable so callers can distinguish infrastructure faults from
// domain errors.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrUnavailable wraps any failure of the underlying SQLite layer.
// The in-flight operation is fatal; nothing is partially applied.
var ErrUnavailable = errors.New("storage unavailable")

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Unavailable tags a driver error with ErrUnavailable so that
// errors.Is(err, storage.ErrUnavailable) holds for callers.
func Unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// DB owns the SQLite connection shared by the stores.
type DB struct {
	sql *sql.DB
}

// Open creates the data directory if needed, opens the database with WAL
// mode, and runs the idempotent migrations.
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "memvault.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", Unavailable(err))
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("storage: pragma %q: %w", p, Unavailable(err))
		}
	}

	d := &DB{sql: db}
	if err := d.migrate(); err != nil {
		return nil, fmt.Errorf("storage: migration: %w", err)
	}
	return d, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

// SQL exposes the raw handle to the stores in this module.
func (d *DB) SQL() *sql.DB {
	return d.sql
}

// Begin starts a transaction. Used by the approval engine to make the
// commit-plus-status-flip a single logical unit.
func (d *DB) Begin() (*sql.Tx, error) {
	tx, err := d.sql.Begin()
	if err != nil {
		return nil, Unavailable(err)
	}
	return tx, nil
}

func (d *DB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS commits (
			id          TEXT    NOT NULL,
			user_id     TEXT    NOT NULL,
			block_label TEXT    NOT NULL,
			seq         INTEGER NOT NULL,
			body        TEXT    NOT NULL,
			author      TEXT    NOT NULL,
			message     TEXT    NOT NULL,
			created_at  TEXT    NOT NULL,
			PRIMARY KEY (user_id, block_label, id),
			UNIQUE (user_id, block_label, seq)
		);

		CREATE INDEX IF NOT EXISTS idx_commits_head
			ON commits(user_id, block_label, seq DESC);

		CREATE TABLE IF NOT EXISTS proposals (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			agent_id       TEXT NOT NULL,
			block_label    TEXT NOT NULL,
			field          TEXT NOT NULL DEFAULT '',
			operation      TEXT NOT NULL,
			current_value  TEXT NOT NULL,
			proposed_value TEXT NOT NULL,
			reasoning      TEXT NOT NULL,
			confidence     TEXT NOT NULL,
			status         TEXT NOT NULL DEFAULT 'pending',
			created_at     TEXT NOT NULL,
			reviewed_at    TEXT,
			reviewed_by    TEXT,
			review_note    TEXT,
			applied_commit TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_prop_target
			ON proposals(user_id, block_label, field, status);
		CREATE INDEX IF NOT EXISTS idx_prop_status
			ON proposals(status, created_at);
	`
	if _, err := d.sql.Exec(schema); err != nil {
		return Unavailable(err)
	}
	return nil
}
