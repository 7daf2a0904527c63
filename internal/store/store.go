// Package store provides the SQLite-backed durable cache: tiered file
// content records, persisted tab sessions, and notebook access metadata.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Tier selects one of the two independent content caches. Records never
// cross tiers: the split-preview tier is invisible to the tab session
// manager and vice versa.
type Tier string

const (
	TierMain  Tier = "main"
	TierSplit Tier = "split"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS files (
	tier          TEXT NOT NULL,
	notebook_id   TEXT NOT NULL,
	path          TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	content       TEXT NOT NULL DEFAULT '',
	file_type     TEXT NOT NULL DEFAULT 'other',
	last_modified TEXT NOT NULL DEFAULT '',
	size          INTEGER NOT NULL DEFAULT 0,
	cached_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	access_count  INTEGER NOT NULL DEFAULT 0,
	last_accessed DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	decode_error  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (tier, notebook_id, path)
);

CREATE INDEX IF NOT EXISTS idx_files_notebook ON files(notebook_id);

CREATE TABLE IF NOT EXISTS sessions (
	notebook_id   TEXT PRIMARY KEY,
	tabs          TEXT NOT NULL DEFAULT '[]',
	active_tab_id TEXT NOT NULL DEFAULT '',
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS notebooks (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL DEFAULT '',
	last_accessed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// DB wraps a sql.DB with cache-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
