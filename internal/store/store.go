// Package store manages the local spatial dataset: a SQLite database
// holding the SERVICE_REQUESTS table with a GeoJSON point geometry per row,
// plus sync-run bookkeeping.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SRID is the spatial reference of all stored geometry (WGS84 geographic).
const SRID = 4326

// DB wraps the SQLite spatial store.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens the store at the given path and brings the schema
// up to date. Safe to call repeatedly; schema setup is idempotent.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the store.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the store file path.
func (db *DB) Path() string {
	return db.path
}
