// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary
// builds without a C compiler and the tests can use ":memory:" databases.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB   : a connection pool (NOT a single connection!)
//   - sql.Row  : a single result row
//   - sql.Rows : multiple result rows (must be closed!)
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool. Identities and Recipes return the
// per-table repositories that share it.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/foodlens.db" → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty
	// database, so pin the pool to a single connection.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	// email is the natural key. COLLATE BINARY (the default) keeps it
	// case-sensitive: "A@x.com" and "a@x.com" are different identities.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS identities (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT,
			name          TEXT NOT NULL DEFAULT '',
			federated     INTEGER NOT NULL DEFAULT 0,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating identities table: %w", err)
	}

	// recipe holds the client's free-form "recipe" value as JSON text;
	// extra holds any other top-level fields as a JSON object.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS recipes (
			id         TEXT PRIMARY KEY,
			owner      TEXT NOT NULL,
			title      TEXT NOT NULL,
			note       TEXT NOT NULL DEFAULT '',
			recipe     TEXT,
			extra      TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_recipes_owner_title ON recipes(owner, title);
		CREATE INDEX IF NOT EXISTS idx_recipes_owner_created_at ON recipes(owner, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating recipes table: %w", err)
	}

	return nil
}
