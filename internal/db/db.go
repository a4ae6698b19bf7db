// Package db provides the in-memory SQLite database backing the write journal.
package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// OpenMemory opens a private in-memory database and initializes the schema.
// Nothing is written to disk; the data lives as long as the DB is open.
func OpenMemory() (*DB, error) {
	return Open(fmt.Sprintf("file:relayctl-%s?mode=memory&cache=shared", uuid.NewString()))
}

// Open opens the database at dsn and initializes the schema
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database disappears with its last connection; keep exactly one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Write journal - append-only history of outbound writes and their outcomes
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS write_journal (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			property TEXT NOT NULL,
			value REAL NOT NULL,
			attempt INTEGER NOT NULL DEFAULT 1,
			seq INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_journal_ts ON write_journal(timestamp);
		CREATE INDEX IF NOT EXISTS idx_journal_property_ts ON write_journal(property, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create write_journal table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
