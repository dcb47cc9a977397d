// Package db provides the SQLite connection and schema for kl130d.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Exchange ledger - append-only history of commands sent to bulbs
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS exchange_ledger (
			id TEXT PRIMARY KEY,
			device TEXT NOT NULL,
			command TEXT NOT NULL,
			outcome TEXT NOT NULL,
			error TEXT,
			source TEXT,
			payload TEXT,
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_exchange_device_ts ON exchange_ledger(device, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create exchange_ledger table: %w", err)
	}

	// Device metrics - presentation state per bulb, keyed by metric path
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS device_metrics (
			device TEXT NOT NULL,
			path TEXT NOT NULL,
			value TEXT NOT NULL,
			version INTEGER DEFAULT 1,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (device, path)
		);
		CREATE INDEX IF NOT EXISTS idx_device_metrics_device ON device_metrics(device);
	`)
	if err != nil {
		return fmt.Errorf("failed to create device_metrics table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
