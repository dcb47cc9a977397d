package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Store persists device metrics in SQLite as JSON values with a version
// counter per (device, path).
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore creates a new metric store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the value stored under (device, path), or nil if absent.
func (s *Store) Get(device, path string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRow(`
		SELECT value FROM device_metrics
		WHERE device = ? AND path = ?
	`, device, path).Scan(&raw)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metric %s: %w", path, err)
	}
	return value, nil
}

// Set stores value, incrementing the version automatically.
func (s *Store) Set(device, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal metric %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Unix()

	_, err = s.db.Exec(`
		INSERT INTO device_metrics (device, path, value, version, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(device, path) DO UPDATE SET
			value = excluded.value,
			version = version + 1,
			updated_at = excluded.updated_at
	`, device, path, string(data), now)

	if err == nil {
		log.Debug().
			Str("device", device).
			Str("path", path).
			RawJSON("value", data).
			Msg("Metric set")
	}

	return err
}

// Version returns the number of writes to (device, path), 0 if never set.
func (s *Store) Version(device, path string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var version int64
	err := s.db.QueryRow(`
		SELECT version FROM device_metrics
		WHERE device = ? AND path = ?
	`, device, path).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return version, err
}

// Snapshot returns all metrics of a device keyed by path.
func (s *Store) Snapshot(device string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT path, value FROM device_metrics WHERE device = ?
	`, device)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var path, raw string
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, err
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metric %s: %w", path, err)
		}
		out[path] = value
	}

	return out, rows.Err()
}

// Clear removes all metrics of a device. If device is empty, clears everything.
func (s *Store) Clear(device string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if device == "" {
		_, err = s.db.Exec(`DELETE FROM device_metrics`)
	} else {
		_, err = s.db.Exec(`DELETE FROM device_metrics WHERE device = ?`, device)
	}

	return err
}
