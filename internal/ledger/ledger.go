// Package ledger provides an append-only history of exchanges with bulbs
// for auditing.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome is how an exchange ended
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// Entry represents a single exchange in the ledger
type Entry struct {
	ID        string
	Device    string
	Command   string
	Outcome   Outcome
	Error     string
	Source    string // api, poll, lua, cli
	Payload   map[string]any
	Timestamp time.Time
}

// Ledger provides append-only exchange logging
type Ledger struct {
	db *sql.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Record appends an exchange outcome. A nil err records a completion.
// Returns the generated entry ID.
func (l *Ledger) Record(device, command, source string, payload map[string]any, err error) (string, error) {
	entry := Entry{
		ID:      uuid.New().String(),
		Device:  device,
		Command: command,
		Outcome: OutcomeCompleted,
		Source:  source,
		Payload: payload,
	}
	if err != nil {
		entry.Outcome = OutcomeFailed
		entry.Error = err.Error()
	}
	return entry.ID, l.Append(&entry)
}

// Append adds an entry, filling ID and Timestamp when unset
func (l *Ledger) Append(entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	var payloadJSON []byte
	if entry.Payload != nil {
		var err error
		payloadJSON, err = json.Marshal(entry.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	_, err := l.db.Exec(`
		INSERT INTO exchange_ledger (id, device, command, outcome, error, source, payload, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Device, entry.Command, string(entry.Outcome), entry.Error, entry.Source, string(payloadJSON), entry.Timestamp.Unix())

	return err
}

// Recent returns the latest entries for a device, newest first
func (l *Ledger) Recent(device string, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, device, command, outcome, error, source, payload, timestamp
		FROM exchange_ledger
		WHERE device = ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, device, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// GetByTimeRange returns a device's entries within [start, end], newest first
func (l *Ledger) GetByTimeRange(device string, start, end time.Time, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, device, command, outcome, error, source, payload, timestamp
		FROM exchange_ledger
		WHERE device = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, device, start.Unix(), end.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	result, err := l.db.Exec(`
		DELETE FROM exchange_ledger WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var outcome string
		var errText, source, payloadStr sql.NullString
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &entry.Device, &entry.Command, &outcome, &errText, &source, &payloadStr, &timestamp,
		)
		if err != nil {
			return nil, err
		}

		entry.Outcome = Outcome(outcome)
		entry.Timestamp = time.Unix(timestamp, 0).UTC()
		if errText.Valid {
			entry.Error = errText.String
		}
		if source.Valid {
			entry.Source = source.String
		}

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
