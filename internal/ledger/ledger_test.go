package ledger

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/kl130d/internal/db"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestLedger_Record(t *testing.T) {
	l := openLedger(t)

	id, err := l.Record("desk", "exact", "api", map[string]any{"red": 255}, nil)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)

	_, err = l.Record("desk", "update", "poll", nil, errors.New("timed out waiting for reply"))
	require.NoError(t, err)

	_, err = l.Record("hall", "on", "lua", nil, nil)
	require.NoError(t, err)

	entries, err := l.Recent("desk", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "update", entries[0].Command)
	assert.Equal(t, OutcomeFailed, entries[0].Outcome)
	assert.Equal(t, "timed out waiting for reply", entries[0].Error)
	assert.Equal(t, "poll", entries[0].Source)
	assert.Nil(t, entries[0].Payload)

	assert.Equal(t, id, entries[1].ID)
	assert.Equal(t, OutcomeCompleted, entries[1].Outcome)
	assert.Equal(t, map[string]any{"red": float64(255)}, entries[1].Payload)
}

func TestLedger_RetentionAndRange(t *testing.T) {
	l := openLedger(t)
	now := time.Now().UTC()

	require.NoError(t, l.Append(&Entry{Device: "desk", Command: "on", Outcome: OutcomeCompleted, Timestamp: now.Add(-48 * time.Hour)}))
	require.NoError(t, l.Append(&Entry{Device: "desk", Command: "off", Outcome: OutcomeCompleted, Timestamp: now}))
	require.NoError(t, l.Append(&Entry{Device: "hall", Command: "on", Outcome: OutcomeCompleted, Timestamp: now}))

	entries, err := l.GetByTimeRange("desk", now.Add(-time.Hour), now.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "off", entries[0].Command)

	entries, err = l.GetByTimeRange("desk", now.Add(-72*time.Hour), now.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "on", entries[0].Command)

	deleted, err := l.DeleteOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	entries, err = l.Recent("desk", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
