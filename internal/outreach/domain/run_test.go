package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunIDIsDeterministicPerPair(t *testing.T) {
	campaign := uuid.New()
	lead := uuid.New()

	assert.Equal(t, RunID(campaign, lead), RunID(campaign, lead))
	assert.NotEqual(t, RunID(campaign, lead), RunID(campaign, uuid.New()))
	assert.NotEqual(t, RunID(campaign, lead), RunID(lead, campaign))
}

func TestStatusPredicates(t *testing.T) {
	tests := []struct {
		status      Status
		terminal    bool
		schedulable bool
	}{
		{StatusPending, false, true},
		{StatusRunning, false, true},
		{StatusCompleted, true, false},
		{StatusFailed, true, false},
		{StatusSuppressed, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.True(t, tt.status.Valid())
			assert.Equal(t, tt.terminal, tt.status.Terminal())
			assert.Equal(t, tt.schedulable, tt.status.Schedulable())
		})
	}
	assert.False(t, Status("paused").Valid())
}

func TestHistoryEntryUsesEpochMillis(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	raw, err := json.Marshal(HistoryEntry{At: at, Channel: "email", OK: true, Message: "intro"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"at":1777888800000,"channel":"email","ok":true,"message":"intro"}`, string(raw))

	var back HistoryEntry
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, at.Equal(back.At))
	assert.Equal(t, "intro", back.Message)
}
