// Package domain holds the outreach run state machine and its history model.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSuppressed Status = "suppressed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusSuppressed:
		return true
	}
	return false
}

// Terminal reports whether the run has finished its sequence or failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Schedulable reports whether a run in this status is picked up once due.
func (s Status) Schedulable() bool {
	return s == StatusPending || s == StatusRunning
}

// History channels that are not message transports.
const (
	ChannelSystem  = "system"
	ChannelHandoff = "handoff"
)

// runNamespace seeds the name-based run id.
var runNamespace = uuid.MustParse("6f1c3c1e-4d0b-5b8e-9a57-2f7a3c90d4e1")

// RunID derives the id of the single run a lead can have in a campaign.
func RunID(campaignID, leadID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(runNamespace, []byte(campaignID.String()+":"+leadID.String()))
}

// HistoryEntry records one step outcome or state change. It is never
// rewritten once appended.
type HistoryEntry struct {
	At      time.Time
	Channel string
	OK      bool
	Message string
}

type historyJSON struct {
	At      int64  `json:"at"`
	Channel string `json:"channel"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// MarshalJSON encodes At as epoch milliseconds.
func (h HistoryEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(historyJSON{
		At:      h.At.UnixMilli(),
		Channel: h.Channel,
		OK:      h.OK,
		Message: h.Message,
	})
}

// UnmarshalJSON decodes the epoch millisecond form.
func (h *HistoryEntry) UnmarshalJSON(data []byte) error {
	var raw historyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	h.At = time.UnixMilli(raw.At).UTC()
	h.Channel = raw.Channel
	h.OK = raw.OK
	h.Message = raw.Message
	return nil
}

// Run is one lead's progress through a campaign's sequence.
type Run struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	CampaignID  uuid.UUID
	LeadID      uuid.UUID
	SequenceKey string
	Status      Status
	StepIndex   int
	NextAt      time.Time
	History     []HistoryEntry
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewRun returns a pending run due at now.
func NewRun(tenantID, campaignID, leadID uuid.UUID, sequenceKey string, now time.Time) Run {
	return Run{
		ID:          RunID(campaignID, leadID),
		TenantID:    tenantID,
		CampaignID:  campaignID,
		LeadID:      leadID,
		SequenceKey: sequenceKey,
		Status:      StatusPending,
		NextAt:      now,
		History:     []HistoryEntry{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Patch is a merge-style update. Nil fields are left untouched and History
// entries are appended. When Expect is non-empty the patch only applies to a
// run currently in one of those statuses.
type Patch struct {
	Status         *Status
	StepIndex      *int
	NextAt         *time.Time
	SequenceKey    *string
	LastError      *string
	ClearLastError bool
	Append         []HistoryEntry
	Expect         []Status
}

// Outcome reports what CreateOrReset did.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeReset     Outcome = "reset"
	OutcomeUnchanged Outcome = "unchanged"
)
