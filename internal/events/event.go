// Package events defines the domain events exchanged by the outreach,
// handoff and audience modules. The bus itself lives in platform/events.
package events

import (
	"growth_backend/platform/events"

	"github.com/google/uuid"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

var (
	NewBaseEvent   = events.NewBaseEvent
	NewInMemoryBus = events.NewInMemoryBus
)

// =============================================================================
// Outreach Domain Events
// =============================================================================

// OutreachStepSent is published after a sequence step was delivered.
type OutreachStepSent struct {
	BaseEvent
	RunID      uuid.UUID `json:"runId"`
	CampaignID uuid.UUID `json:"campaignId"`
	LeadID     uuid.UUID `json:"leadId"`
	Channel    string    `json:"channel"`
	StepIndex  int       `json:"stepIndex"`
	Template   string    `json:"template"`
}

func (e OutreachStepSent) EventName() string { return "outreach.step.sent" }

// OutreachRunFailed is published when a run moves to failed.
type OutreachRunFailed struct {
	BaseEvent
	RunID      uuid.UUID `json:"runId"`
	CampaignID uuid.UUID `json:"campaignId"`
	LeadID     uuid.UUID `json:"leadId"`
	Channel    string    `json:"channel,omitempty"`
	Error      string    `json:"error"`
}

func (e OutreachRunFailed) EventName() string { return "outreach.run.failed" }

// =============================================================================
// Handoff Domain Events
// =============================================================================

// HandoffTicketCreated is published after a human takeover suppressed a run.
type HandoffTicketCreated struct {
	BaseEvent
	TicketID   uuid.UUID `json:"ticketId"`
	RunID      uuid.UUID `json:"runId"`
	CampaignID uuid.UUID `json:"campaignId"`
	LeadID     uuid.UUID `json:"leadId"`
	Reason     string    `json:"reason"`
}

func (e HandoffTicketCreated) EventName() string { return "handoff.ticket.created" }

// HandoffTicketResolved is published when an operator closes a ticket.
type HandoffTicketResolved struct {
	BaseEvent
	TicketID         uuid.UUID `json:"ticketId"`
	RunID            uuid.UUID `json:"runId"`
	ResumeAutomation bool      `json:"resumeAutomation"`
	Resumed          bool      `json:"resumed"`
}

func (e HandoffTicketResolved) EventName() string { return "handoff.ticket.resolved" }

// =============================================================================
// Audience Domain Events
// =============================================================================

// AudiencePromoted is published for every tier promotion the action runner
// records.
type AudiencePromoted struct {
	BaseEvent
	ActionID   uuid.UUID  `json:"actionId"`
	EntityID   string     `json:"entityId"`
	FromTier   string     `json:"fromTier,omitempty"`
	ToTier     string     `json:"toTier"`
	CampaignID *uuid.UUID `json:"campaignId,omitempty"`
}

func (e AudiencePromoted) EventName() string { return "audience.entity.promoted" }
