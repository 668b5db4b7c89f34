package domain

import (
	"strings"
	"time"

	"growth_backend/platform/apperr"

	"github.com/google/uuid"
)

// ActorKind identifies who produced an event.
type ActorKind string

const (
	ActorAnonymous ActorKind = "anonymous"
	ActorLead      ActorKind = "lead"
	ActorUser      ActorKind = "user"
)

// Actor is the subject of an event.
type Actor struct {
	Kind        ActorKind
	Fingerprint string
	LeadID      *uuid.UUID
	UserID      string
}

// Validate checks that the actor carries the identifier its kind requires.
func (a Actor) Validate() error {
	switch a.Kind {
	case ActorAnonymous:
		if strings.TrimSpace(a.Fingerprint) == "" {
			return apperr.Validation("anonymous actor requires a fingerprint")
		}
	case ActorLead:
		if a.LeadID == nil || *a.LeadID == uuid.Nil {
			return apperr.Validation("lead actor requires a leadId")
		}
	case ActorUser:
		if strings.TrimSpace(a.UserID) == "" {
			return apperr.Validation("user actor requires a userId")
		}
	default:
		return apperr.Validation("unknown actor kind")
	}
	return nil
}

// EntityKey resolves the aggregation key for an event: the lead when known,
// else the anonymous fingerprint. Events with neither are not attributable.
func EntityKey(leadID *uuid.UUID, fingerprint string) (string, bool) {
	if leadID != nil && *leadID != uuid.Nil {
		return "lead:" + leadID.String(), true
	}
	if fp := strings.TrimSpace(fingerprint); fp != "" {
		return "fp:" + fp, true
	}
	return "", false
}

// Event is an immutable behavioral fact.
type Event struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	CampaignID *uuid.UUID
	Actor      Actor
	Type       EventType
	Weight     int
	Payload    map[string]any
	PII        bool
	OccurredAt time.Time
}

// WeightedEvent is the projection the segment builder scans.
type WeightedEvent struct {
	LeadID      *uuid.UUID
	Fingerprint string
	Weight      int
	OccurredAt  time.Time
}

// Segment is one tier's snapshot for a scope and window.
type Segment struct {
	ID            string
	TenantID      uuid.UUID
	Scope         string
	CampaignID    *uuid.UUID
	Tier          Tier
	MinWeight     int
	WithinDays    int
	Size          int
	WithLeadID    int
	Anonymous     int
	WeightVersion string
	UpdatedAt     time.Time
}

// Membership is the highest tier an entity held at the last action run.
type Membership struct {
	EntityKey string
	LeadID    *uuid.UUID
	Tier      Tier
	Rank      int
	Weight    int
}

// Action is an append-only transition or hook record.
type Action struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Type       string
	EntityID   string
	FromTier   *Tier
	ToTier     *Tier
	CampaignID *uuid.UUID
	Payload    map[string]any
	CreatedAt  time.Time
}

// GlobalSignal is the cross-tenant count of one action topic.
type GlobalSignal struct {
	ID         string
	Topic      string
	Weight     int
	WindowDays int
	UpdatedAt  time.Time
}

// GlobalSignalID keys a topic's rollup record.
func GlobalSignalID(topic string) string {
	return "global_" + topic
}

// ActionHandoffSuppressed is the action type recorded when a handoff
// suppresses a run.
const ActionHandoffSuppressed = "handoff.suppressed"
