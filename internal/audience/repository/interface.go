package repository

import (
	"context"
	"time"

	"growth_backend/internal/audience/domain"

	"github.com/google/uuid"
)

// ScanParams bounds a windowed event scan.
type ScanParams struct {
	TenantID   uuid.UUID
	CampaignID *uuid.UUID
	Since      time.Time
	Limit      int
}

// Promotion pairs the new membership of an entity with the action that
// records the transition. The action is only stored if the membership row
// was actually raised.
type Promotion struct {
	Membership domain.Membership
	Action     domain.Action
}

// TransitionSet is everything one action run writes for a scope.
type TransitionSet struct {
	TenantID   uuid.UUID
	ScopeKey   string
	Promotions []Promotion
	// Demotions lowers entities still qualifying for a weaker tier.
	Demotions []domain.Membership
	// Removals drops entities that no longer qualify for any tier.
	Removals []string
	At       time.Time
}

// EventStore appends and scans audience events.
type EventStore interface {
	InsertEvent(ctx context.Context, event domain.Event) error
	ScanEvents(ctx context.Context, params ScanParams) ([]domain.WeightedEvent, error)
}

// SegmentStore persists segment snapshots.
type SegmentStore interface {
	// ReplaceSegments upserts every segment of one build atomically.
	ReplaceSegments(ctx context.Context, segments []domain.Segment) error
	ListSegments(ctx context.Context, tenantID uuid.UUID, campaignID *uuid.UUID) ([]domain.Segment, error)
}

// ActionStore holds memberships and the action log.
type ActionStore interface {
	ListMemberships(ctx context.Context, tenantID uuid.UUID, scopeKey string) (map[string]domain.Membership, error)
	// ApplyTransitions writes memberships and actions in one transaction and
	// returns the actions that were inserted.
	ApplyTransitions(ctx context.Context, set TransitionSet) ([]domain.Action, error)
	ListActions(ctx context.Context, tenantID uuid.UUID, limit int) ([]domain.Action, error)
}

// SignalStore serves the cross-tenant rollup.
type SignalStore interface {
	// ScanActionTypes reads only the type column of actions across tenants.
	ScanActionTypes(ctx context.Context, since time.Time, limit int) ([]string, error)
	// ReplaceGlobalSignals makes signals the whole stored set: topics absent
	// from it are removed in the same transaction.
	ReplaceGlobalSignals(ctx context.Context, signals []domain.GlobalSignal) error
	ListGlobalSignals(ctx context.Context, limit int) ([]domain.GlobalSignal, error)
}

// Repository combines all audience persistence.
type Repository interface {
	EventStore
	SegmentStore
	ActionStore
	SignalStore
}
