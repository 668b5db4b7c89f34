// Package service implements the audience pipeline: event ingestion, segment
// builds, the cross-tenant rollup and tier-transition detection.
package service

import (
	"context"
	"strings"
	"time"

	"growth_backend/internal/audience/domain"
	"growth_backend/internal/audience/repository"
	"growth_backend/platform/apperr"
	"growth_backend/platform/logger"
	"growth_backend/platform/metrics"

	"github.com/google/uuid"
)

// RecordInput is one behavioral fact to append. There is deliberately no
// weight field: weight always comes from the weight table.
type RecordInput struct {
	TenantID   uuid.UUID
	CampaignID *uuid.UUID
	Actor      domain.Actor
	Type       domain.EventType
	Payload    map[string]any
	// OccurredAt dates events relayed from other modules. Zero, or a time
	// ahead of the ingestor's clock, means now.
	OccurredAt time.Time
}

// Ingestor appends audience events.
type Ingestor struct {
	repo   repository.EventStore
	log    *logger.Logger
	region string
	now    func() time.Time
}

// NewIngestor creates an ingestor. region is the default phone region used
// to recognise phone numbers in payloads.
func NewIngestor(repo repository.EventStore, region string, log *logger.Logger) *Ingestor {
	return &Ingestor{repo: repo, log: log, region: region, now: time.Now}
}

// SetClock replaces the time source.
func (i *Ingestor) SetClock(now func() time.Time) {
	i.now = now
}

// Record validates and persists one event. A store failure is returned
// unchanged and nothing is retried; callers decide whether to retry.
func (i *Ingestor) Record(ctx context.Context, in RecordInput) (domain.Event, error) {
	if in.TenantID == uuid.Nil {
		return domain.Event{}, apperr.Validation("tenantId is required")
	}
	if !in.Type.Valid() {
		return domain.Event{}, apperr.Validation("unknown event type").WithDetails(map[string]any{
			"type": string(in.Type),
		})
	}
	if err := in.Actor.Validate(); err != nil {
		return domain.Event{}, err
	}
	if paths := domain.FindPII(in.Payload, i.region); len(paths) > 0 {
		return domain.Event{}, apperr.Validation("payload contains personal data").WithDetails(map[string]any{
			"fields": paths,
		})
	}

	occurredAt := i.now().UTC()
	if !in.OccurredAt.IsZero() && in.OccurredAt.Before(occurredAt) {
		occurredAt = in.OccurredAt.UTC()
	}

	event := domain.Event{
		ID:         uuid.New(),
		TenantID:   in.TenantID,
		CampaignID: in.CampaignID,
		Actor:      normalizeActor(in.Actor),
		Type:       in.Type,
		Weight:     domain.Weight(in.Type),
		Payload:    in.Payload,
		PII:        false,
		OccurredAt: occurredAt,
	}

	if err := i.repo.InsertEvent(ctx, event); err != nil {
		return domain.Event{}, err
	}

	metrics.EventsRecorded.WithLabelValues(string(event.Type)).Inc()
	i.log.Debug("audience event recorded", "tenantId", event.TenantID, "type", event.Type, "eventId", event.ID)
	return event, nil
}

func normalizeActor(a domain.Actor) domain.Actor {
	a.Fingerprint = strings.TrimSpace(a.Fingerprint)
	a.UserID = strings.TrimSpace(a.UserID)
	return a
}
