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

const (
	day              = 24 * time.Hour
	maxWindowDays    = 365
	defaultScanCap   = 5000
	defaultWindowDay = 30
)

// BuildOptions selects the window and scope of a build.
type BuildOptions struct {
	// WithinDays defaults to the configured window when zero.
	WithinDays int
	CampaignID *uuid.UUID
}

// BuildResult summarises one build.
type BuildResult struct {
	Segments      []domain.Segment
	ScannedEvents int
	Entities      int
	WithinDays    int
	// Truncated is set when the scan cap was reached and older events in
	// the window were not counted.
	Truncated bool
}

type entityTotal struct {
	LeadID *uuid.UUID
	Weight int
}

// BuilderSettings configures the segment builder.
type BuilderSettings struct {
	Tiers             domain.Tiers
	DefaultWindowDays int
	ScanCap           int
}

// SegmentBuilder aggregates event weights per entity into tiered segments.
type SegmentBuilder struct {
	repo     segmentRepo
	settings BuilderSettings
	log      *logger.Logger
	now      func() time.Time
}

type segmentRepo interface {
	repository.EventStore
	repository.SegmentStore
}

// NewSegmentBuilder creates a builder. Zero settings fall back to the
// default tiers, a 30 day window and a 5000 event scan cap.
func NewSegmentBuilder(repo segmentRepo, settings BuilderSettings, log *logger.Logger) *SegmentBuilder {
	if len(settings.Tiers) == 0 {
		settings.Tiers = domain.DefaultTiers()
	}
	if settings.DefaultWindowDays <= 0 {
		settings.DefaultWindowDays = defaultWindowDay
	}
	if settings.ScanCap <= 0 {
		settings.ScanCap = defaultScanCap
	}
	return &SegmentBuilder{repo: repo, settings: settings, log: log, now: time.Now}
}

// SetClock replaces the time source.
func (b *SegmentBuilder) SetClock(now func() time.Time) {
	b.now = now
}

// Tiers returns the rule set the builder evaluates.
func (b *SegmentBuilder) Tiers() domain.Tiers {
	return b.settings.Tiers
}

// Build recomputes and overwrites the tenant's segments for one scope and
// window. For a fixed event set the result is identical on every call.
func (b *SegmentBuilder) Build(ctx context.Context, tenantID uuid.UUID, opts BuildOptions) (BuildResult, error) {
	result, _, err := b.build(ctx, tenantID, opts)
	return result, err
}

// List returns stored segments, optionally only for one campaign.
func (b *SegmentBuilder) List(ctx context.Context, tenantID uuid.UUID, campaignID *uuid.UUID) ([]domain.Segment, error) {
	return b.repo.ListSegments(ctx, tenantID, campaignID)
}

func (b *SegmentBuilder) resolveWindow(withinDays int) (int, error) {
	switch {
	case withinDays == 0:
		return b.settings.DefaultWindowDays, nil
	case withinDays < 0 || withinDays > maxWindowDays:
		return 0, apperr.Validation("withinDays must be between 1 and 365")
	default:
		return withinDays, nil
	}
}

func (b *SegmentBuilder) build(ctx context.Context, tenantID uuid.UUID, opts BuildOptions) (BuildResult, map[string]entityTotal, error) {
	withinDays, err := b.resolveWindow(opts.WithinDays)
	if err != nil {
		return BuildResult{}, nil, err
	}

	now := b.now().UTC()
	since := now.Add(-time.Duration(withinDays) * day)

	events, err := b.repo.ScanEvents(ctx, repository.ScanParams{
		TenantID:   tenantID,
		CampaignID: opts.CampaignID,
		Since:      since,
		Limit:      b.settings.ScanCap,
	})
	if err != nil {
		return BuildResult{}, nil, err
	}

	totals := aggregate(events, since)
	scope := domain.Scope(opts.CampaignID)
	segments := b.segmentsFor(tenantID, scope, opts.CampaignID, withinDays, totals, now)

	if err := b.repo.ReplaceSegments(ctx, segments); err != nil {
		return BuildResult{}, nil, err
	}
	metrics.SegmentBuilds.WithLabelValues(scopeLabel(scope)).Inc()

	result := BuildResult{
		Segments:      segments,
		ScannedEvents: len(events),
		Entities:      len(totals),
		WithinDays:    withinDays,
		Truncated:     len(events) >= b.settings.ScanCap,
	}
	if result.Truncated {
		b.log.Warn("segment build hit scan cap", "tenantId", tenantID, "scope", scope, "scanCap", b.settings.ScanCap)
	}
	return result, totals, nil
}

// aggregate sums weights per entity key. Events outside the window or
// without an attributable entity are skipped.
func aggregate(events []domain.WeightedEvent, since time.Time) map[string]entityTotal {
	totals := make(map[string]entityTotal)
	for _, ev := range events {
		if ev.OccurredAt.Before(since) {
			continue
		}
		key, ok := domain.EntityKey(ev.LeadID, ev.Fingerprint)
		if !ok {
			continue
		}
		total := totals[key]
		total.Weight += ev.Weight
		if strings.HasPrefix(key, "lead:") {
			total.LeadID = ev.LeadID
		}
		totals[key] = total
	}
	return totals
}

// segmentsFor evaluates every tier independently against the same sums, in
// the fixed tier order.
func (b *SegmentBuilder) segmentsFor(tenantID uuid.UUID, scope string, campaignID *uuid.UUID, withinDays int, totals map[string]entityTotal, now time.Time) []domain.Segment {
	segments := make([]domain.Segment, 0, len(b.settings.Tiers))
	for _, rule := range b.settings.Tiers {
		seg := domain.Segment{
			ID:            domain.SegmentID(scope, rule.Tier, withinDays),
			TenantID:      tenantID,
			Scope:         scope,
			CampaignID:    campaignID,
			Tier:          rule.Tier,
			MinWeight:     rule.MinWeight,
			WithinDays:    withinDays,
			WeightVersion: domain.WeightVersion,
			UpdatedAt:     now,
		}
		for _, total := range totals {
			if total.Weight < rule.MinWeight {
				continue
			}
			seg.Size++
			if total.LeadID != nil {
				seg.WithLeadID++
			} else {
				seg.Anonymous++
			}
		}
		segments = append(segments, seg)
	}
	return segments
}

func scopeLabel(scope string) string {
	if scope == domain.ScopeAll {
		return "all"
	}
	return "campaign"
}
