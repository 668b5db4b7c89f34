package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"growth_backend/internal/audience/domain"
	"growth_backend/internal/audience/repository"
	"growth_backend/internal/events"
	"growth_backend/platform/logger"
	"growth_backend/platform/metrics"

	"github.com/google/uuid"
)

const (
	defaultActionsLimit = 50
	maxActionsLimit     = 500
)

// CampaignReader reports whether a campaign has automated outreach enabled.
// It returns an apperr NotFound when the campaign does not exist.
type CampaignReader interface {
	OutreachEnabled(ctx context.Context, tenantID, campaignID uuid.UUID) (bool, error)
}

// OutreachStarter creates a run for a lead unless a live one exists.
type OutreachStarter interface {
	StartOutreach(ctx context.Context, tenantID, campaignID, leadID uuid.UUID) (bool, error)
}

// RunOptions selects the window and scope of an action run.
type RunOptions struct {
	WithinDays int
	CampaignID *uuid.UUID
}

// RunSummary reports what one action run detected and wrote.
type RunSummary struct {
	WithinDays      int
	CampaignID      *uuid.UUID
	ScannedEvents   int
	Entities        int
	Truncated       bool
	Segments        []domain.Segment
	Transitions     int
	ActionsCreated  int
	OutreachCreated int
	OutreachFailed  int
	Actions         []domain.Action
}

// ActionRunner turns tier promotions into audience actions and, for
// outreach-enabled campaigns, into outreach runs.
type ActionRunner struct {
	builder       *SegmentBuilder
	repo          repository.ActionStore
	campaigns     CampaignReader
	outreach      OutreachStarter
	outreachTiers map[domain.Tier]bool
	bus           events.Bus
	log           *logger.Logger
}

// NewActionRunner creates a runner. outreachTiers names the tiers whose
// promotion starts outreach.
func NewActionRunner(builder *SegmentBuilder, repo repository.ActionStore, outreachTiers map[domain.Tier]bool, bus events.Bus, log *logger.Logger) *ActionRunner {
	if len(outreachTiers) == 0 {
		outreachTiers = map[domain.Tier]bool{domain.TierHot: true}
	}
	return &ActionRunner{
		builder:       builder,
		repo:          repo,
		outreachTiers: outreachTiers,
		bus:           bus,
		log:           log,
	}
}

// SetOutreach wires the campaign reader and run starter. Without them the
// runner only records actions.
func (r *ActionRunner) SetOutreach(campaigns CampaignReader, outreach OutreachStarter) {
	r.campaigns = campaigns
	r.outreach = outreach
}

// Run rebuilds the scope's segments, compares each entity's highest tier with
// the recorded one and records one action per promotion. Running again with
// an unchanged event set records nothing.
func (r *ActionRunner) Run(ctx context.Context, tenantID uuid.UUID, opts RunOptions) (RunSummary, error) {
	outreachEnabled := false
	if opts.CampaignID != nil && r.campaigns != nil {
		enabled, err := r.campaigns.OutreachEnabled(ctx, tenantID, *opts.CampaignID)
		if err != nil {
			return RunSummary{}, err
		}
		outreachEnabled = enabled && r.outreach != nil
	}

	built, totals, err := r.builder.build(ctx, tenantID, BuildOptions{WithinDays: opts.WithinDays, CampaignID: opts.CampaignID})
	if err != nil {
		return RunSummary{}, err
	}

	scope := domain.Scope(opts.CampaignID)
	scopeKey := domain.MembershipScope(scope, built.WithinDays)
	previous, err := r.repo.ListMemberships(ctx, tenantID, scopeKey)
	if err != nil {
		return RunSummary{}, err
	}

	now := r.builder.now().UTC()
	set := r.diff(tenantID, scopeKey, opts.CampaignID, built, totals, previous, now)

	created, err := r.repo.ApplyTransitions(ctx, set)
	if err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{
		WithinDays:     built.WithinDays,
		CampaignID:     opts.CampaignID,
		ScannedEvents:  built.ScannedEvents,
		Entities:       built.Entities,
		Truncated:      built.Truncated,
		Segments:       built.Segments,
		Transitions:    len(set.Promotions),
		ActionsCreated: len(created),
		Actions:        created,
	}

	for _, action := range created {
		metrics.ActionsCreated.WithLabelValues(action.Type).Inc()
		if r.bus != nil {
			r.bus.Publish(ctx, events.AudiencePromoted{
				BaseEvent:  events.NewBaseEvent(tenantID, now),
				ActionID:   action.ID,
				EntityID:   action.EntityID,
				FromTier:   tierString(action.FromTier),
				ToTier:     tierString(action.ToTier),
				CampaignID: action.CampaignID,
			})
		}
	}

	if outreachEnabled {
		r.startOutreach(ctx, tenantID, *opts.CampaignID, totals, &summary)
	}

	r.log.Info("audience action run completed",
		"tenantId", tenantID,
		"scope", scope,
		"withinDays", built.WithinDays,
		"transitions", summary.Transitions,
		"actionsCreated", summary.ActionsCreated,
		"outreachCreated", summary.OutreachCreated,
	)
	return summary, nil
}

// startOutreach asks for a run for every lead currently in an outreach tier,
// not only the newly promoted ones, so a start that failed on an earlier pass
// or a campaign that enabled outreach later still gets its runs. Starting is
// idempotent for leads that already have one.
func (r *ActionRunner) startOutreach(ctx context.Context, tenantID, campaignID uuid.UUID, totals map[string]entityTotal, summary *RunSummary) {
	tiers := r.builder.Tiers()
	keys := make([]string, 0, len(totals))
	for key := range totals {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		tier, rank := tiers.Highest(totals[key].Weight)
		if rank == 0 || !r.outreachTiers[tier] {
			continue
		}
		leadID, ok := leadFromEntity(key)
		if !ok {
			continue
		}
		started, err := r.outreach.StartOutreach(ctx, tenantID, campaignID, leadID)
		if err != nil {
			summary.OutreachFailed++
			r.log.Warn("failed to start outreach for lead", "tenantId", tenantID, "leadId", leadID, "error", err)
			continue
		}
		if started {
			summary.OutreachCreated++
		}
	}
}

// ListActions returns the tenant's newest actions.
func (r *ActionRunner) ListActions(ctx context.Context, tenantID uuid.UUID, limit int) ([]domain.Action, error) {
	return r.repo.ListActions(ctx, tenantID, clampLimit(limit, defaultActionsLimit, maxActionsLimit))
}

// diff compares current highest tiers with recorded memberships. When the
// scan was truncated only promotions are kept, since missing events would
// otherwise read as demotions.
func (r *ActionRunner) diff(tenantID uuid.UUID, scopeKey string, campaignID *uuid.UUID, built BuildResult, totals map[string]entityTotal, previous map[string]domain.Membership, now time.Time) repository.TransitionSet {
	tiers := r.builder.Tiers()
	set := repository.TransitionSet{TenantID: tenantID, ScopeKey: scopeKey, At: now}

	keys := make([]string, 0, len(totals))
	for key := range totals {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		total := totals[key]
		tier, rank := tiers.Highest(total.Weight)
		prev, hadPrev := previous[key]

		switch {
		case rank > prev.Rank:
			toTier := tier
			var fromTier *domain.Tier
			if hadPrev {
				from := prev.Tier
				fromTier = &from
			}
			set.Promotions = append(set.Promotions, repository.Promotion{
				Membership: domain.Membership{EntityKey: key, LeadID: total.LeadID, Tier: tier, Rank: rank, Weight: total.Weight},
				Action: domain.Action{
					ID:         uuid.New(),
					TenantID:   tenantID,
					Type:       string(tier),
					EntityID:   key,
					FromTier:   fromTier,
					ToTier:     &toTier,
					CampaignID: campaignID,
					Payload:    map[string]any{"weight": total.Weight, "withinDays": built.WithinDays},
					CreatedAt:  now,
				},
			})
		case built.Truncated:
		case rank == 0 && hadPrev:
			set.Removals = append(set.Removals, key)
		case rank < prev.Rank:
			set.Demotions = append(set.Demotions, domain.Membership{EntityKey: key, LeadID: total.LeadID, Tier: tier, Rank: rank, Weight: total.Weight})
		}
	}

	if !built.Truncated {
		gone := make([]string, 0)
		for key := range previous {
			if _, ok := totals[key]; !ok {
				gone = append(gone, key)
			}
		}
		sort.Strings(gone)
		set.Removals = append(set.Removals, gone...)
	}

	return set
}

func leadFromEntity(entityID string) (uuid.UUID, bool) {
	raw, ok := strings.CutPrefix(entityID, "lead:")
	if !ok {
		return uuid.UUID{}, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}

func tierString(t *domain.Tier) string {
	if t == nil {
		return ""
	}
	return string(*t)
}
