package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"growth_backend/internal/audience/domain"
	"growth_backend/internal/audience/repository"

	"github.com/google/uuid"
)

// memRepo is an in-memory repository.Repository with the same conditional
// semantics as the SQL implementation.
type memRepo struct {
	mu          sync.Mutex
	events      []domain.Event
	segments    map[string]domain.Segment
	memberships map[string]map[string]domain.Membership
	actions     []domain.Action
	signals     map[string]domain.GlobalSignal

	insertErr  error
	replaceErr error
	replaces   int
}

var _ repository.Repository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{
		segments:    make(map[string]domain.Segment),
		memberships: make(map[string]map[string]domain.Membership),
		signals:     make(map[string]domain.GlobalSignal),
	}
}

func (m *memRepo) InsertEvent(_ context.Context, event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.events = append(m.events, event)
	return nil
}

func (m *memRepo) ScanEvents(_ context.Context, params repository.ScanParams) ([]domain.WeightedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]domain.Event, 0)
	for _, ev := range m.events {
		if ev.TenantID != params.TenantID || ev.OccurredAt.Before(params.Since) {
			continue
		}
		if params.CampaignID != nil && (ev.CampaignID == nil || *ev.CampaignID != *params.CampaignID) {
			continue
		}
		matched = append(matched, ev)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].OccurredAt.Equal(matched[j].OccurredAt) {
			return matched[i].OccurredAt.After(matched[j].OccurredAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})
	if len(matched) > params.Limit {
		matched = matched[:params.Limit]
	}

	out := make([]domain.WeightedEvent, 0, len(matched))
	for _, ev := range matched {
		out = append(out, domain.WeightedEvent{
			LeadID:      ev.Actor.LeadID,
			Fingerprint: ev.Actor.Fingerprint,
			Weight:      ev.Weight,
			OccurredAt:  ev.OccurredAt,
		})
	}
	return out, nil
}

func (m *memRepo) ReplaceSegments(_ context.Context, segments []domain.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.replaces++
	for _, s := range segments {
		m.segments[s.TenantID.String()+"/"+s.ID] = s
	}
	return nil
}

func (m *memRepo) ListSegments(_ context.Context, tenantID uuid.UUID, campaignID *uuid.UUID) ([]domain.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Segment, 0)
	for _, s := range m.segments {
		if s.TenantID != tenantID {
			continue
		}
		if campaignID != nil && (s.CampaignID == nil || *s.CampaignID != *campaignID) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) ListMemberships(_ context.Context, tenantID uuid.UUID, scopeKey string) (map[string]domain.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.Membership)
	for k, v := range m.memberships[tenantID.String()+"/"+scopeKey] {
		out[k] = v
	}
	return out, nil
}

func (m *memRepo) ApplyTransitions(_ context.Context, set repository.TransitionSet) ([]domain.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := set.TenantID.String() + "/" + set.ScopeKey
	scope := m.memberships[key]
	if scope == nil {
		scope = make(map[string]domain.Membership)
		m.memberships[key] = scope
	}

	created := make([]domain.Action, 0)
	for _, p := range set.Promotions {
		if cur, ok := scope[p.Membership.EntityKey]; ok && cur.Rank >= p.Membership.Rank {
			continue
		}
		scope[p.Membership.EntityKey] = p.Membership
		m.actions = append(m.actions, p.Action)
		created = append(created, p.Action)
	}
	for _, d := range set.Demotions {
		if cur, ok := scope[d.EntityKey]; ok && cur.Rank > d.Rank {
			scope[d.EntityKey] = d
		}
	}
	for _, k := range set.Removals {
		delete(scope, k)
	}
	return created, nil
}

func (m *memRepo) ListActions(_ context.Context, tenantID uuid.UUID, limit int) ([]domain.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Action, 0)
	for i := len(m.actions) - 1; i >= 0 && len(out) < limit; i-- {
		if m.actions[i].TenantID == tenantID {
			out = append(out, m.actions[i])
		}
	}
	return out, nil
}

func (m *memRepo) ScanActionTypes(_ context.Context, since time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0)
	for i := len(m.actions) - 1; i >= 0 && len(out) < limit; i-- {
		if !m.actions[i].CreatedAt.Before(since) {
			out = append(out, m.actions[i].Type)
		}
	}
	return out, nil
}

func (m *memRepo) ReplaceGlobalSignals(_ context.Context, signals []domain.GlobalSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = make(map[string]domain.GlobalSignal, len(signals))
	for _, s := range signals {
		m.signals[s.ID] = s
	}
	return nil
}

func (m *memRepo) ListGlobalSignals(_ context.Context, limit int) ([]domain.GlobalSignal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.GlobalSignal, 0, len(m.signals))
	for _, s := range m.signals {
		out = append(out, s)
	}
	sortSignals(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) actionsOfType(t string) []domain.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Action, 0)
	for _, a := range m.actions {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(t time.Time) *fixedClock { return &fixedClock{now: t} }

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
