package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"growth_backend/internal/channels"
	"growth_backend/internal/outreach/domain"
	"growth_backend/internal/outreach/repository"
	"growth_backend/platform/apperr"

	"github.com/google/uuid"
)

// memStore mirrors the conditional semantics of the SQL repository.
type memStore struct {
	mu         sync.Mutex
	runs       map[uuid.UUID]domain.Run
	afterClaim func()
	claimErr   error
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[uuid.UUID]domain.Run)}
}

func cloneRun(r domain.Run) domain.Run {
	r.History = append([]domain.HistoryEntry{}, r.History...)
	return r
}

func (m *memStore) Insert(_ context.Context, run domain.Run) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return false, nil
	}
	m.runs[run.ID] = cloneRun(run)
	return true, nil
}

func (m *memStore) Get(_ context.Context, tenantID, runID uuid.UUID) (domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok || run.TenantID != tenantID {
		return domain.Run{}, repository.ErrNotFound
	}
	return cloneRun(run), nil
}

func (m *memStore) Update(_ context.Context, tenantID, runID uuid.UUID, patch domain.Patch, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok || run.TenantID != tenantID {
		return false, nil
	}
	if len(patch.Expect) > 0 {
		matched := false
		for _, s := range patch.Expect {
			if run.Status == s {
				matched = true
			}
		}
		if !matched {
			return false, nil
		}
	}
	if patch.Status != nil {
		run.Status = *patch.Status
	}
	if patch.StepIndex != nil {
		run.StepIndex = *patch.StepIndex
	}
	if patch.NextAt != nil {
		run.NextAt = *patch.NextAt
	}
	if patch.SequenceKey != nil {
		run.SequenceKey = *patch.SequenceKey
	}
	if patch.ClearLastError {
		run.LastError = nil
	} else if patch.LastError != nil {
		msg := *patch.LastError
		run.LastError = &msg
	}
	run.History = append(append([]domain.HistoryEntry{}, run.History...), patch.Append...)
	run.UpdatedAt = now
	m.runs[runID] = run
	return true, nil
}

func (m *memStore) List(_ context.Context, params repository.ListParams) ([]domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Run, 0)
	for _, run := range m.runs {
		if run.TenantID != params.TenantID {
			continue
		}
		if params.Status != nil && run.Status != *params.Status {
			continue
		}
		out = append(out, cloneRun(run))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func (m *memStore) ClaimDue(_ context.Context, params repository.ClaimParams) ([]domain.Run, error) {
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	m.mu.Lock()
	due := make([]domain.Run, 0)
	for _, run := range m.runs {
		if !run.Status.Schedulable() || run.NextAt.After(params.Now) {
			continue
		}
		if params.TenantID != nil && run.TenantID != *params.TenantID {
			continue
		}
		if params.CampaignID != nil && run.CampaignID != *params.CampaignID {
			continue
		}
		due = append(due, run)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextAt.Before(due[j].NextAt) })
	if len(due) > params.Limit {
		due = due[:params.Limit]
	}
	claimed := make([]domain.Run, 0, len(due))
	for _, run := range due {
		stored := m.runs[run.ID]
		stored.Status = domain.StatusRunning
		stored.NextAt = params.LeaseUntil
		m.runs[run.ID] = stored

		run.Status = domain.StatusRunning
		claimed = append(claimed, cloneRun(run))
	}
	m.mu.Unlock()

	if m.afterClaim != nil {
		m.afterClaim()
	}
	return claimed, nil
}

func (m *memStore) run(id uuid.UUID) domain.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneRun(m.runs[id])
}

func (m *memStore) setStatus(id uuid.UUID, status domain.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := m.runs[id]
	run.Status = status
	m.runs[id] = run
}

func (m *memStore) has(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.runs[id]
	return ok
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

// fakeDirectory serves campaigns and leads from maps.
type fakeDirectory struct {
	store     *memStore
	campaigns map[uuid.UUID]Campaign
	contacts  map[uuid.UUID]Contact
	members   map[uuid.UUID][]uuid.UUID
}

func newFakeDirectory(store *memStore) *fakeDirectory {
	return &fakeDirectory{
		store:     store,
		campaigns: make(map[uuid.UUID]Campaign),
		contacts:  make(map[uuid.UUID]Contact),
		members:   make(map[uuid.UUID][]uuid.UUID),
	}
}

func (d *fakeDirectory) Campaign(_ context.Context, tenantID, campaignID uuid.UUID) (Campaign, error) {
	c, ok := d.campaigns[campaignID]
	if !ok || c.TenantID != tenantID {
		return Campaign{}, apperr.NotFound("campaign not found")
	}
	return c, nil
}

func (d *fakeDirectory) LeadContact(_ context.Context, _, leadID uuid.UUID) (Contact, error) {
	c, ok := d.contacts[leadID]
	if !ok {
		return Contact{}, apperr.NotFound("lead not found")
	}
	return c, nil
}

func (d *fakeDirectory) ListCampaignLeads(_ context.Context, _, campaignID uuid.UUID, limit int) ([]uuid.UUID, error) {
	leads := d.members[campaignID]
	if len(leads) > limit {
		leads = leads[:limit]
	}
	return leads, nil
}

func (d *fakeDirectory) ListLeadsWithoutRun(_ context.Context, _, campaignID uuid.UUID, limit int) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0)
	for _, leadID := range d.members[campaignID] {
		if d.store.has(domain.RunID(campaignID, leadID)) {
			continue
		}
		out = append(out, leadID)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// recordingSender captures messages and fails when err is set.
type recordingSender struct {
	mu   sync.Mutex
	sent []channels.Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg channels.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// quotaMeter allows max units per tenant.
type quotaMeter struct {
	max  int64
	used map[uuid.UUID]int64
}

func (q *quotaMeter) Consume(_ context.Context, tenantID uuid.UUID, metric string, n int64) error {
	if q.used == nil {
		q.used = make(map[uuid.UUID]int64)
	}
	if q.used[tenantID]+n > q.max {
		return apperr.LimitExceeded(metric, q.max, q.used[tenantID])
	}
	q.used[tenantID] += n
	return nil
}

func (q *quotaMeter) Release(_ context.Context, tenantID uuid.UUID, _ string, n int64) error {
	if q.used == nil {
		return nil
	}
	q.used[tenantID] = max(q.used[tenantID]-n, 0)
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errTransport = errors.New("smtp 421: service unavailable")
