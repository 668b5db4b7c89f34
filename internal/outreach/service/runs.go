package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"growth_backend/internal/outreach/domain"
	"growth_backend/internal/outreach/repository"
	"growth_backend/platform/apperr"
	"growth_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// RunStore owns run creation and the operator-facing state changes.
type RunStore struct {
	repo            repository.RunStore
	directory       Directory
	defaultSequence string
	log             *logger.Logger
	now             func() time.Time
}

// NewRunStore creates the run store service. defaultSequence is used for
// campaigns without a sequence binding.
func NewRunStore(repo repository.RunStore, directory Directory, defaultSequence string, log *logger.Logger) *RunStore {
	if strings.TrimSpace(defaultSequence) == "" {
		defaultSequence = "default"
	}
	return &RunStore{repo: repo, directory: directory, defaultSequence: defaultSequence, log: log, now: time.Now}
}

// SetClock replaces the time source.
func (s *RunStore) SetClock(now func() time.Time) {
	s.now = now
}

// CreateOrReset ensures a run exists for the lead in the campaign. A missing
// run is created pending and due now. An existing terminal run is reset only
// when force is set; anything else, including a suppressed run, is left as is.
func (s *RunStore) CreateOrReset(ctx context.Context, tenantID, campaignID, leadID uuid.UUID, force bool) (domain.Run, domain.Outcome, error) {
	if tenantID == uuid.Nil || campaignID == uuid.Nil || leadID == uuid.Nil {
		return domain.Run{}, "", apperr.Validation("tenantId, campaignId and leadId are required")
	}

	campaign, err := s.directory.Campaign(ctx, tenantID, campaignID)
	if err != nil {
		return domain.Run{}, "", err
	}
	sequenceKey := s.sequenceFor(campaign)

	now := s.now().UTC()
	run := domain.NewRun(tenantID, campaignID, leadID, sequenceKey, now)
	created, err := s.repo.Insert(ctx, run)
	if err != nil {
		return domain.Run{}, "", err
	}
	if created {
		s.log.Info("outreach run created", "tenantId", tenantID, "runId", run.ID, "campaignId", campaignID, "leadId", leadID)
		return run, domain.OutcomeCreated, nil
	}

	existing, err := s.get(ctx, tenantID, run.ID)
	if err != nil {
		return domain.Run{}, "", err
	}
	if !force || !existing.Status.Terminal() {
		return existing, domain.OutcomeUnchanged, nil
	}

	pending := domain.StatusPending
	zero := 0
	reset, err := s.repo.Update(ctx, tenantID, run.ID, domain.Patch{
		Status:         &pending,
		StepIndex:      &zero,
		NextAt:         &now,
		SequenceKey:    &sequenceKey,
		ClearLastError: true,
		Append:         []domain.HistoryEntry{{At: now, Channel: domain.ChannelSystem, OK: true, Message: "reset from " + string(existing.Status)}},
		Expect:         []domain.Status{domain.StatusCompleted, domain.StatusFailed},
	}, now)
	if err != nil {
		return domain.Run{}, "", err
	}

	current, err := s.get(ctx, tenantID, run.ID)
	if err != nil {
		return domain.Run{}, "", err
	}
	if !reset {
		return current, domain.OutcomeUnchanged, nil
	}
	s.log.Info("outreach run reset", "tenantId", tenantID, "runId", run.ID, "from", existing.Status)
	return current, domain.OutcomeReset, nil
}

// unsuppressed are the statuses a patch without an explicit expectation may
// change. Only resolving the handoff ticket lifts a suppression.
var unsuppressed = []domain.Status{domain.StatusPending, domain.StatusRunning, domain.StatusCompleted, domain.StatusFailed}

// Update applies a merge-style patch and returns the updated run. A suppressed
// run is never changed unless the patch explicitly expects it.
func (s *RunStore) Update(ctx context.Context, tenantID, runID uuid.UUID, patch domain.Patch) (domain.Run, error) {
	if len(patch.Expect) == 0 {
		patch.Expect = unsuppressed
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return domain.Run{}, apperr.Validation("unknown run status")
	}
	if patch.StepIndex != nil && *patch.StepIndex < 0 {
		return domain.Run{}, apperr.Validation("stepIndex must not be negative")
	}

	applied, err := s.repo.Update(ctx, tenantID, runID, patch, s.now().UTC())
	if err != nil {
		return domain.Run{}, err
	}
	run, err := s.get(ctx, tenantID, runID)
	if err != nil {
		return domain.Run{}, err
	}
	if !applied {
		return domain.Run{}, apperr.Conflict("run is in status " + string(run.Status))
	}
	return run, nil
}

// Retry moves a failed run back to pending, due now.
func (s *RunStore) Retry(ctx context.Context, tenantID, runID uuid.UUID) (domain.Run, error) {
	now := s.now().UTC()
	pending := domain.StatusPending
	applied, err := s.repo.Update(ctx, tenantID, runID, domain.Patch{
		Status:         &pending,
		NextAt:         &now,
		ClearLastError: true,
		Append:         []domain.HistoryEntry{{At: now, Channel: domain.ChannelSystem, OK: true, Message: "retry"}},
		Expect:         []domain.Status{domain.StatusFailed},
	}, now)
	if err != nil {
		return domain.Run{}, err
	}

	run, err := s.get(ctx, tenantID, runID)
	if err != nil {
		return domain.Run{}, err
	}
	if !applied {
		return domain.Run{}, apperr.Conflict("only failed runs can be retried").WithDetails(map[string]any{
			"status": string(run.Status),
		})
	}
	s.log.Info("outreach run retried", "tenantId", tenantID, "runId", runID)
	return run, nil
}

// ListRuns returns the tenant's runs, optionally filtered by status.
func (s *RunStore) ListRuns(ctx context.Context, tenantID uuid.UUID, status *domain.Status, limit int) ([]domain.Run, error) {
	if status != nil && !status.Valid() {
		return nil, apperr.Validation("unknown run status")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.List(ctx, repository.ListParams{TenantID: tenantID, Status: status, Limit: limit})
}

// Get returns one run.
func (s *RunStore) Get(ctx context.Context, tenantID, runID uuid.UUID) (domain.Run, error) {
	return s.get(ctx, tenantID, runID)
}

func (s *RunStore) get(ctx context.Context, tenantID, runID uuid.UUID) (domain.Run, error) {
	run, err := s.repo.Get(ctx, tenantID, runID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Run{}, apperr.NotFound("outreach run not found")
	}
	return run, err
}

func (s *RunStore) sequenceFor(c Campaign) string {
	if key := strings.TrimSpace(c.SequenceKey); key != "" {
		return key
	}
	return s.defaultSequence
}
