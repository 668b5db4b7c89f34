package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"growth_backend/internal/channels"
	"growth_backend/internal/events"
	"growth_backend/internal/outreach/domain"
	"growth_backend/internal/outreach/repository"
	"growth_backend/internal/outreach/sequence"
	"growth_backend/platform/apperr"
	"growth_backend/platform/logger"
	"growth_backend/platform/metrics"

	"github.com/google/uuid"
)

const (
	defaultStepDelay  = 24 * time.Hour
	defaultClaimLease = 5 * time.Minute
	defaultBatchLimit = 50
	maxBatchLimit     = 500
)

// ProcessorSettings tunes the processor.
type ProcessorSettings struct {
	StepDelay  time.Duration
	ClaimLease time.Duration
	BatchLimit int
}

// ProcessOptions scopes one processing pass. Nil filters mean all.
type ProcessOptions struct {
	TenantID   *uuid.UUID
	CampaignID *uuid.UUID
	Limit      int
}

// RunResult is the outcome of one claimed run.
type RunResult struct {
	RunID      uuid.UUID     `json:"runId"`
	TenantID   uuid.UUID     `json:"tenantId"`
	CampaignID uuid.UUID     `json:"campaignId"`
	LeadID     uuid.UUID     `json:"leadId"`
	Status     domain.Status `json:"status"`
	Channel    string        `json:"channel,omitempty"`
	StepIndex  int           `json:"stepIndex"`
	OK         bool          `json:"ok"`
	Skipped    bool          `json:"skipped,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Scope is a tenant and campaign touched by a pass.
type Scope struct {
	TenantID   uuid.UUID
	CampaignID uuid.UUID
}

// ProcessResult summarizes one pass. Results holds one entry per claimed run.
type ProcessResult struct {
	Processed int
	Results   []RunResult
}

// Touched returns the distinct tenant and campaign pairs of the pass.
func (r ProcessResult) Touched() []Scope {
	seen := make(map[Scope]struct{})
	out := make([]Scope, 0)
	for _, res := range r.Results {
		s := Scope{TenantID: res.TenantID, CampaignID: res.CampaignID}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TenantID != out[j].TenantID {
			return out[i].TenantID.String() < out[j].TenantID.String()
		}
		return out[i].CampaignID.String() < out[j].CampaignID.String()
	})
	return out
}

// Processor executes due sequence steps.
type Processor struct {
	repo      repository.RunStore
	catalog   *sequence.Catalog
	directory Directory
	sender    Sender
	usage     UsageMeter
	bus       events.Bus
	settings  ProcessorSettings
	log       *logger.Logger
	now       func() time.Time
}

// NewProcessor creates a processor.
func NewProcessor(repo repository.RunStore, catalog *sequence.Catalog, directory Directory, sender Sender, settings ProcessorSettings, bus events.Bus, log *logger.Logger) *Processor {
	if settings.StepDelay <= 0 {
		settings.StepDelay = defaultStepDelay
	}
	if settings.ClaimLease <= 0 {
		settings.ClaimLease = defaultClaimLease
	}
	if settings.BatchLimit <= 0 {
		settings.BatchLimit = defaultBatchLimit
	}
	return &Processor{
		repo:      repo,
		catalog:   catalog,
		directory: directory,
		sender:    sender,
		bus:       bus,
		settings:  settings,
		log:       log,
		now:       time.Now,
	}
}

// SetUsageMeter enables per-send usage consumption.
func (p *Processor) SetUsageMeter(usage UsageMeter) {
	p.usage = usage
}

// SetClock replaces the time source.
func (p *Processor) SetClock(now func() time.Time) {
	p.now = now
}

// ProcessDueRuns claims due runs and sends each run's next step. A failing
// run never aborts the pass; only a failed claim returns an error.
func (p *Processor) ProcessDueRuns(ctx context.Context, opts ProcessOptions) (ProcessResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = p.settings.BatchLimit
	}
	if limit > maxBatchLimit {
		limit = maxBatchLimit
	}

	now := p.now().UTC()
	runs, err := p.repo.ClaimDue(ctx, repository.ClaimParams{
		TenantID:   opts.TenantID,
		CampaignID: opts.CampaignID,
		Now:        now,
		LeaseUntil: now.Add(p.settings.ClaimLease),
		Limit:      limit,
	})
	if err != nil {
		return ProcessResult{}, err
	}
	metrics.RunsClaimed.Add(float64(len(runs)))

	result := ProcessResult{Results: make([]RunResult, 0, len(runs))}
	failed := 0
	for _, run := range runs {
		res := p.process(ctx, run)
		if !res.OK && !res.Skipped {
			failed++
		}
		result.Results = append(result.Results, res)
	}
	result.Processed = len(result.Results)

	if result.Processed > 0 {
		p.log.BatchCompleted("outreach.process_due", result.Processed, failed)
	}
	return result, nil
}

func (p *Processor) process(ctx context.Context, run domain.Run) RunResult {
	res := RunResult{
		RunID:      run.ID,
		TenantID:   run.TenantID,
		CampaignID: run.CampaignID,
		LeadID:     run.LeadID,
		Status:     domain.StatusRunning,
		StepIndex:  run.StepIndex,
	}

	seq, ok := p.catalog.Get(run.SequenceKey)
	if !ok {
		return p.fail(ctx, run, res, "", fmt.Sprintf("unknown sequence %q", run.SequenceKey))
	}
	if run.StepIndex >= len(seq.Steps) {
		return p.complete(ctx, run, res)
	}
	step := seq.Steps[run.StepIndex]
	res.Channel = step.Channel

	// A handoff may have suppressed the run after the claim.
	current, err := p.repo.Get(ctx, run.TenantID, run.ID)
	if err != nil {
		res.Error = err.Error()
		p.log.Warn("outreach run reload failed", "runId", run.ID, "error", err)
		return res
	}
	if current.Status != domain.StatusRunning {
		return p.skip(run, res, current.Status)
	}

	campaign, err := p.directory.Campaign(ctx, run.TenantID, run.CampaignID)
	if err != nil {
		return p.fail(ctx, run, res, step.Channel, err.Error())
	}
	contact, err := p.directory.LeadContact(ctx, run.TenantID, run.LeadID)
	if err != nil {
		return p.fail(ctx, run, res, step.Channel, err.Error())
	}
	to, err := recipient(step.Channel, contact)
	if err != nil {
		return p.fail(ctx, run, res, step.Channel, err.Error())
	}

	subject, body, err := step.Render(sequence.Data{FirstName: contact.FirstName, CampaignName: campaign.Name})
	if err != nil {
		return p.fail(ctx, run, res, step.Channel, err.Error())
	}

	if p.usage != nil {
		if err := p.usage.Consume(ctx, run.TenantID, UsageMetricSends, 1); err != nil {
			return p.fail(ctx, run, res, step.Channel, usageMessage(err))
		}
	}

	if err := p.sender.Send(ctx, channels.Message{
		Channel: step.Channel,
		To:      to,
		Name:    contact.FirstName,
		Subject: subject,
		Body:    body,
	}); err != nil {
		// Quota is held only for delivered steps.
		if p.usage != nil {
			if relErr := p.usage.Release(ctx, run.TenantID, UsageMetricSends, 1); relErr != nil {
				p.log.Warn("usage not released after failed send", "tenantId", run.TenantID, "runId", run.ID, "error", relErr)
			}
		}
		return p.fail(ctx, run, res, step.Channel, err.Error())
	}

	return p.advance(ctx, run, res, seq, step)
}

func (p *Processor) advance(ctx context.Context, run domain.Run, res RunResult, seq sequence.Sequence, step sequence.Step) RunResult {
	now := p.now().UTC()
	next := run.StepIndex + 1
	status := domain.StatusCompleted
	nextAt := now
	if next < len(seq.Steps) {
		status = domain.StatusPending
		delay := seq.Steps[next].Delay
		if delay <= 0 {
			delay = p.settings.StepDelay
		}
		nextAt = now.Add(delay)
	}

	applied, err := p.repo.Update(ctx, run.TenantID, run.ID, domain.Patch{
		Status:    &status,
		StepIndex: &next,
		NextAt:    &nextAt,
		Append:    []domain.HistoryEntry{{At: now, Channel: step.Channel, OK: true, Message: step.Template}},
		Expect:    []domain.Status{domain.StatusRunning},
	}, now)
	if err != nil {
		res.Error = err.Error()
		p.log.Error("outreach step sent but not recorded", "runId", run.ID, "step", run.StepIndex, "error", err)
		return res
	}

	metrics.OutreachSteps.WithLabelValues(step.Channel, "sent").Inc()
	res.OK = true
	res.Status = status
	if !applied {
		// Suppressed while the message was in flight; the suppression stands.
		res.Status = domain.StatusSuppressed
		p.log.Warn("outreach run suppressed during send", "runId", run.ID, "step", run.StepIndex)
	}

	if p.bus != nil {
		p.bus.Publish(ctx, events.OutreachStepSent{
			BaseEvent:  events.NewBaseEvent(run.TenantID, now),
			RunID:      run.ID,
			CampaignID: run.CampaignID,
			LeadID:     run.LeadID,
			Channel:    step.Channel,
			StepIndex:  run.StepIndex,
			Template:   step.Template,
		})
	}
	return res
}

func (p *Processor) complete(ctx context.Context, run domain.Run, res RunResult) RunResult {
	now := p.now().UTC()
	completed := domain.StatusCompleted
	applied, err := p.repo.Update(ctx, run.TenantID, run.ID, domain.Patch{
		Status: &completed,
		NextAt: &now,
		Expect: []domain.Status{domain.StatusRunning},
	}, now)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if !applied {
		return p.skip(run, res, domain.StatusSuppressed)
	}
	res.OK = true
	res.Status = completed
	return res
}

func (p *Processor) fail(ctx context.Context, run domain.Run, res RunResult, channel, message string) RunResult {
	now := p.now().UTC()
	failed := domain.StatusFailed
	historyChannel := channel
	if historyChannel == "" {
		historyChannel = domain.ChannelSystem
	}

	res.Error = message
	applied, err := p.repo.Update(ctx, run.TenantID, run.ID, domain.Patch{
		Status:    &failed,
		NextAt:    &now,
		LastError: &message,
		Append:    []domain.HistoryEntry{{At: now, Channel: historyChannel, OK: false, Message: message}},
		Expect:    []domain.Status{domain.StatusRunning},
	}, now)
	if err != nil {
		p.log.Error("outreach failure not recorded", "runId", run.ID, "error", err)
		return res
	}
	if !applied {
		return p.skip(run, res, domain.StatusSuppressed)
	}

	res.Status = failed
	metrics.OutreachSteps.WithLabelValues(historyChannel, "failed").Inc()
	p.log.Warn("outreach run failed", "tenantId", run.TenantID, "runId", run.ID, "channel", historyChannel, "error", message)

	if p.bus != nil {
		p.bus.Publish(ctx, events.OutreachRunFailed{
			BaseEvent:  events.NewBaseEvent(run.TenantID, now),
			RunID:      run.ID,
			CampaignID: run.CampaignID,
			LeadID:     run.LeadID,
			Channel:    channel,
			Error:      message,
		})
	}
	return res
}

func (p *Processor) skip(run domain.Run, res RunResult, status domain.Status) RunResult {
	res.Skipped = true
	res.Status = status
	label := res.Channel
	if label == "" {
		label = domain.ChannelSystem
	}
	metrics.OutreachSteps.WithLabelValues(label, "skipped").Inc()
	p.log.Info("outreach run skipped", "runId", run.ID, "status", status)
	return res
}

func recipient(channel string, c Contact) (string, error) {
	switch channel {
	case channels.Email:
		if c.Email == "" {
			return "", fmt.Errorf("lead has no email address")
		}
		return c.Email, nil
	case channels.SMS, channels.WhatsApp:
		if c.Phone == "" {
			return "", fmt.Errorf("lead has no phone number")
		}
		return c.Phone, nil
	default:
		return "", fmt.Errorf("unsupported channel %q", channel)
	}
}

func usageMessage(err error) string {
	if e, ok := apperr.As(err); ok && e.Kind == apperr.KindLimitExceeded {
		if d, ok := e.Details.(apperr.LimitDetails); ok {
			return fmt.Sprintf("usage limit exceeded: %s (limit %d)", d.Metric, d.Limit)
		}
	}
	return err.Error()
}
