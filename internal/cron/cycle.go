// Package cron exposes the cron-authenticated batch triggers and the sender
// cycle that closes the feedback loop between outreach and segmentation.
package cron

import (
	"context"
	"sync"

	audience "growth_backend/internal/audience/service"
	outreach "growth_backend/internal/outreach/service"
	"growth_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultFanOut = 4

// DueProcessor processes due outreach runs.
type DueProcessor interface {
	ProcessDueRuns(ctx context.Context, opts outreach.ProcessOptions) (outreach.ProcessResult, error)
}

// ActionRunner runs audience action detection for one tenant scope.
type ActionRunner interface {
	Run(ctx context.Context, tenantID uuid.UUID, opts audience.RunOptions) (audience.RunSummary, error)
}

// ActionScope is one action runner invocation. A nil CampaignID is the
// tenant-wide scope.
type ActionScope struct {
	TenantID   uuid.UUID
	CampaignID *uuid.UUID
}

// ActionOutcome is the result of one fanned-out action run. Exactly one of
// Summary and Error is set.
type ActionOutcome struct {
	ActionScope
	Summary *audience.RunSummary
	Error   string
}

// CycleResult summarises one sender cycle.
type CycleResult struct {
	Processed int
	Results   []outreach.RunResult
	Audience  []ActionOutcome
}

// SenderCycle processes due runs and then re-runs action detection for every
// tenant it touched so sends and replies feed back into scoring.
type SenderCycle struct {
	processor DueProcessor
	runner    ActionRunner
	fanOut    int
	log       *logger.Logger
}

// NewSenderCycle creates a cycle running at most fanOut action runs at once.
func NewSenderCycle(processor DueProcessor, runner ActionRunner, fanOut int, log *logger.Logger) *SenderCycle {
	if fanOut <= 0 {
		fanOut = defaultFanOut
	}
	return &SenderCycle{processor: processor, runner: runner, fanOut: fanOut, log: log}
}

// Run processes up to limit due runs across all tenants, then fans out.
func (c *SenderCycle) Run(ctx context.Context, limit int) (CycleResult, error) {
	processed, err := c.Process(ctx, limit)
	if err != nil {
		return CycleResult{}, err
	}
	return CycleResult{
		Processed: processed.Processed,
		Results:   processed.Results,
		Audience:  c.RunActions(ctx, Scopes(processed)),
	}, nil
}

// Process runs one processing pass without fanning out.
func (c *SenderCycle) Process(ctx context.Context, limit int) (outreach.ProcessResult, error) {
	return c.processor.ProcessDueRuns(ctx, outreach.ProcessOptions{Limit: limit})
}

// Scopes expands a pass's touched pairs into action scopes: one tenant-wide
// scope per tenant followed by that tenant's campaigns.
func Scopes(res outreach.ProcessResult) []ActionScope {
	touched := res.Touched()
	scopes := make([]ActionScope, 0, len(touched)*2)
	var last uuid.UUID
	for i, s := range touched {
		if i == 0 || s.TenantID != last {
			scopes = append(scopes, ActionScope{TenantID: s.TenantID})
			last = s.TenantID
		}
		campaignID := s.CampaignID
		scopes = append(scopes, ActionScope{TenantID: s.TenantID, CampaignID: &campaignID})
	}
	return scopes
}

// RunActions runs the action runner for every scope with bounded
// concurrency. A failing scope is reported in its outcome and never stops
// the others. Outcomes keep the order of scopes.
func (c *SenderCycle) RunActions(ctx context.Context, scopes []ActionScope) []ActionOutcome {
	outcomes := make([]ActionOutcome, len(scopes))
	if len(scopes) == 0 {
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(c.fanOut)
	var mu sync.Mutex
	failed := 0

	for i, scope := range scopes {
		g.Go(func() error {
			outcome := ActionOutcome{ActionScope: scope}
			summary, err := c.runner.Run(ctx, scope.TenantID, audience.RunOptions{CampaignID: scope.CampaignID})
			if err != nil {
				outcome.Error = err.Error()
				c.log.Warn("audience action run failed", "tenantId", scope.TenantID, "campaignId", scope.CampaignID, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
			} else {
				outcome.Summary = &summary
			}
			outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()

	c.log.BatchCompleted("audience.actions.fanout", len(scopes), failed)
	return outcomes
}
