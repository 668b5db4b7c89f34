package service

import (
	"context"

	"growth_backend/internal/outreach/domain"
	"growth_backend/platform/apperr"
	"growth_backend/platform/logger"

	"github.com/google/uuid"
)

// CampaignRunMode selects which campaign leads a sender run touches.
type CampaignRunMode string

const (
	// ModeNew starts runs for leads that have none.
	ModeNew CampaignRunMode = "new"
	// ModeAll restarts every lead, resetting finished runs.
	ModeAll CampaignRunMode = "all"
)

// CampaignRunResult summarizes a campaign sender run.
type CampaignRunResult struct {
	Touched   int
	Created   int
	Processed int
	Results   []RunResult
}

// CampaignRunner starts or restarts a campaign's runs and processes the
// ones that are due.
type CampaignRunner struct {
	runs      *RunStore
	processor *Processor
	directory Directory
	log       *logger.Logger
}

// NewCampaignRunner creates a campaign runner.
func NewCampaignRunner(runs *RunStore, processor *Processor, directory Directory, log *logger.Logger) *CampaignRunner {
	return &CampaignRunner{runs: runs, processor: processor, directory: directory, log: log}
}

// Run creates runs for the campaign's leads according to mode, then
// processes the campaign's due runs.
func (c *CampaignRunner) Run(ctx context.Context, tenantID, campaignID uuid.UUID, mode CampaignRunMode, limit int) (CampaignRunResult, error) {
	if mode == "" {
		mode = ModeNew
	}
	if mode != ModeNew && mode != ModeAll {
		return CampaignRunResult{}, apperr.Validation("mode must be new or all")
	}
	if limit <= 0 {
		limit = defaultBatchLimit
	}
	if limit > maxBatchLimit {
		limit = maxBatchLimit
	}

	campaign, err := c.directory.Campaign(ctx, tenantID, campaignID)
	if err != nil {
		return CampaignRunResult{}, err
	}
	if !campaign.OutreachEnabled {
		return CampaignRunResult{}, apperr.Conflict("outreach is not enabled for this campaign")
	}

	var leads []uuid.UUID
	if mode == ModeAll {
		leads, err = c.directory.ListCampaignLeads(ctx, tenantID, campaignID, limit)
	} else {
		leads, err = c.directory.ListLeadsWithoutRun(ctx, tenantID, campaignID, limit)
	}
	if err != nil {
		return CampaignRunResult{}, err
	}

	result := CampaignRunResult{Touched: len(leads)}
	for _, leadID := range leads {
		_, outcome, err := c.runs.CreateOrReset(ctx, tenantID, campaignID, leadID, mode == ModeAll)
		if err != nil {
			c.log.Warn("campaign run: create run failed", "tenantId", tenantID, "campaignId", campaignID, "leadId", leadID, "error", err)
			continue
		}
		if outcome == domain.OutcomeCreated || outcome == domain.OutcomeReset {
			result.Created++
		}
	}

	processed, err := c.processor.ProcessDueRuns(ctx, ProcessOptions{
		TenantID:   &tenantID,
		CampaignID: &campaignID,
		Limit:      limit,
	})
	if err != nil {
		return CampaignRunResult{}, err
	}
	result.Processed = processed.Processed
	result.Results = processed.Results
	return result, nil
}
