package service

import (
	"context"
	"testing"

	"growth_backend/internal/outreach/domain"
	"growth_backend/platform/apperr"
	"growth_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCampaignRunner(f *fixture) *CampaignRunner {
	return NewCampaignRunner(f.runs, f.processor, f.directory, logger.Nop())
}

func TestCampaignRunNewOnlyTouchesLeadsWithoutRun(t *testing.T) {
	f := newFixture(t)
	f.createRun(t)
	second := uuid.New()
	f.addLead(second, "Bo")

	res, err := newCampaignRunner(f).Run(context.Background(), f.tenantID, f.campaignID, ModeNew, 10)
	require.NoError(t, err)
	f.bus.Wait()

	assert.Equal(t, 1, res.Touched)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 2, res.Processed, "the existing due run is processed too")
	assert.Equal(t, 2, f.sender.count())
}

func TestCampaignRunAllResetsFinishedRuns(t *testing.T) {
	f := newFixture(t)
	run := f.createRun(t)
	f.store.setStatus(run.ID, domain.StatusCompleted)
	suppressed := uuid.New()
	f.addLead(suppressed, "Bo")
	_, _, err := f.runs.CreateOrReset(context.Background(), f.tenantID, f.campaignID, suppressed, false)
	require.NoError(t, err)
	f.store.setStatus(domain.RunID(f.campaignID, suppressed), domain.StatusSuppressed)

	res, err := newCampaignRunner(f).Run(context.Background(), f.tenantID, f.campaignID, ModeAll, 10)
	require.NoError(t, err)
	f.bus.Wait()

	assert.Equal(t, 2, res.Touched)
	assert.Equal(t, 1, res.Created)
	require.Len(t, res.Results, 1)
	assert.Equal(t, run.ID, res.Results[0].RunID)
	assert.Equal(t, domain.StatusSuppressed, f.store.run(domain.RunID(f.campaignID, suppressed)).Status)
}

func TestCampaignRunRequiresEnabledCampaign(t *testing.T) {
	f := newFixture(t)
	c := f.directory.campaigns[f.campaignID]
	c.OutreachEnabled = false
	f.directory.campaigns[f.campaignID] = c

	_, err := newCampaignRunner(f).Run(context.Background(), f.tenantID, f.campaignID, ModeNew, 10)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = newCampaignRunner(f).Run(context.Background(), f.tenantID, uuid.New(), ModeNew, 10)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = newCampaignRunner(f).Run(context.Background(), f.tenantID, f.campaignID, "some", 10)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Zero(t, f.store.count())
}
