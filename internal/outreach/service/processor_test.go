package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"growth_backend/internal/events"
	"growth_backend/internal/outreach/domain"
	"growth_backend/internal/outreach/repository"
	"growth_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessSendsFirstStepAndSchedulesNext(t *testing.T) {
	f := newFixture(t)
	run := f.createRun(t)

	var (
		mu   sync.Mutex
		sent []events.OutreachStepSent
	)
	f.bus.Subscribe(events.OutreachStepSent{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, e.(events.OutreachStepSent))
		return nil
	}))

	res := f.process(t)
	require.Equal(t, 1, res.Processed)
	assert.True(t, res.Results[0].OK)
	assert.Equal(t, domain.StatusPending, res.Results[0].Status)
	assert.Equal(t, "email", res.Results[0].Channel)

	require.Equal(t, 1, f.sender.count())
	msg := f.sender.sent[0]
	assert.Equal(t, "Ada@example.com", msg.To)
	assert.Equal(t, "Solar: a quick introduction", msg.Subject)
	assert.Contains(t, msg.Body, "Hi Ada,")

	got := f.store.run(run.ID)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, 1, got.StepIndex)
	assert.True(t, got.NextAt.Equal(testNow.Add(48*time.Hour)), "next step's own delay applies")
	require.Len(t, got.History, 1)
	assert.True(t, got.History[0].OK)
	assert.Equal(t, "intro_email", got.History[0].Message)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 1)
	assert.Equal(t, run.ID, sent[0].RunID)
	assert.Equal(t, 0, sent[0].StepIndex)
}

func TestProcessRunsSequenceToCompletion(t *testing.T) {
	f := newFixture(t)
	run := f.createRun(t)

	f.process(t)
	assert.Empty(t, f.process(t).Results, "not due before the delay")

	f.clock.Advance(48 * time.Hour)
	f.process(t)
	f.clock.Advance(96 * time.Hour)
	res := f.process(t)
	require.Len(t, res.Results, 1)
	assert.Equal(t, domain.StatusCompleted, res.Results[0].Status)

	got := f.store.run(run.ID)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, 3, got.StepIndex)
	assert.Len(t, got.History, 3)
	assert.Equal(t, 3, f.sender.count())

	f.clock.Advance(30 * 24 * time.Hour)
	assert.Empty(t, f.process(t).Results, "completed runs are never selected")
}

func TestFailedSendSurfacesInHistory(t *testing.T) {
	f := newFixture(t)
	run := f.createRun(t)
	before := len(f.store.run(run.ID).History)
	f.sender.err = errTransport

	var failed int
	var mu sync.Mutex
	f.bus.Subscribe(events.OutreachRunFailed{}.EventName(), events.HandlerFunc(func(context.Context, events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		failed++
		return nil
	}))

	res := f.process(t)
	require.Len(t, res.Results, 1)
	assert.False(t, res.Results[0].OK)
	assert.Equal(t, errTransport.Error(), res.Results[0].Error)

	got := f.store.run(run.ID)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Len(t, got.History, before+1)
	last := got.History[len(got.History)-1]
	assert.False(t, last.OK)
	assert.Equal(t, "email", last.Channel)
	require.NotNil(t, got.LastError)
	assert.Equal(t, errTransport.Error(), *got.LastError)

	assert.Empty(t, f.process(t).Results, "no automatic retry")
	mu.Lock()
	assert.Equal(t, 1, failed)
	mu.Unlock()
}

func TestRetryMakesFailedRunDueAgain(t *testing.T) {
	f := newFixture(t)
	run := f.createRun(t)
	f.sender.err = errTransport
	f.process(t)

	f.clock.Advance(time.Minute)
	retried, err := f.runs.Retry(context.Background(), f.tenantID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, retried.Status)
	assert.False(t, retried.NextAt.After(f.clock.Now()))
	assert.Nil(t, retried.LastError)

	f.sender.err = nil
	res := f.process(t)
	require.Len(t, res.Results, 1)
	assert.Equal(t, run.ID, res.Results[0].RunID)
	assert.True(t, res.Results[0].OK)
}

func TestSuppressedRunIsNeverSent(t *testing.T) {
	f := newFixture(t)
	run := f.createRun(t)
	f.store.setStatus(run.ID, domain.StatusSuppressed)

	res := f.process(t)
	assert.Empty(t, res.Results)
	assert.Zero(t, f.sender.count())
	assert.Equal(t, domain.StatusSuppressed, f.store.run(run.ID).Status)
}

func TestUpdateCannotLiftSuppression(t *testing.T) {
	f := newFixture(t)
	run := f.createRun(t)
	f.store.setStatus(run.ID, domain.StatusSuppressed)

	pending := domain.StatusPending
	_, err := f.runs.Update(context.Background(), f.tenantID, run.ID, domain.Patch{Status: &pending})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, domain.StatusSuppressed, f.store.run(run.ID).Status)

	res := f.process(t)
	assert.Empty(t, res.Results)
	assert.Zero(t, f.sender.count())
}

func TestSuppressionAfterClaimWins(t *testing.T) {
	f := newFixture(t)
	run := f.createRun(t)
	f.store.afterClaim = func() { f.store.setStatus(run.ID, domain.StatusSuppressed) }

	res := f.process(t)
	require.Len(t, res.Results, 1)
	assert.True(t, res.Results[0].Skipped)
	assert.Zero(t, f.sender.count())

	got := f.store.run(run.ID)
	assert.Equal(t, domain.StatusSuppressed, got.Status)
	assert.Empty(t, got.History)
}

func TestProcessOrdersByNextAtAndHonoursLimit(t *testing.T) {
	f := newFixture(t)
	leads := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for i, id := range leads {
		f.addLead(id, "Lead")
		_, _, err := f.runs.CreateOrReset(context.Background(), f.tenantID, f.campaignID, id, false)
		require.NoError(t, err)
		at := testNow.Add(-time.Duration(len(leads)-i) * time.Minute)
		_, err = f.runs.Update(context.Background(), f.tenantID, domain.RunID(f.campaignID, id), domain.Patch{NextAt: &at})
		require.NoError(t, err)
	}

	res, err := f.processor.ProcessDueRuns(context.Background(), ProcessOptions{Limit: 2})
	require.NoError(t, err)
	f.bus.Wait()
	require.Len(t, res.Results, 2)
	assert.Equal(t, leads[0], res.Results[0].LeadID)
	assert.Equal(t, leads[1], res.Results[1].LeadID)
}

func TestProcessScopesToTenantAndCampaign(t *testing.T) {
	f := newFixture(t)
	f.createRun(t)

	other := uuid.New()
	res, err := f.processor.ProcessDueRuns(context.Background(), ProcessOptions{TenantID: &other})
	require.NoError(t, err)
	assert.Empty(t, res.Results)

	res, err = f.processor.ProcessDueRuns(context.Background(), ProcessOptions{TenantID: &f.tenantID, CampaignID: &f.campaignID})
	require.NoError(t, err)
	f.bus.Wait()
	assert.Len(t, res.Results, 1)
	assert.Equal(t, []Scope{{TenantID: f.tenantID, CampaignID: f.campaignID}}, res.Touched())
}

func TestUsageLimitFailsRun(t *testing.T) {
	f := newFixture(t)
	f.processor.SetUsageMeter(&quotaMeter{max: 0})
	run := f.createRun(t)

	res := f.process(t)
	require.Len(t, res.Results, 1)
	assert.Contains(t, res.Results[0].Error, "usage limit exceeded: outreach_sends")
	assert.Zero(t, f.sender.count())
	assert.Equal(t, domain.StatusFailed, f.store.run(run.ID).Status)
}

func TestFailedSendDoesNotUseQuota(t *testing.T) {
	f := newFixture(t)
	quota := &quotaMeter{max: 1}
	f.processor.SetUsageMeter(quota)
	run := f.createRun(t)

	f.sender.err = errTransport
	res := f.process(t)
	require.Len(t, res.Results, 1)
	assert.Equal(t, errTransport.Error(), res.Results[0].Error)
	assert.Zero(t, quota.used[f.tenantID])

	_, err := f.runs.Retry(context.Background(), f.tenantID, run.ID)
	require.NoError(t, err)
	f.sender.err = nil
	res = f.process(t)
	require.Len(t, res.Results, 1)
	assert.True(t, res.Results[0].OK)
	assert.Equal(t, int64(1), quota.used[f.tenantID])
}

func TestUnknownSequenceAndMissingContactFail(t *testing.T) {
	f := newFixture(t)
	run := f.createRun(t)
	key := "retired"
	_, err := f.runs.Update(context.Background(), f.tenantID, run.ID, domain.Patch{SequenceKey: &key})
	require.NoError(t, err)

	res := f.process(t)
	require.Len(t, res.Results, 1)
	assert.Contains(t, res.Results[0].Error, `unknown sequence "retired"`)
	got := f.store.run(run.ID)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, domain.ChannelSystem, got.History[len(got.History)-1].Channel)

	lead := uuid.New()
	f.directory.members[f.campaignID] = append(f.directory.members[f.campaignID], lead)
	_, _, err = f.runs.CreateOrReset(context.Background(), f.tenantID, f.campaignID, lead, false)
	require.NoError(t, err)
	res = f.process(t)
	require.Len(t, res.Results, 1)
	assert.Contains(t, res.Results[0].Error, "lead not found")
}

func TestOneFailingRunDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t)
	f.createRun(t)
	noPhone := uuid.New()
	f.directory.contacts[noPhone] = Contact{LeadID: noPhone, FirstName: "Cy"}
	_, _, err := f.runs.CreateOrReset(context.Background(), f.tenantID, f.campaignID, noPhone, false)
	require.NoError(t, err)

	res := f.process(t)
	require.Len(t, res.Results, 2)
	var ok, failed int
	for _, r := range res.Results {
		if r.OK {
			ok++
		} else {
			failed++
			assert.Equal(t, "lead has no email address", r.Error)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)
}

func TestClaimFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	f.store.claimErr = errors.New("connection refused")
	_, err := f.processor.ProcessDueRuns(context.Background(), ProcessOptions{})
	require.Error(t, err)
}

func TestLeaseMakesAbandonedRunDueAgain(t *testing.T) {
	f := newFixture(t)
	run := f.createRun(t)

	// Simulate a worker that claimed the run and died before writing back.
	_, err := f.store.ClaimDue(context.Background(), repository.ClaimParams{
		Now: testNow, LeaseUntil: testNow.Add(5 * time.Minute), Limit: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, f.process(t).Results, "leased run is not due")

	f.clock.Advance(5 * time.Minute)
	res := f.process(t)
	require.Len(t, res.Results, 1)
	assert.Equal(t, run.ID, res.Results[0].RunID)
}
