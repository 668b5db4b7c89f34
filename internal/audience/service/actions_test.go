package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"growth_backend/internal/audience/domain"
	"growth_backend/internal/events"
	"growth_backend/platform/apperr"
	"growth_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCampaigns struct {
	enabled map[uuid.UUID]bool
}

func (s stubCampaigns) OutreachEnabled(_ context.Context, _ uuid.UUID, campaignID uuid.UUID) (bool, error) {
	enabled, ok := s.enabled[campaignID]
	if !ok {
		return false, apperr.NotFound("campaign not found")
	}
	return enabled, nil
}

type recordingStarter struct {
	mu      sync.Mutex
	started map[uuid.UUID]bool
	calls   int
	err     error
}

func (r *recordingStarter) StartOutreach(_ context.Context, _, _, leadID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return false, r.err
	}
	if r.started == nil {
		r.started = make(map[uuid.UUID]bool)
	}
	if r.started[leadID] {
		return false, nil
	}
	r.started[leadID] = true
	return true, nil
}

func newRunner(f *fixture, bus events.Bus) *ActionRunner {
	return NewActionRunner(f.builder, f.repo, map[domain.Tier]bool{domain.TierHot: true}, bus, logger.Nop())
}

func TestNewHotLeadTriggersOutreachOnce(t *testing.T) {
	f := newFixture(t, BuilderSettings{})
	campaignID := uuid.New()
	lead := uuid.New()
	t0 := testNow.Add(-48 * time.Hour)

	f.seed(t, t0, leadActor(lead), domain.EventLandingView, &campaignID)
	f.seed(t, t0.Add(time.Millisecond), leadActor(lead), domain.EventLandingFormSubmit, &campaignID)
	f.seed(t, t0.Add(2*time.Millisecond), leadActor(lead), domain.EventAgentLeadCreated, &campaignID)

	starter := &recordingStarter{}
	runner := newRunner(f, nil)
	runner.SetOutreach(stubCampaigns{enabled: map[uuid.UUID]bool{campaignID: true}}, starter)

	first, err := runner.Run(context.Background(), f.tenantID, RunOptions{CampaignID: &campaignID})
	require.NoError(t, err)

	hot := segmentByTier(t, first.Segments, domain.TierHot)
	assert.Equal(t, 1, hot.Size)
	assert.Equal(t, 1, hot.WithLeadID)
	assert.Equal(t, 1, first.ActionsCreated)
	require.Len(t, first.Actions, 1)
	assert.Equal(t, "hot", first.Actions[0].Type)
	assert.Equal(t, "lead:"+lead.String(), first.Actions[0].EntityID)
	assert.Nil(t, first.Actions[0].FromTier)
	assert.Equal(t, 35, first.Actions[0].Payload["weight"])
	assert.Equal(t, 1, first.OutreachCreated)

	second, err := runner.Run(context.Background(), f.tenantID, RunOptions{CampaignID: &campaignID})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Transitions)
	assert.Equal(t, 0, second.ActionsCreated)
	assert.Equal(t, 0, second.OutreachCreated)

	assert.Len(t, f.repo.actionsOfType("hot"), 1)
	assert.Equal(t, 2, starter.calls)
	assert.Len(t, starter.started, 1)
}

func TestPromotionThroughTiersRecordsEachStep(t *testing.T) {
	f := newFixture(t, BuilderSettings{})
	runner := newRunner(f, nil)

	f.seed(t, testNow.Add(-time.Hour), anonActor("fp"), domain.EventLandingCTAClick, nil)
	s1, err := runner.Run(context.Background(), f.tenantID, RunOptions{})
	require.NoError(t, err)
	require.Len(t, s1.Actions, 1)
	assert.Equal(t, "cold", s1.Actions[0].Type)

	f.seed(t, testNow.Add(-time.Minute), anonActor("fp"), domain.EventAdsConversion, nil)
	s2, err := runner.Run(context.Background(), f.tenantID, RunOptions{})
	require.NoError(t, err)
	require.Len(t, s2.Actions, 1)
	assert.Equal(t, "warm", s2.Actions[0].Type)
	require.NotNil(t, s2.Actions[0].FromTier)
	assert.Equal(t, domain.TierCold, *s2.Actions[0].FromTier)
}

func TestDisappearedEntityRequalifiesAsNewTransition(t *testing.T) {
	f := newFixture(t, BuilderSettings{})
	runner := newRunner(f, nil)

	f.seed(t, testNow.Add(-2*day), anonActor("fp"), domain.EventBrochureDownload, nil)
	s1, err := runner.Run(context.Background(), f.tenantID, RunOptions{WithinDays: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, s1.ActionsCreated)

	// Window moves past the only event: the entity drops out silently.
	f.clock.Set(testNow.Add(5 * day))
	s2, err := runner.Run(context.Background(), f.tenantID, RunOptions{WithinDays: 3})
	require.NoError(t, err)
	assert.Equal(t, 0, s2.ActionsCreated)

	f.seed(t, testNow.Add(5*day-time.Hour), anonActor("fp"), domain.EventBrochureDownload, nil)
	s3, err := runner.Run(context.Background(), f.tenantID, RunOptions{WithinDays: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, s3.ActionsCreated)
	assert.Len(t, f.repo.actionsOfType("cold"), 2)
}

func TestOutreachOnlyForLeadsOnEnabledCampaigns(t *testing.T) {
	f := newFixture(t, BuilderSettings{})
	enabled := uuid.New()
	disabled := uuid.New()
	lead := uuid.New()

	f.seed(t, testNow, anonActor("fp"), domain.EventAgentLeadCreated, &enabled)
	f.seed(t, testNow, leadActor(lead), domain.EventAgentLeadCreated, &disabled)

	starter := &recordingStarter{}
	runner := newRunner(f, nil)
	runner.SetOutreach(stubCampaigns{enabled: map[uuid.UUID]bool{enabled: true, disabled: false}}, starter)

	s1, err := runner.Run(context.Background(), f.tenantID, RunOptions{CampaignID: &enabled})
	require.NoError(t, err)
	assert.Equal(t, 1, s1.ActionsCreated)
	assert.Equal(t, 0, s1.OutreachCreated)

	s2, err := runner.Run(context.Background(), f.tenantID, RunOptions{CampaignID: &disabled})
	require.NoError(t, err)
	assert.Equal(t, 1, s2.ActionsCreated)
	assert.Equal(t, 0, s2.OutreachCreated)
	assert.Equal(t, 0, starter.calls)
}

func TestFailedOutreachStartIsRetriedOnNextRun(t *testing.T) {
	f := newFixture(t, BuilderSettings{})
	campaignID := uuid.New()
	lead := uuid.New()
	f.seed(t, testNow, leadActor(lead), domain.EventAgentLeadCreated, &campaignID)

	starter := &recordingStarter{err: errors.New("store unavailable")}
	runner := newRunner(f, nil)
	runner.SetOutreach(stubCampaigns{enabled: map[uuid.UUID]bool{campaignID: true}}, starter)

	first, err := runner.Run(context.Background(), f.tenantID, RunOptions{CampaignID: &campaignID})
	require.NoError(t, err)
	assert.Equal(t, 1, first.ActionsCreated)
	assert.Equal(t, 1, first.OutreachFailed)
	assert.Equal(t, 0, first.OutreachCreated)

	starter.err = nil
	second, err := runner.Run(context.Background(), f.tenantID, RunOptions{CampaignID: &campaignID})
	require.NoError(t, err)
	assert.Equal(t, 0, second.ActionsCreated)
	assert.Equal(t, 1, second.OutreachCreated)
	assert.True(t, starter.started[lead])
}

func TestEnablingOutreachLaterStartsExistingHotLeads(t *testing.T) {
	f := newFixture(t, BuilderSettings{})
	campaignID := uuid.New()
	lead := uuid.New()
	f.seed(t, testNow, leadActor(lead), domain.EventAgentLeadCreated, &campaignID)

	starter := &recordingStarter{}
	campaigns := stubCampaigns{enabled: map[uuid.UUID]bool{campaignID: false}}
	runner := newRunner(f, nil)
	runner.SetOutreach(campaigns, starter)

	first, err := runner.Run(context.Background(), f.tenantID, RunOptions{CampaignID: &campaignID})
	require.NoError(t, err)
	assert.Equal(t, 1, first.ActionsCreated)
	assert.Equal(t, 0, starter.calls)

	campaigns.enabled[campaignID] = true
	second, err := runner.Run(context.Background(), f.tenantID, RunOptions{CampaignID: &campaignID})
	require.NoError(t, err)
	assert.Equal(t, 0, second.ActionsCreated)
	assert.Equal(t, 1, second.OutreachCreated)
	assert.True(t, starter.started[lead])
}

func TestRunUnknownCampaign(t *testing.T) {
	f := newFixture(t, BuilderSettings{})
	runner := newRunner(f, nil)
	runner.SetOutreach(stubCampaigns{}, &recordingStarter{})

	missing := uuid.New()
	_, err := runner.Run(context.Background(), f.tenantID, RunOptions{CampaignID: &missing})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestOutreachFailureDoesNotAbortRun(t *testing.T) {
	f := newFixture(t, BuilderSettings{})
	campaignID := uuid.New()
	f.seed(t, testNow, leadActor(uuid.New()), domain.EventAgentLeadCreated, &campaignID)
	f.seed(t, testNow, leadActor(uuid.New()), domain.EventAgentLeadCreated, &campaignID)

	starter := &recordingStarter{err: errors.New("store unavailable")}
	runner := newRunner(f, nil)
	runner.SetOutreach(stubCampaigns{enabled: map[uuid.UUID]bool{campaignID: true}}, starter)

	summary, err := runner.Run(context.Background(), f.tenantID, RunOptions{CampaignID: &campaignID})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ActionsCreated)
	assert.Equal(t, 2, summary.OutreachFailed)
}

func TestRunPublishesPromotions(t *testing.T) {
	f := newFixture(t, BuilderSettings{})
	bus := events.NewInMemoryBus(logger.Nop())

	var (
		mu       sync.Mutex
		promoted []events.AudiencePromoted
	)
	bus.Subscribe(events.AudiencePromoted{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		promoted = append(promoted, e.(events.AudiencePromoted))
		return nil
	}))

	f.seed(t, testNow, anonActor("fp"), domain.EventLandingFormSubmit, nil)
	_, err := newRunner(f, bus).Run(context.Background(), f.tenantID, RunOptions{})
	require.NoError(t, err)
	bus.Wait()

	require.Len(t, promoted, 1)
	assert.Equal(t, "warm", promoted[0].ToTier)
	assert.Equal(t, "fp:fp", promoted[0].EntityID)
}

func TestListActionsClampsLimit(t *testing.T) {
	f := newFixture(t, BuilderSettings{})
	runner := newRunner(f, nil)
	for _, fp := range []string{"a", "b", "c"} {
		f.seed(t, testNow, anonActor(fp), domain.EventLandingCTAClick, nil)
	}
	_, err := runner.Run(context.Background(), f.tenantID, RunOptions{})
	require.NoError(t, err)

	actions, err := runner.ListActions(context.Background(), f.tenantID, 2)
	require.NoError(t, err)
	assert.Len(t, actions, 2)

	actions, err = runner.ListActions(context.Background(), f.tenantID, 0)
	require.NoError(t, err)
	assert.Len(t, actions, 3)
}
