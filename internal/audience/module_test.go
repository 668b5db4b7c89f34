package audience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"growth_backend/internal/audience/domain"
	"growth_backend/internal/audience/repository"
	"growth_backend/internal/events"
	"growth_backend/platform/config"
	"growth_backend/platform/logger"
	"growth_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct{}

func (testConfig) GetAudienceWindowDays() int { return 30 }
func (testConfig) GetAudienceScanCap() int    { return 1000 }
func (testConfig) GetTierThresholds() config.TierThresholds {
	return config.TierThresholds{Cold: 3, Warm: 13, Hot: 21}
}
func (testConfig) GetOutreachTiers() []string    { return []string{"hot"} }
func (testConfig) GetRollupScanCap() int         { return 1000 }
func (testConfig) GetPhoneDefaultRegion() string { return "NL" }

// insertLog keeps inserted events; every other store call panics.
type insertLog struct {
	repository.Repository
	mu       sync.Mutex
	inserted []domain.Event
	err      error
}

func (l *insertLog) InsertEvent(_ context.Context, ev domain.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.inserted = append(l.inserted, ev)
	return nil
}

func newTestModule(t *testing.T, repo *insertLog) *events.InMemoryBus {
	t.Helper()
	bus := events.NewInMemoryBus(logger.Nop())
	m, err := newModule(repo, testConfig{}, bus, validator.New(), logger.Nop())
	require.NoError(t, err)
	m.RegisterHandlers(bus)
	return bus
}

func TestStepSentIsRecordedAtSendTime(t *testing.T) {
	repo := &insertLog{}
	bus := newTestModule(t, repo)

	tenantID, campaignID, leadID := uuid.New(), uuid.New(), uuid.New()
	sentAt := time.Now().UTC().Add(-10 * time.Minute).Truncate(time.Second)
	err := bus.PublishSync(context.Background(), events.OutreachStepSent{
		BaseEvent:  events.NewBaseEvent(tenantID, sentAt),
		RunID:      uuid.New(),
		CampaignID: campaignID,
		LeadID:     leadID,
		Channel:    "email",
		StepIndex:  0,
		Template:   "intro_email",
	})
	require.NoError(t, err)

	require.Len(t, repo.inserted, 1)
	ev := repo.inserted[0]
	assert.Equal(t, domain.EventSenderSent, ev.Type)
	assert.Equal(t, tenantID, ev.TenantID)
	require.NotNil(t, ev.CampaignID)
	assert.Equal(t, campaignID, *ev.CampaignID)
	require.NotNil(t, ev.Actor.LeadID)
	assert.Equal(t, leadID, *ev.Actor.LeadID)
	assert.True(t, ev.OccurredAt.Equal(sentAt))
	assert.Equal(t, "intro_email", ev.Payload["template"])
}

func TestHandoffFeedbackErrorReachesPublisher(t *testing.T) {
	repo := &insertLog{err: errors.New("store unavailable")}
	bus := newTestModule(t, repo)

	err := bus.PublishSync(context.Background(), events.HandoffTicketCreated{
		BaseEvent:  events.NewBaseEvent(uuid.New(), time.Time{}),
		TicketID:   uuid.New(),
		RunID:      uuid.New(),
		CampaignID: uuid.New(),
		LeadID:     uuid.New(),
		Reason:     "manual",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handoff.ticket.created")
	assert.Contains(t, err.Error(), "store unavailable")
}

func TestHandoffIsRecordedAsSignal(t *testing.T) {
	repo := &insertLog{}
	bus := newTestModule(t, repo)

	ticketID := uuid.New()
	require.NoError(t, bus.PublishSync(context.Background(), events.HandoffTicketCreated{
		BaseEvent:  events.NewBaseEvent(uuid.New(), time.Time{}),
		TicketID:   ticketID,
		RunID:      uuid.New(),
		CampaignID: uuid.New(),
		LeadID:     uuid.New(),
		Reason:     "manual",
	}))

	require.Len(t, repo.inserted, 1)
	assert.Equal(t, domain.EventHandoffCreated, repo.inserted[0].Type)
	assert.Equal(t, 8, repo.inserted[0].Weight)
	assert.Equal(t, ticketID.String(), repo.inserted[0].Payload["ticketId"])
}
