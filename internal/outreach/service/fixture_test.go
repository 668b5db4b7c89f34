package service

import (
	"context"
	"testing"
	"time"

	"growth_backend/internal/events"
	"growth_backend/internal/outreach/domain"
	"growth_backend/internal/outreach/sequence"
	"growth_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 6, 30, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store      *memStore
	directory  *fakeDirectory
	sender     *recordingSender
	clock      *clock
	bus        *events.InMemoryBus
	runs       *RunStore
	processor  *Processor
	tenantID   uuid.UUID
	campaignID uuid.UUID
	leadID     uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	catalog, err := sequence.Default()
	require.NoError(t, err)

	log := logger.Nop()
	f := &fixture{
		store:      newMemStore(),
		sender:     &recordingSender{},
		clock:      &clock{now: testNow},
		bus:        events.NewInMemoryBus(log),
		tenantID:   uuid.New(),
		campaignID: uuid.New(),
		leadID:     uuid.New(),
	}
	f.directory = newFakeDirectory(f.store)
	f.directory.campaigns[f.campaignID] = Campaign{
		ID:              f.campaignID,
		TenantID:        f.tenantID,
		Name:            "Solar",
		OutreachEnabled: true,
	}
	f.addLead(f.leadID, "Ada")

	f.runs = NewRunStore(f.store, f.directory, "default", log)
	f.runs.SetClock(f.clock.Now)
	f.processor = NewProcessor(f.store, catalog, f.directory, f.sender, ProcessorSettings{
		StepDelay:  24 * time.Hour,
		ClaimLease: 5 * time.Minute,
		BatchLimit: 50,
	}, f.bus, log)
	f.processor.SetClock(f.clock.Now)
	return f
}

func (f *fixture) addLead(id uuid.UUID, firstName string) {
	f.directory.contacts[id] = Contact{LeadID: id, FirstName: firstName, Email: firstName + "@example.com", Phone: "+15551234567"}
	f.directory.members[f.campaignID] = append(f.directory.members[f.campaignID], id)
}

func (f *fixture) createRun(t *testing.T) domain.Run {
	t.Helper()
	run, outcome, err := f.runs.CreateOrReset(context.Background(), f.tenantID, f.campaignID, f.leadID, false)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeCreated, outcome)
	return run
}

func (f *fixture) process(t *testing.T) ProcessResult {
	t.Helper()
	res, err := f.processor.ProcessDueRuns(context.Background(), ProcessOptions{Limit: 50})
	require.NoError(t, err)
	f.bus.Wait()
	return res
}
