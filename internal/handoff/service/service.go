// Package service implements the handoff suppression gate: opening a ticket
// stops automated outreach for the lead in that campaign until an operator
// resolves it and asks to resume.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	audience "growth_backend/internal/audience/domain"
	"growth_backend/internal/campaigns"
	"growth_backend/internal/events"
	"growth_backend/internal/handoff/repository"
	outreach "growth_backend/internal/outreach/domain"
	"growth_backend/platform/apperr"
	"growth_backend/platform/logger"
	"growth_backend/platform/metrics"
	"growth_backend/platform/sanitize"

	"github.com/google/uuid"
)

const (
	defaultReason    = "manual"
	maxReasonLength  = 200
	maxChannelLength = 32
	defaultListLimit = 100
	maxListLimit     = 500
)

// Campaigns checks that the lead and campaign exist for the tenant.
type Campaigns interface {
	GetCampaign(ctx context.Context, tenantID, campaignID uuid.UUID) (campaigns.Campaign, error)
	LeadExists(ctx context.Context, tenantID, leadID uuid.UUID) (bool, error)
}

// CreateTicketInput opens a ticket.
type CreateTicketInput struct {
	LeadID     uuid.UUID
	CampaignID uuid.UUID
	Reason     string
	Channel    *string
	Notes      *string
}

// ResolveInput closes a ticket.
type ResolveInput struct {
	ResumeAutomation bool
}

// ResolveResult reports a resolution.
type ResolveResult struct {
	Ticket  repository.Ticket
	Resumed bool
}

// Service is the handoff suppression gate.
type Service struct {
	repo            repository.Repository
	campaigns       Campaigns
	bus             events.Bus
	defaultSequence string
	log             *logger.Logger
	now             func() time.Time
}

// New creates the handoff service. defaultSequence is bound to runs created
// in suppressed state for campaigns without a sequence.
func New(repo repository.Repository, campaigns Campaigns, bus events.Bus, defaultSequence string, log *logger.Logger) *Service {
	if strings.TrimSpace(defaultSequence) == "" {
		defaultSequence = "default"
	}
	return &Service{repo: repo, campaigns: campaigns, bus: bus, defaultSequence: defaultSequence, log: log, now: time.Now}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateTicket opens a ticket and suppresses the matching run atomically.
func (s *Service) CreateTicket(ctx context.Context, tenantID uuid.UUID, in CreateTicketInput) (uuid.UUID, error) {
	if in.LeadID == uuid.Nil || in.CampaignID == uuid.Nil {
		return uuid.Nil, apperr.Validation("leadId and campaignId are required")
	}

	campaign, err := s.campaigns.GetCampaign(ctx, tenantID, in.CampaignID)
	if err != nil {
		return uuid.Nil, err
	}
	exists, err := s.campaigns.LeadExists(ctx, tenantID, in.LeadID)
	if err != nil {
		return uuid.Nil, err
	}
	if !exists {
		return uuid.Nil, apperr.NotFound("lead not found")
	}

	reason := sanitize.Line(in.Reason, maxReasonLength)
	if reason == "" {
		reason = defaultReason
	}
	var channel *string
	if in.Channel != nil {
		if c := sanitize.Line(*in.Channel, maxChannelLength); c != "" {
			channel = &c
		}
	}

	now := s.now().UTC()
	runID := outreach.RunID(in.CampaignID, in.LeadID)
	ticket := repository.Ticket{
		ID:         uuid.New(),
		TenantID:   tenantID,
		LeadID:     in.LeadID,
		CampaignID: in.CampaignID,
		RunID:      runID,
		Status:     repository.StatusOpen,
		Reason:     reason,
		Channel:    channel,
		Notes:      sanitize.TextPtr(in.Notes),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	sequenceKey := s.defaultSequence
	if campaign.SequenceKey != nil && strings.TrimSpace(*campaign.SequenceKey) != "" {
		sequenceKey = *campaign.SequenceKey
	}
	entityID, _ := audience.EntityKey(&in.LeadID, "")
	campaignID := in.CampaignID

	err = s.repo.CreateTicket(ctx, repository.Suppression{
		Ticket:      ticket,
		SequenceKey: sequenceKey,
		History: outreach.HistoryEntry{
			At:      now,
			Channel: outreach.ChannelHandoff,
			OK:      true,
			Message: "suppressed: " + reason,
		},
		Action: audience.Action{
			ID:         uuid.New(),
			TenantID:   tenantID,
			Type:       audience.ActionHandoffSuppressed,
			EntityID:   entityID,
			CampaignID: &campaignID,
			Payload: map[string]any{
				"ticketId": ticket.ID.String(),
				"runId":    runID.String(),
				"reason":   reason,
			},
			CreatedAt: now,
		},
	})
	if err != nil {
		return uuid.Nil, err
	}

	metrics.HandoffTickets.Inc()
	s.log.Info("handoff ticket created", "tenantId", tenantID, "ticketId", ticket.ID, "runId", runID)

	if s.bus != nil {
		// The ticket is committed; a failed feedback write is logged only.
		err := s.bus.PublishSync(ctx, events.HandoffTicketCreated{
			BaseEvent:  events.NewBaseEvent(tenantID, now),
			TicketID:   ticket.ID,
			RunID:      runID,
			CampaignID: in.CampaignID,
			LeadID:     in.LeadID,
			Reason:     reason,
		})
		if err != nil {
			s.log.Warn("handoff feedback not recorded", "tenantId", tenantID, "ticketId", ticket.ID, "error", err)
		}
	}
	return ticket.ID, nil
}

// ListTickets returns the tenant's tickets, optionally filtered by status.
func (s *Service) ListTickets(ctx context.Context, tenantID uuid.UUID, status *string, limit int) ([]repository.Ticket, error) {
	if status != nil && *status != repository.StatusOpen && *status != repository.StatusResolved {
		return nil, apperr.Validation("status must be open or resolved")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.ListTickets(ctx, tenantID, status, limit)
}

// ResolveTicket closes a ticket. With ResumeAutomation the suppressed run
// becomes pending again, provided no other ticket for it is still open.
func (s *Service) ResolveTicket(ctx context.Context, tenantID, ticketID uuid.UUID, in ResolveInput) (ResolveResult, error) {
	now := s.now().UTC()
	ticket, resumed, err := s.repo.ResolveTicket(ctx, repository.Resolution{
		TenantID:         tenantID,
		TicketID:         ticketID,
		ResumeAutomation: in.ResumeAutomation,
		History:          outreach.HistoryEntry{At: now, Channel: outreach.ChannelHandoff, OK: true, Message: "resumed"},
		At:               now,
	})
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ResolveResult{}, apperr.NotFound("handoff ticket not found")
	case errors.Is(err, repository.ErrAlreadyResolved):
		return ResolveResult{}, apperr.Conflict("handoff ticket already resolved")
	case err != nil:
		return ResolveResult{}, err
	}

	s.log.Info("handoff ticket resolved", "tenantId", tenantID, "ticketId", ticketID, "resumed", resumed)
	if s.bus != nil {
		s.bus.Publish(ctx, events.HandoffTicketResolved{
			BaseEvent:        events.NewBaseEvent(tenantID, now),
			TicketID:         ticketID,
			RunID:            ticket.RunID,
			ResumeAutomation: in.ResumeAutomation,
			Resumed:          resumed,
		})
	}
	return ResolveResult{Ticket: ticket, Resumed: resumed}, nil
}
