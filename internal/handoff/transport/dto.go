package transport

import (
	"time"

	"growth_backend/internal/handoff/repository"

	"github.com/google/uuid"
)

// CreateTicketRequest is the body of POST /handoff/tickets.
type CreateTicketRequest struct {
	LeadID     uuid.UUID `json:"leadId" validate:"required"`
	CampaignID uuid.UUID `json:"campaignId" validate:"required"`
	Reason     string    `json:"reason" validate:"omitempty,max=500"`
	Channel    *string   `json:"channel" validate:"omitempty,max=32"`
	Notes      *string   `json:"notes" validate:"omitempty,max=4000"`
}

// CreateTicketResponse returns the new ticket id.
type CreateTicketResponse struct {
	TicketID uuid.UUID `json:"ticketId"`
}

// ListTicketsQuery filters GET /handoff/tickets.
type ListTicketsQuery struct {
	Status string `form:"status" validate:"omitempty,oneof=open resolved"`
	Limit  int    `form:"limit" validate:"omitempty,min=1,max=500"`
}

// ResolveTicketRequest is the body of POST /handoff/tickets/:id/resolve.
type ResolveTicketRequest struct {
	ResumeAutomation bool `json:"resumeAutomation"`
}

// TicketResponse is one handoff ticket.
type TicketResponse struct {
	ID         uuid.UUID  `json:"id"`
	LeadID     uuid.UUID  `json:"leadId"`
	CampaignID uuid.UUID  `json:"campaignId"`
	RunID      uuid.UUID  `json:"runId"`
	Status     string     `json:"status"`
	Reason     string     `json:"reason"`
	Channel    *string    `json:"channel"`
	Notes      *string    `json:"notes"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	ResolvedAt *time.Time `json:"resolvedAt"`
}

// ListTicketsResponse lists tickets.
type ListTicketsResponse struct {
	Tickets []TicketResponse `json:"tickets"`
}

// ResolveTicketResponse reports a resolution.
type ResolveTicketResponse struct {
	OK      bool           `json:"ok"`
	Resumed bool           `json:"resumed"`
	Ticket  TicketResponse `json:"ticket"`
}

// ToTicket maps a ticket.
func ToTicket(t repository.Ticket) TicketResponse {
	return TicketResponse{
		ID:         t.ID,
		LeadID:     t.LeadID,
		CampaignID: t.CampaignID,
		RunID:      t.RunID,
		Status:     t.Status,
		Reason:     t.Reason,
		Channel:    t.Channel,
		Notes:      t.Notes,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
		ResolvedAt: t.ResolvedAt,
	}
}

// ToTickets maps tickets.
func ToTickets(tickets []repository.Ticket) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, ToTicket(t))
	}
	return out
}
