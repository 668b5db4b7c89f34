// Package repository persists handoff tickets together with the run
// suppression and audit action they imply.
package repository

import (
	"context"
	"errors"
	"time"

	audience "growth_backend/internal/audience/domain"
	"growth_backend/internal/outreach/domain"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a ticket does not exist for the tenant.
	ErrNotFound = errors.New("handoff ticket not found")
	// ErrAlreadyResolved is returned when resolving a closed ticket.
	ErrAlreadyResolved = errors.New("handoff ticket already resolved")
)

// Ticket statuses.
const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
)

// Ticket is a human escalation for one lead in one campaign.
type Ticket struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	LeadID     uuid.UUID
	CampaignID uuid.UUID
	RunID      uuid.UUID
	Status     string
	Reason     string
	Channel    *string
	Notes      *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ResolvedAt *time.Time
}

// Suppression is everything written when a ticket opens.
type Suppression struct {
	Ticket      Ticket
	SequenceKey string
	History     domain.HistoryEntry
	Action      audience.Action
}

// Resolution closes a ticket and optionally resumes automation.
type Resolution struct {
	TenantID         uuid.UUID
	TicketID         uuid.UUID
	ResumeAutomation bool
	History          domain.HistoryEntry
	At               time.Time
}

// Repository is the persistence contract of the handoff module.
type Repository interface {
	// CreateTicket inserts the ticket, forces the run to suppressed (creating
	// it if absent) and appends the audit action, all in one transaction.
	CreateTicket(ctx context.Context, s Suppression) error
	ListTickets(ctx context.Context, tenantID uuid.UUID, status *string, limit int) ([]Ticket, error)
	// ResolveTicket closes the ticket. When resumption is requested and no
	// other ticket for the run is open, a suppressed run goes back to pending;
	// the returned bool reports whether that happened.
	ResolveTicket(ctx context.Context, r Resolution) (Ticket, bool, error)
}
