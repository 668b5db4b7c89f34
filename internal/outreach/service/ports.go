// Package service implements the outreach run store, the due-run processor
// and the campaign-level sender run.
package service

import (
	"context"

	"growth_backend/internal/channels"

	"github.com/google/uuid"
)

// UsageMetricSends is the usage counter consumed once per delivered step.
const UsageMetricSends = "outreach_sends"

// Campaign is the part of a campaign the outreach module reads.
type Campaign struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	Name            string
	OutreachEnabled bool
	SequenceKey     string
}

// Contact is how a lead can be reached.
type Contact struct {
	LeadID    uuid.UUID
	FirstName string
	Email     string
	Phone     string
}

// Directory resolves campaigns and leads owned by the CRUD layer. Missing
// records are reported as apperr NotFound.
type Directory interface {
	Campaign(ctx context.Context, tenantID, campaignID uuid.UUID) (Campaign, error)
	LeadContact(ctx context.Context, tenantID, leadID uuid.UUID) (Contact, error)
	ListCampaignLeads(ctx context.Context, tenantID, campaignID uuid.UUID, limit int) ([]uuid.UUID, error)
	ListLeadsWithoutRun(ctx context.Context, tenantID, campaignID uuid.UUID, limit int) ([]uuid.UUID, error)
}

// UsageMeter consumes plan usage. Over-limit consumption returns an apperr
// LimitExceeded error. Release refunds units whose send failed.
type UsageMeter interface {
	Consume(ctx context.Context, tenantID uuid.UUID, metric string, n int64) error
	Release(ctx context.Context, tenantID uuid.UUID, metric string, n int64) error
}

// Sender delivers one rendered step.
type Sender interface {
	Send(ctx context.Context, msg channels.Message) error
}
