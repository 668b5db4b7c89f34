package adapters

import (
	"context"

	"growth_backend/internal/campaigns"
	outreach "growth_backend/internal/outreach/service"

	"github.com/google/uuid"
)

// OutreachDirectory adapts the campaigns repository to the outreach
// module's Directory port.
type OutreachDirectory struct {
	reader campaigns.Reader
}

// NewOutreachDirectory creates a new directory adapter.
func NewOutreachDirectory(reader campaigns.Reader) *OutreachDirectory {
	return &OutreachDirectory{reader: reader}
}

func (a *OutreachDirectory) Campaign(ctx context.Context, tenantID, campaignID uuid.UUID) (outreach.Campaign, error) {
	c, err := a.reader.GetCampaign(ctx, tenantID, campaignID)
	if err != nil {
		return outreach.Campaign{}, err
	}
	return outreach.Campaign{
		ID:              c.ID,
		TenantID:        c.TenantID,
		Name:            c.Name,
		OutreachEnabled: c.OutreachEnabled,
		SequenceKey:     deref(c.SequenceKey),
	}, nil
}

func (a *OutreachDirectory) LeadContact(ctx context.Context, tenantID, leadID uuid.UUID) (outreach.Contact, error) {
	c, err := a.reader.GetLeadContact(ctx, tenantID, leadID)
	if err != nil {
		return outreach.Contact{}, err
	}
	return outreach.Contact{
		LeadID:    c.LeadID,
		FirstName: c.FirstName,
		Email:     deref(c.Email),
		Phone:     deref(c.Phone),
	}, nil
}

func (a *OutreachDirectory) ListCampaignLeads(ctx context.Context, tenantID, campaignID uuid.UUID, limit int) ([]uuid.UUID, error) {
	return a.reader.ListCampaignLeads(ctx, tenantID, campaignID, limit)
}

func (a *OutreachDirectory) ListLeadsWithoutRun(ctx context.Context, tenantID, campaignID uuid.UUID, limit int) ([]uuid.UUID, error) {
	return a.reader.ListLeadsWithoutRun(ctx, tenantID, campaignID, limit)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Compile-time check that OutreachDirectory implements outreach/service.Directory.
var _ outreach.Directory = (*OutreachDirectory)(nil)
