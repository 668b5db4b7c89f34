package adapters

import (
	"context"

	audience "growth_backend/internal/audience/service"
	"growth_backend/internal/campaigns"

	"github.com/google/uuid"
)

// AudienceCampaignReader exposes a campaign's outreach flag to the audience
// action runner.
type AudienceCampaignReader struct {
	reader campaigns.Reader
}

// NewAudienceCampaignReader creates a new campaign reader adapter.
func NewAudienceCampaignReader(reader campaigns.Reader) *AudienceCampaignReader {
	return &AudienceCampaignReader{reader: reader}
}

func (a *AudienceCampaignReader) OutreachEnabled(ctx context.Context, tenantID, campaignID uuid.UUID) (bool, error) {
	c, err := a.reader.GetCampaign(ctx, tenantID, campaignID)
	if err != nil {
		return false, err
	}
	return c.OutreachEnabled, nil
}

var _ audience.CampaignReader = (*AudienceCampaignReader)(nil)
