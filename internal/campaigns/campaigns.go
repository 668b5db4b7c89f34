// Package campaigns reads the campaigns and leads owned by the CRUD layer.
// Nothing in this package writes to those tables.
package campaigns

import (
	"context"
	"errors"
	"fmt"

	"growth_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Campaign is a marketing campaign.
type Campaign struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	Name            string
	OutreachEnabled bool
	SequenceKey     *string
}

// Contact is how a lead can be reached.
type Contact struct {
	LeadID    uuid.UUID
	FirstName string
	Email     *string
	Phone     *string
}

// Reader is the read-only campaign and lead collaborator.
type Reader interface {
	GetCampaign(ctx context.Context, tenantID, campaignID uuid.UUID) (Campaign, error)
	LeadExists(ctx context.Context, tenantID, leadID uuid.UUID) (bool, error)
	GetLeadContact(ctx context.Context, tenantID, leadID uuid.UUID) (Contact, error)
	ListCampaignLeads(ctx context.Context, tenantID, campaignID uuid.UUID, limit int) ([]uuid.UUID, error)
	ListLeadsWithoutRun(ctx context.Context, tenantID, campaignID uuid.UUID, limit int) ([]uuid.UUID, error)
}

// Repository implements Reader with PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new campaigns repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Reader = (*Repository)(nil)

// GetCampaign returns the tenant's campaign or a NotFound error.
func (r *Repository) GetCampaign(ctx context.Context, tenantID, campaignID uuid.UUID) (Campaign, error) {
	var c Campaign
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, outreach_enabled, sequence_key
		FROM campaigns
		WHERE id = $1 AND tenant_id = $2`, campaignID, tenantID,
	).Scan(&c.ID, &c.TenantID, &c.Name, &c.OutreachEnabled, &c.SequenceKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return Campaign{}, apperr.NotFound("campaign not found")
	}
	if err != nil {
		return Campaign{}, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// LeadExists reports whether the tenant owns the lead.
func (r *Repository) LeadExists(ctx context.Context, tenantID, leadID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM leads WHERE id = $1 AND tenant_id = $2)`, leadID, tenantID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check lead: %w", err)
	}
	return exists, nil
}

// GetLeadContact returns the lead's contact fields or a NotFound error.
func (r *Repository) GetLeadContact(ctx context.Context, tenantID, leadID uuid.UUID) (Contact, error) {
	var c Contact
	err := r.pool.QueryRow(ctx, `
		SELECT id, first_name, email, phone
		FROM leads
		WHERE id = $1 AND tenant_id = $2`, leadID, tenantID,
	).Scan(&c.LeadID, &c.FirstName, &c.Email, &c.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, apperr.NotFound("lead not found")
	}
	if err != nil {
		return Contact{}, fmt.Errorf("get lead contact: %w", err)
	}
	return c, nil
}

// ListCampaignLeads returns the campaign's leads, oldest membership first.
func (r *Repository) ListCampaignLeads(ctx context.Context, tenantID, campaignID uuid.UUID, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT lead_id
		FROM campaign_leads
		WHERE tenant_id = $1 AND campaign_id = $2
		ORDER BY created_at ASC, lead_id ASC
		LIMIT $3`, tenantID, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("list campaign leads: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("scan campaign leads: %w", err)
	}
	return ids, nil
}

// ListLeadsWithoutRun returns campaign leads that have no outreach run yet.
func (r *Repository) ListLeadsWithoutRun(ctx context.Context, tenantID, campaignID uuid.UUID, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT cl.lead_id
		FROM campaign_leads cl
		LEFT JOIN outreach_runs r
			ON r.campaign_id = cl.campaign_id AND r.lead_id = cl.lead_id
		WHERE cl.tenant_id = $1 AND cl.campaign_id = $2 AND r.id IS NULL
		ORDER BY cl.created_at ASC, cl.lead_id ASC
		LIMIT $3`, tenantID, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("list leads without run: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("scan leads without run: %w", err)
	}
	return ids, nil
}
