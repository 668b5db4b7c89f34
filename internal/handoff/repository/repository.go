package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"growth_backend/internal/outreach/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo implements Repository with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new handoff repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

var _ Repository = (*Repo)(nil)

const ticketColumns = `id, tenant_id, lead_id, campaign_id, run_id, status, reason, channel, notes,
	created_at, updated_at, resolved_at`

// CreateTicket writes the ticket, the suppression and the audit action in one
// transaction.
func (r *Repo) CreateTicket(ctx context.Context, s Suppression) error {
	history, err := json.Marshal([]domain.HistoryEntry{s.History})
	if err != nil {
		return fmt.Errorf("marshal suppression history: %w", err)
	}
	payload, err := json.Marshal(s.Action.Payload)
	if err != nil {
		return fmt.Errorf("marshal action payload: %w", err)
	}
	t := s.Ticket

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO handoff_tickets (`+ticketColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10, NULL)`,
		t.ID, t.TenantID, t.LeadID, t.CampaignID, t.RunID, t.Status, t.Reason, t.Channel, t.Notes, t.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert handoff ticket: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO outreach_runs (
			id, tenant_id, campaign_id, lead_id, sequence_key, status, step_index,
			next_at, history, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, 'suppressed', 0, $6, $7::jsonb, $6, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = 'suppressed',
			next_at = EXCLUDED.next_at,
			history = outreach_runs.history || EXCLUDED.history,
			updated_at = EXCLUDED.updated_at`,
		t.RunID, t.TenantID, t.CampaignID, t.LeadID, s.SequenceKey, t.CreatedAt, history,
	); err != nil {
		return fmt.Errorf("suppress outreach run: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO audience_actions (
			id, tenant_id, type, entity_id, from_tier, to_tier, campaign_id, payload, created_at
		) VALUES ($1, $2, $3, $4, NULL, NULL, $5, $6, $7)`,
		s.Action.ID, s.Action.TenantID, s.Action.Type, s.Action.EntityID, s.Action.CampaignID, payload, s.Action.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert suppression action: %w", err)
	}

	return tx.Commit(ctx)
}

// ListTickets returns the tenant's tickets, newest first.
func (r *Repo) ListTickets(ctx context.Context, tenantID uuid.UUID, status *string, limit int) ([]Ticket, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM handoff_tickets
		WHERE tenant_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC, id ASC
		LIMIT $3`, tenantID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list handoff tickets: %w", err)
	}
	defer rows.Close()

	tickets := make([]Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan handoff ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate handoff tickets: %w", err)
	}
	return tickets, nil
}

// ResolveTicket closes an open ticket and, when asked, resumes the run if it
// has no other open ticket.
func (r *Repo) ResolveTicket(ctx context.Context, res Resolution) (Ticket, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Ticket{}, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	t, err := scanTicket(tx.QueryRow(ctx, `
		UPDATE handoff_tickets
		SET status = 'resolved', resolved_at = $3, updated_at = $3
		WHERE tenant_id = $1 AND id = $2 AND status = 'open'
		RETURNING `+ticketColumns, res.TenantID, res.TicketID, res.At))
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM handoff_tickets WHERE tenant_id = $1 AND id = $2)`,
			res.TenantID, res.TicketID,
		).Scan(&exists); err != nil {
			return Ticket{}, false, fmt.Errorf("check handoff ticket: %w", err)
		}
		if exists {
			return Ticket{}, false, ErrAlreadyResolved
		}
		return Ticket{}, false, ErrNotFound
	}
	if err != nil {
		return Ticket{}, false, fmt.Errorf("resolve handoff ticket: %w", err)
	}

	resumed := false
	if res.ResumeAutomation {
		history, err := json.Marshal([]domain.HistoryEntry{res.History})
		if err != nil {
			return Ticket{}, false, fmt.Errorf("marshal resume history: %w", err)
		}
		tag, err := tx.Exec(ctx, `
			UPDATE outreach_runs
			SET status = 'pending', next_at = $3, history = history || $4::jsonb, updated_at = $3
			WHERE tenant_id = $1 AND id = $2 AND status = 'suppressed'
				AND NOT EXISTS (
					SELECT 1 FROM handoff_tickets
					WHERE run_id = $2 AND status = 'open'
				)`, res.TenantID, t.RunID, res.At, history)
		if err != nil {
			return Ticket{}, false, fmt.Errorf("resume outreach run: %w", err)
		}
		resumed = tag.RowsAffected() == 1
	}

	if err := tx.Commit(ctx); err != nil {
		return Ticket{}, false, fmt.Errorf("commit ticket resolution: %w", err)
	}
	return t, resumed, nil
}

func scanTicket(row pgx.Row) (Ticket, error) {
	var t Ticket
	err := row.Scan(
		&t.ID, &t.TenantID, &t.LeadID, &t.CampaignID, &t.RunID, &t.Status, &t.Reason, &t.Channel, &t.Notes,
		&t.CreatedAt, &t.UpdatedAt, &t.ResolvedAt,
	)
	return t, err
}
