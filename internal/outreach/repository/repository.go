package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"growth_backend/internal/outreach/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo implements RunStore with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new outreach run repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

var _ RunStore = (*Repo)(nil)

const runColumns = `id, tenant_id, campaign_id, lead_id, sequence_key, status, step_index,
	next_at, history, last_error, created_at, updated_at`

// Insert creates the run if its deterministic id is free.
func (r *Repo) Insert(ctx context.Context, run domain.Run) (bool, error) {
	history, err := json.Marshal(run.History)
	if err != nil {
		return false, fmt.Errorf("marshal run history: %w", err)
	}

	query := `
		INSERT INTO outreach_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		run.ID, run.TenantID, run.CampaignID, run.LeadID, run.SequenceKey, string(run.Status),
		run.StepIndex, run.NextAt, history, run.LastError, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert outreach run: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get loads one run.
func (r *Repo) Get(ctx context.Context, tenantID, runID uuid.UUID) (domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM outreach_runs WHERE tenant_id = $1 AND id = $2`

	run, err := scanRun(r.pool.QueryRow(ctx, query, tenantID, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Run{}, ErrNotFound
	}
	if err != nil {
		return domain.Run{}, fmt.Errorf("get outreach run: %w", err)
	}
	return run, nil
}

// Update merges patch into the run in a single statement. History is only
// ever appended with the jsonb concatenation operator.
func (r *Repo) Update(ctx context.Context, tenantID, runID uuid.UUID, patch domain.Patch, now time.Time) (bool, error) {
	appendHistory := patch.Append
	if appendHistory == nil {
		appendHistory = []domain.HistoryEntry{}
	}
	history, err := json.Marshal(appendHistory)
	if err != nil {
		return false, fmt.Errorf("marshal run history: %w", err)
	}

	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}
	expect := make([]string, 0, len(patch.Expect))
	for _, s := range patch.Expect {
		expect = append(expect, string(s))
	}

	query := `
		UPDATE outreach_runs SET
			status = COALESCE($3, status),
			step_index = COALESCE($4, step_index),
			next_at = COALESCE($5, next_at),
			sequence_key = COALESCE($6, sequence_key),
			last_error = CASE WHEN $8 THEN NULL ELSE COALESCE($7, last_error) END,
			history = history || $9::jsonb,
			updated_at = $10
		WHERE tenant_id = $1 AND id = $2
			AND (cardinality($11::text[]) = 0 OR status = ANY($11::text[]))`

	tag, err := r.pool.Exec(ctx, query,
		tenantID, runID, status, patch.StepIndex, patch.NextAt, patch.SequenceKey,
		patch.LastError, patch.ClearLastError, history, now, expect,
	)
	if err != nil {
		return false, fmt.Errorf("update outreach run: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// List returns the tenant's runs, most recently updated first.
func (r *Repo) List(ctx context.Context, params ListParams) ([]domain.Run, error) {
	var status *string
	if params.Status != nil {
		s := string(*params.Status)
		status = &s
	}

	query := `
		SELECT ` + runColumns + `
		FROM outreach_runs
		WHERE tenant_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY updated_at DESC, id ASC
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, params.TenantID, status, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("list outreach runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// ClaimDue selects due runs with SKIP LOCKED so overlapping invocations never
// claim the same run, and pushes next_at to the lease deadline so a crashed
// worker's run becomes due again only after the lease.
func (r *Repo) ClaimDue(ctx context.Context, params ClaimParams) ([]domain.Run, error) {
	query := `
		WITH due AS (
			SELECT id, next_at
			FROM outreach_runs
			WHERE status IN ('pending', 'running')
				AND next_at <= $1
				AND ($2::uuid IS NULL OR tenant_id = $2)
				AND ($3::uuid IS NULL OR campaign_id = $3)
			ORDER BY next_at ASC, id ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outreach_runs r SET
			status = 'running',
			next_at = $5,
			updated_at = $1
		FROM due
		WHERE r.id = due.id
		RETURNING r.id, r.tenant_id, r.campaign_id, r.lead_id, r.sequence_key, r.status,
			r.step_index, due.next_at, r.history, r.last_error, r.created_at, r.updated_at`

	rows, err := r.pool.Query(ctx, query, params.Now, params.TenantID, params.CampaignID, params.Limit, params.LeaseUntil)
	if err != nil {
		return nil, fmt.Errorf("claim due outreach runs: %w", err)
	}
	defer rows.Close()

	runs, err := collectRuns(rows)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].NextAt.Equal(runs[j].NextAt) {
			return runs[i].ID.String() < runs[j].ID.String()
		}
		return runs[i].NextAt.Before(runs[j].NextAt)
	})
	return runs, nil
}

func collectRuns(rows pgx.Rows) ([]domain.Run, error) {
	runs := make([]domain.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outreach run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outreach runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (domain.Run, error) {
	var (
		run     domain.Run
		status  string
		history []byte
	)
	if err := row.Scan(
		&run.ID, &run.TenantID, &run.CampaignID, &run.LeadID, &run.SequenceKey, &status,
		&run.StepIndex, &run.NextAt, &history, &run.LastError, &run.CreatedAt, &run.UpdatedAt,
	); err != nil {
		return domain.Run{}, err
	}
	run.Status = domain.Status(status)
	run.History = []domain.HistoryEntry{}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &run.History); err != nil {
			return domain.Run{}, fmt.Errorf("decode run history: %w", err)
		}
	}
	return run, nil
}
