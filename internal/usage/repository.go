package usage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements Store with PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a usage repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

// Consume reads the limit and increments the counter in one transaction. The
// upsert locks the counter row, so concurrent consumers serialize on it.
func (r *Repository) Consume(ctx context.Context, tenantID uuid.UUID, metric, period string, n, defaultLimit int64) (Usage, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Usage{}, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	limit, err := readLimit(ctx, tx, tenantID, metric, defaultLimit)
	if err != nil {
		return Usage{}, false, err
	}

	var used int64
	err = tx.QueryRow(ctx, `
		INSERT INTO usage_counters (tenant_id, metric, period, used, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (tenant_id, metric, period) DO UPDATE SET
			used = usage_counters.used + EXCLUDED.used,
			updated_at = now()
		RETURNING used`, tenantID, metric, period, n,
	).Scan(&used)
	if err != nil {
		return Usage{}, false, fmt.Errorf("increment usage counter: %w", err)
	}

	u := Usage{Metric: metric, Period: period, Used: used, Limit: limit}
	if limit > 0 && used > limit {
		u.Used = used - n
		return u, false, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return Usage{}, false, fmt.Errorf("commit usage: %w", err)
	}
	return u, true, nil
}

// Release decrements the counter, floored at zero.
func (r *Repository) Release(ctx context.Context, tenantID uuid.UUID, metric, period string, n int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE usage_counters
		SET used = GREATEST(used - $4, 0), updated_at = now()
		WHERE tenant_id = $1 AND metric = $2 AND period = $3`, tenantID, metric, period, n,
	)
	if err != nil {
		return fmt.Errorf("release usage counter: %w", err)
	}
	return nil
}

// Get reads the counter without changing it.
func (r *Repository) Get(ctx context.Context, tenantID uuid.UUID, metric, period string, defaultLimit int64) (Usage, error) {
	limit, err := readLimit(ctx, r.pool, tenantID, metric, defaultLimit)
	if err != nil {
		return Usage{}, err
	}

	var used int64
	err = r.pool.QueryRow(ctx, `
		SELECT used FROM usage_counters
		WHERE tenant_id = $1 AND metric = $2 AND period = $3`, tenantID, metric, period,
	).Scan(&used)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Usage{}, fmt.Errorf("get usage counter: %w", err)
	}
	return Usage{Metric: metric, Period: period, Used: used, Limit: limit}, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func readLimit(ctx context.Context, q querier, tenantID uuid.UUID, metric string, fallback int64) (int64, error) {
	var limit int64
	err := q.QueryRow(ctx,
		`SELECT max_value FROM usage_limits WHERE tenant_id = $1 AND metric = $2`, tenantID, metric,
	).Scan(&limit)
	if errors.Is(err, pgx.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read usage limit: %w", err)
	}
	return limit, nil
}
