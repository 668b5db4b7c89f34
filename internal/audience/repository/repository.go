package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"growth_backend/internal/audience/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo implements the Repository interface with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new audience repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

// InsertEvent appends one event.
func (r *Repo) InsertEvent(ctx context.Context, event domain.Event) error {
	payload, err := marshalPayload(event.Payload)
	if err != nil {
		return err
	}

	var userID *string
	if event.Actor.UserID != "" {
		userID = &event.Actor.UserID
	}
	var fingerprint *string
	if event.Actor.Fingerprint != "" {
		fingerprint = &event.Actor.Fingerprint
	}

	query := `
		INSERT INTO audience_events (
			id, tenant_id, campaign_id, actor_kind, lead_id, fingerprint, user_id,
			type, weight, payload, pii, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, false, $11)`

	if _, err := r.pool.Exec(ctx, query,
		event.ID, event.TenantID, event.CampaignID, string(event.Actor.Kind), event.Actor.LeadID,
		fingerprint, userID, string(event.Type), event.Weight, payload, event.OccurredAt,
	); err != nil {
		return fmt.Errorf("insert audience event: %w", err)
	}
	return nil
}

// ScanEvents returns the newest events in the window, newest first, bounded
// by Limit.
func (r *Repo) ScanEvents(ctx context.Context, params ScanParams) ([]domain.WeightedEvent, error) {
	query := `
		SELECT lead_id, COALESCE(fingerprint, ''), weight, occurred_at
		FROM audience_events
		WHERE tenant_id = $1
			AND occurred_at >= $2
			AND ($3::uuid IS NULL OR campaign_id = $3)
		ORDER BY occurred_at DESC, id ASC
		LIMIT $4`

	rows, err := r.pool.Query(ctx, query, params.TenantID, params.Since, params.CampaignID, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("scan audience events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.WeightedEvent, 0)
	for rows.Next() {
		var ev domain.WeightedEvent
		if err := rows.Scan(&ev.LeadID, &ev.Fingerprint, &ev.Weight, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan audience event row: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audience events: %w", err)
	}
	return events, nil
}

// ReplaceSegments upserts all tiers of a build in a single transaction.
func (r *Repo) ReplaceSegments(ctx context.Context, segments []domain.Segment) error {
	if len(segments) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO audience_segments (
			tenant_id, id, scope, campaign_id, tier, min_weight, within_days,
			size, with_lead_id, anonymous, weight_version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			min_weight = EXCLUDED.min_weight,
			size = EXCLUDED.size,
			with_lead_id = EXCLUDED.with_lead_id,
			anonymous = EXCLUDED.anonymous,
			weight_version = EXCLUDED.weight_version,
			updated_at = EXCLUDED.updated_at`

	batch := &pgx.Batch{}
	for _, s := range segments {
		batch.Queue(query,
			s.TenantID, s.ID, s.Scope, s.CampaignID, string(s.Tier), s.MinWeight, s.WithinDays,
			s.Size, s.WithLeadID, s.Anonymous, s.WeightVersion, s.UpdatedAt,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range segments {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("upsert audience segment: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close segment batch: %w", err)
	}

	return tx.Commit(ctx)
}

// ListSegments returns the tenant's segments, optionally for one campaign.
func (r *Repo) ListSegments(ctx context.Context, tenantID uuid.UUID, campaignID *uuid.UUID) ([]domain.Segment, error) {
	query := `
		SELECT tenant_id, id, scope, campaign_id, tier, min_weight, within_days,
			size, with_lead_id, anonymous, weight_version, updated_at
		FROM audience_segments
		WHERE tenant_id = $1 AND ($2::uuid IS NULL OR campaign_id = $2)
		ORDER BY scope ASC, within_days ASC, min_weight ASC`

	rows, err := r.pool.Query(ctx, query, tenantID, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list audience segments: %w", err)
	}
	defer rows.Close()

	segments := make([]domain.Segment, 0)
	for rows.Next() {
		var (
			s    domain.Segment
			tier string
		)
		if err := rows.Scan(&s.TenantID, &s.ID, &s.Scope, &s.CampaignID, &tier, &s.MinWeight, &s.WithinDays,
			&s.Size, &s.WithLeadID, &s.Anonymous, &s.WeightVersion, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan audience segment: %w", err)
		}
		s.Tier = domain.Tier(tier)
		segments = append(segments, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audience segments: %w", err)
	}
	return segments, nil
}

// ListMemberships loads the recorded tier of every entity in a scope.
func (r *Repo) ListMemberships(ctx context.Context, tenantID uuid.UUID, scopeKey string) (map[string]domain.Membership, error) {
	query := `
		SELECT entity_key, lead_id, tier, tier_rank, weight
		FROM audience_memberships
		WHERE tenant_id = $1 AND scope_key = $2`

	rows, err := r.pool.Query(ctx, query, tenantID, scopeKey)
	if err != nil {
		return nil, fmt.Errorf("list audience memberships: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.Membership)
	for rows.Next() {
		var (
			m    domain.Membership
			tier string
		)
		if err := rows.Scan(&m.EntityKey, &m.LeadID, &tier, &m.Rank, &m.Weight); err != nil {
			return nil, fmt.Errorf("scan audience membership: %w", err)
		}
		m.Tier = domain.Tier(tier)
		out[m.EntityKey] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audience memberships: %w", err)
	}
	return out, nil
}

// ApplyTransitions raises, lowers and drops memberships. A promotion inserts
// its action in the same statement as the conditional upsert, so a
// concurrent run that already raised the entity inserts nothing.
func (r *Repo) ApplyTransitions(ctx context.Context, set TransitionSet) ([]domain.Action, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	promoteQuery := `
		WITH raised AS (
			INSERT INTO audience_memberships (
				tenant_id, scope_key, entity_key, lead_id, tier, tier_rank, weight, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (tenant_id, scope_key, entity_key) DO UPDATE SET
				tier = EXCLUDED.tier,
				tier_rank = EXCLUDED.tier_rank,
				weight = EXCLUDED.weight,
				updated_at = EXCLUDED.updated_at
			WHERE audience_memberships.tier_rank < EXCLUDED.tier_rank
			RETURNING entity_key
		)
		INSERT INTO audience_actions (
			id, tenant_id, type, entity_id, from_tier, to_tier, campaign_id, payload, created_at
		)
		SELECT $9, $1, $10, raised.entity_key, $11, $5, $12, $13, $8
		FROM raised
		RETURNING id`

	created := make([]domain.Action, 0, len(set.Promotions))
	for _, p := range set.Promotions {
		payload, err := marshalPayload(p.Action.Payload)
		if err != nil {
			return nil, err
		}
		m := p.Membership
		var actionID uuid.UUID
		err = tx.QueryRow(ctx, promoteQuery,
			set.TenantID, set.ScopeKey, m.EntityKey, m.LeadID, string(m.Tier), m.Rank, m.Weight, set.At,
			p.Action.ID, p.Action.Type, tierPtr(p.Action.FromTier), p.Action.CampaignID, payload,
		).Scan(&actionID)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("promote audience membership: %w", err)
		}
		created = append(created, p.Action)
	}

	for _, m := range set.Demotions {
		if _, err := tx.Exec(ctx, `
			UPDATE audience_memberships
			SET tier = $4, tier_rank = $5, weight = $6, updated_at = $7
			WHERE tenant_id = $1 AND scope_key = $2 AND entity_key = $3 AND tier_rank > $5`,
			set.TenantID, set.ScopeKey, m.EntityKey, string(m.Tier), m.Rank, m.Weight, set.At,
		); err != nil {
			return nil, fmt.Errorf("demote audience membership: %w", err)
		}
	}

	if len(set.Removals) > 0 {
		if _, err := tx.Exec(ctx, `
			DELETE FROM audience_memberships
			WHERE tenant_id = $1 AND scope_key = $2 AND entity_key = ANY($3)`,
			set.TenantID, set.ScopeKey, set.Removals,
		); err != nil {
			return nil, fmt.Errorf("remove audience memberships: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit audience transitions: %w", err)
	}
	return created, nil
}

// ListActions returns the tenant's newest actions first.
func (r *Repo) ListActions(ctx context.Context, tenantID uuid.UUID, limit int) ([]domain.Action, error) {
	query := `
		SELECT id, tenant_id, type, entity_id, from_tier, to_tier, campaign_id, payload, created_at
		FROM audience_actions
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audience actions: %w", err)
	}
	defer rows.Close()

	actions := make([]domain.Action, 0)
	for rows.Next() {
		var (
			a                domain.Action
			fromTier, toTier *string
			payload          []byte
		)
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Type, &a.EntityID, &fromTier, &toTier, &a.CampaignID, &payload, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audience action: %w", err)
		}
		a.FromTier = toTierPtr(fromTier)
		a.ToTier = toTierPtr(toTier)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &a.Payload); err != nil {
				return nil, fmt.Errorf("decode audience action payload: %w", err)
			}
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audience actions: %w", err)
	}
	return actions, nil
}

// ScanActionTypes reads action types across tenants within the window.
func (r *Repo) ScanActionTypes(ctx context.Context, since time.Time, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT type FROM audience_actions
		WHERE created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("scan action types: %w", err)
	}
	defer rows.Close()

	types, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect action types: %w", err)
	}
	return types, nil
}

// ReplaceGlobalSignals writes one rollup's topic counts and drops topics
// that fell out of the window, atomically.
func (r *Repo) ReplaceGlobalSignals(ctx context.Context, signals []domain.GlobalSignal) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]string, 0, len(signals))
	for _, s := range signals {
		ids = append(ids, s.ID)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM global_signals WHERE id <> ALL($1::text[])`, ids); err != nil {
		return fmt.Errorf("drop stale global signals: %w", err)
	}

	for _, s := range signals {
		if _, err := tx.Exec(ctx, `
			INSERT INTO global_signals (id, topic, weight, window_days, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				weight = EXCLUDED.weight,
				window_days = EXCLUDED.window_days,
				updated_at = EXCLUDED.updated_at`,
			s.ID, s.Topic, s.Weight, s.WindowDays, s.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert global signal: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ListGlobalSignals returns the strongest topics first.
func (r *Repo) ListGlobalSignals(ctx context.Context, limit int) ([]domain.GlobalSignal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, topic, weight, window_days, updated_at
		FROM global_signals
		ORDER BY weight DESC, id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list global signals: %w", err)
	}
	defer rows.Close()

	signals := make([]domain.GlobalSignal, 0)
	for rows.Next() {
		var s domain.GlobalSignal
		if err := rows.Scan(&s.ID, &s.Topic, &s.Weight, &s.WindowDays, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan global signal: %w", err)
		}
		signals = append(signals, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate global signals: %w", err)
	}
	return signals, nil
}

func marshalPayload(payload map[string]any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return raw, nil
}

func tierPtr(t *domain.Tier) *string {
	if t == nil {
		return nil
	}
	s := string(*t)
	return &s
}

func toTierPtr(s *string) *domain.Tier {
	if s == nil {
		return nil
	}
	t := domain.Tier(*s)
	return &t
}
