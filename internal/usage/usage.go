// Package usage meters plan usage per tenant and billing month and rejects
// consumption past the tenant's limit.
package usage

import (
	"context"
	"strings"
	"time"

	"growth_backend/platform/apperr"
	"growth_backend/platform/config"
	"growth_backend/platform/logger"

	"github.com/google/uuid"
)

// Usage is a tenant's consumption of one metric in one period. A zero
// Limit means unlimited.
type Usage struct {
	Metric string `json:"metric"`
	Period string `json:"period"`
	Used   int64  `json:"used"`
	Limit  int64  `json:"limit"`
}

// Store persists counters. Consume increments atomically with the limit read
// and reports false, writing nothing, when the increment would pass the limit.
type Store interface {
	Consume(ctx context.Context, tenantID uuid.UUID, metric, period string, n, defaultLimit int64) (Usage, bool, error)
	Get(ctx context.Context, tenantID uuid.UUID, metric, period string, defaultLimit int64) (Usage, error)
	// Release gives back up to n units; the counter never drops below zero.
	Release(ctx context.Context, tenantID uuid.UUID, metric, period string, n int64) error
}

// Service meters usage.
type Service struct {
	store    Store
	defaults config.UsageConfig
	log      *logger.Logger
	now      func() time.Time
}

// New creates a usage service.
func New(store Store, defaults config.UsageConfig, log *logger.Logger) *Service {
	return &Service{store: store, defaults: defaults, log: log, now: time.Now}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Consume takes n units of metric for the current period.
func (s *Service) Consume(ctx context.Context, tenantID uuid.UUID, metric string, n int64) (Usage, error) {
	metric = strings.TrimSpace(metric)
	if tenantID == uuid.Nil || metric == "" {
		return Usage{}, apperr.Validation("tenant and metric are required")
	}
	if n <= 0 {
		return Usage{}, apperr.Validation("usage amount must be positive")
	}

	u, ok, err := s.store.Consume(ctx, tenantID, metric, Period(s.now()), n, s.defaults.GetDefaultUsageLimit(metric))
	if err != nil {
		return Usage{}, err
	}
	if !ok {
		s.log.Warn("usage limit exceeded", "tenantId", tenantID, "metric", metric, "limit", u.Limit, "used", u.Used)
		return u, apperr.LimitExceeded(metric, u.Limit, u.Used)
	}
	return u, nil
}

// Release returns n units of metric taken for work that did not happen.
func (s *Service) Release(ctx context.Context, tenantID uuid.UUID, metric string, n int64) error {
	metric = strings.TrimSpace(metric)
	if tenantID == uuid.Nil || metric == "" {
		return apperr.Validation("tenant and metric are required")
	}
	if n <= 0 {
		return apperr.Validation("usage amount must be positive")
	}
	return s.store.Release(ctx, tenantID, metric, Period(s.now()), n)
}

// Get returns the current period's usage of metric.
func (s *Service) Get(ctx context.Context, tenantID uuid.UUID, metric string) (Usage, error) {
	metric = strings.TrimSpace(metric)
	if metric == "" {
		return Usage{}, apperr.Validation("metric is required")
	}
	return s.store.Get(ctx, tenantID, metric, Period(s.now()), s.defaults.GetDefaultUsageLimit(metric))
}

// Period is the billing month of t in UTC, formatted YYYY-MM.
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}
