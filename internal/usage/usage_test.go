package usage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"growth_backend/platform/apperr"
	"growth_backend/platform/httpkit"
	"growth_backend/platform/logger"
	"growth_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type limits map[string]int64

func (l limits) GetDefaultUsageLimit(metric string) int64 { return l[metric] }

type counterKey struct {
	tenantID uuid.UUID
	metric   string
	period   string
}

// memStore serializes increments under a mutex, like the row lock.
type memStore struct {
	mu        sync.Mutex
	overrides map[uuid.UUID]int64
	used      map[counterKey]int64
}

func newMemStore() *memStore {
	return &memStore{overrides: make(map[uuid.UUID]int64), used: make(map[counterKey]int64)}
}

func (m *memStore) limit(tenantID uuid.UUID, fallback int64) int64 {
	if v, ok := m.overrides[tenantID]; ok {
		return v
	}
	return fallback
}

func (m *memStore) Consume(_ context.Context, tenantID uuid.UUID, metric, period string, n, defaultLimit int64) (Usage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := counterKey{tenantID, metric, period}
	limit := m.limit(tenantID, defaultLimit)
	used := m.used[key] + n
	if limit > 0 && used > limit {
		return Usage{Metric: metric, Period: period, Used: m.used[key], Limit: limit}, false, nil
	}
	m.used[key] = used
	return Usage{Metric: metric, Period: period, Used: used, Limit: limit}, true, nil
}

func (m *memStore) Get(_ context.Context, tenantID uuid.UUID, metric, period string, defaultLimit int64) (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Usage{Metric: metric, Period: period, Used: m.used[counterKey{tenantID, metric, period}], Limit: m.limit(tenantID, defaultLimit)}, nil
}

func (m *memStore) Release(_ context.Context, tenantID uuid.UUID, metric, period string, n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := counterKey{tenantID, metric, period}
	m.used[key] = max(m.used[key]-n, 0)
	return nil
}

var testNow = time.Date(2026, 6, 30, 23, 0, 0, 0, time.UTC)

func newService(store Store, l limits) *Service {
	svc := New(store, l, logger.Nop())
	svc.SetClock(func() time.Time { return testNow })
	return svc
}

func TestConsumeWithinAndPastLimit(t *testing.T) {
	store := newMemStore()
	svc := newService(store, limits{"outreach_sends": 2})
	tenantID := uuid.New()
	ctx := context.Background()

	u, err := svc.Consume(ctx, tenantID, "outreach_sends", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), u.Used)
	assert.Equal(t, "2026-06", u.Period)

	_, err = svc.Consume(ctx, tenantID, "outreach_sends", 1)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindLimitExceeded, appErr.Kind)
	assert.Equal(t, apperr.LimitDetails{Metric: "outreach_sends", Limit: 2, Used: 2}, appErr.Details)

	got, err := svc.Get(ctx, tenantID, "outreach_sends")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Used, "rejected consumption is not counted")
}

func TestReleaseGivesUnitsBack(t *testing.T) {
	store := newMemStore()
	svc := newService(store, limits{"outreach_sends": 1})
	tenantID := uuid.New()
	ctx := context.Background()

	_, err := svc.Consume(ctx, tenantID, "outreach_sends", 1)
	require.NoError(t, err)
	require.NoError(t, svc.Release(ctx, tenantID, "outreach_sends", 1))

	_, err = svc.Consume(ctx, tenantID, "outreach_sends", 1)
	require.NoError(t, err, "released unit can be consumed again")

	require.NoError(t, svc.Release(ctx, tenantID, "outreach_sends", 5))
	got, err := svc.Get(ctx, tenantID, "outreach_sends")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Used)

	assert.True(t, apperr.Is(svc.Release(ctx, tenantID, "outreach_sends", 0), apperr.KindValidation))
}

func TestConsumeTenantOverrideAndUnlimited(t *testing.T) {
	store := newMemStore()
	svc := newService(store, limits{"outreach_sends": 1})
	vip := uuid.New()
	store.overrides[vip] = 5

	for i := 0; i < 5; i++ {
		_, err := svc.Consume(context.Background(), vip, "outreach_sends", 1)
		require.NoError(t, err)
	}

	for i := 0; i < 100; i++ {
		_, err := svc.Consume(context.Background(), vip, "exports", 1)
		require.NoError(t, err, "metrics without a limit are unmetered")
	}
}

func TestConsumeNewPeriodStartsAtZero(t *testing.T) {
	store := newMemStore()
	svc := newService(store, limits{"outreach_sends": 1})
	tenantID := uuid.New()

	_, err := svc.Consume(context.Background(), tenantID, "outreach_sends", 1)
	require.NoError(t, err)

	svc.SetClock(func() time.Time { return testNow.Add(2 * time.Hour) })
	u, err := svc.Consume(context.Background(), tenantID, "outreach_sends", 1)
	require.NoError(t, err)
	assert.Equal(t, "2026-07", u.Period)
}

func TestConsumeIsSerialized(t *testing.T) {
	store := newMemStore()
	svc := newService(store, limits{"outreach_sends": 10})
	tenantID := uuid.New()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Consume(context.Background(), tenantID, "outreach_sends", 1); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, accepted)
}

func TestConsumeValidation(t *testing.T) {
	svc := newService(newMemStore(), limits{})
	_, err := svc.Consume(context.Background(), uuid.Nil, "outreach_sends", 1)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = svc.Consume(context.Background(), uuid.New(), "outreach_sends", 0)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestGetHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newMemStore()
	svc := newService(store, limits{"outreach_sends": 7})
	tenantID := uuid.New()
	_, err := svc.Consume(context.Background(), tenantID, "outreach_sends", 3)
	require.NoError(t, err)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(httpkit.ContextUserIDKey, uuid.New())
		c.Set(httpkit.ContextTenantIDKey, tenantID)
	})
	r.GET("/usage/:metric", NewHandler(svc, validator.New()).Get)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/usage/outreach_sends", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body Usage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, Usage{Metric: "outreach_sends", Period: "2026-06", Used: 3, Limit: 7}, body)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/usage/OUTREACH", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
