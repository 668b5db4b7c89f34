package cron

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	audience "growth_backend/internal/audience/service"
	outreach "growth_backend/internal/outreach/service"
	"growth_backend/platform/logger"
	"growth_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProcessor struct {
	res  outreach.ProcessResult
	err  error
	opts outreach.ProcessOptions
}

func (s *stubProcessor) ProcessDueRuns(_ context.Context, opts outreach.ProcessOptions) (outreach.ProcessResult, error) {
	s.opts = opts
	return s.res, s.err
}

type recordingRunner struct {
	mu    sync.Mutex
	calls []ActionScope
	fail  map[uuid.UUID]bool
}

func (r *recordingRunner) Run(_ context.Context, tenantID uuid.UUID, opts audience.RunOptions) (audience.RunSummary, error) {
	r.mu.Lock()
	r.calls = append(r.calls, ActionScope{TenantID: tenantID, CampaignID: opts.CampaignID})
	r.mu.Unlock()
	if r.fail[tenantID] {
		return audience.RunSummary{}, errors.New("segment store unavailable")
	}
	return audience.RunSummary{WithinDays: 30, CampaignID: opts.CampaignID, ActionsCreated: 1}, nil
}

func result(tenantID, campaignID uuid.UUID) outreach.RunResult {
	return outreach.RunResult{RunID: uuid.New(), TenantID: tenantID, CampaignID: campaignID, LeadID: uuid.New(), OK: true}
}

func TestScopesGroupsCampaignsUnderTenant(t *testing.T) {
	tenant := uuid.New()
	c1, c2 := uuid.New(), uuid.New()
	res := outreach.ProcessResult{Results: []outreach.RunResult{
		result(tenant, c1), result(tenant, c2), result(tenant, c1),
	}}

	scopes := Scopes(res)
	require.Len(t, scopes, 3)
	assert.Nil(t, scopes[0].CampaignID)
	assert.Equal(t, tenant, scopes[0].TenantID)
	campaigns := []uuid.UUID{*scopes[1].CampaignID, *scopes[2].CampaignID}
	assert.ElementsMatch(t, []uuid.UUID{c1, c2}, campaigns)
}

func TestRunFansOutPerTouchedTenant(t *testing.T) {
	t1, t2 := uuid.New(), uuid.New()
	c1, c2 := uuid.New(), uuid.New()
	proc := &stubProcessor{res: outreach.ProcessResult{
		Processed: 2,
		Results:   []outreach.RunResult{result(t1, c1), result(t2, c2)},
	}}
	runner := &recordingRunner{fail: map[uuid.UUID]bool{t2: true}}
	cycle := NewSenderCycle(proc, runner, 2, logger.Nop())

	res, err := cycle.Run(context.Background(), 25)
	require.NoError(t, err)

	assert.Equal(t, 25, proc.opts.Limit)
	assert.Nil(t, proc.opts.TenantID)
	assert.Equal(t, 2, res.Processed)
	require.Len(t, res.Audience, 4)
	assert.Len(t, runner.calls, 4)

	for _, o := range res.Audience {
		if o.TenantID == t2 {
			assert.Nil(t, o.Summary)
			assert.Equal(t, "segment store unavailable", o.Error)
			continue
		}
		require.NotNil(t, o.Summary)
		assert.Empty(t, o.Error)
	}
}

func TestRunWithNothingDueSkipsFanOut(t *testing.T) {
	runner := &recordingRunner{}
	cycle := NewSenderCycle(&stubProcessor{}, runner, 0, logger.Nop())

	res, err := cycle.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.Empty(t, res.Audience)
	assert.Empty(t, runner.calls)
}

func TestRunReturnsClaimError(t *testing.T) {
	cycle := NewSenderCycle(&stubProcessor{err: errors.New("db down")}, &recordingRunner{}, 1, logger.Nop())
	_, err := cycle.Run(context.Background(), 10)
	assert.EqualError(t, err, "db down")
}

type stubRollup struct {
	opts audience.RollupOptions
}

func (s *stubRollup) Run(_ context.Context, opts audience.RollupOptions) (audience.RollupResult, error) {
	s.opts = opts
	return audience.RollupResult{WindowDays: 7, ScannedActions: 3}, nil
}

func newRouter(cycle *SenderCycle, rollup RollupRunner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(cycle, rollup, validator.New()).RegisterRoutes(r.Group("/cron"))
	return r
}

func TestSenderProcessEndpoint(t *testing.T) {
	tenant, campaign := uuid.New(), uuid.New()
	proc := &stubProcessor{res: outreach.ProcessResult{Processed: 1, Results: []outreach.RunResult{result(tenant, campaign)}}}
	r := newRouter(NewSenderCycle(proc, &recordingRunner{}, 1, logger.Nop()), &stubRollup{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cron/sender-process?limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body SenderProcessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Processed)
	assert.Len(t, body.Results, 1)
	assert.Len(t, body.Audience, 2)
	assert.Equal(t, 5, proc.opts.Limit)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cron/sender-process?limit=9999", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAudienceGlobalEndpoint(t *testing.T) {
	rollup := &stubRollup{}
	r := newRouter(NewSenderCycle(&stubProcessor{}, &recordingRunner{}, 1, logger.Nop()), rollup)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cron/audience-global?withinDays=7&limit=100", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, rollup.opts.WithinDays)
	assert.Equal(t, 100, rollup.opts.Limit)
	assert.JSONEq(t, `{"ok":true,"windowDays":7,"scannedActions":3,"signals":[]}`, w.Body.String())
}
