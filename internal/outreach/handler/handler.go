package handler

import (
	"net/http"

	"growth_backend/internal/outreach/domain"
	"growth_backend/internal/outreach/service"
	"growth_backend/internal/outreach/transport"
	"growth_backend/platform/httpkit"
	"growth_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for outreach runs.
type Handler struct {
	runs     *service.RunStore
	campaign *service.CampaignRunner
	val      *validator.Validator
}

// New creates a new outreach handler.
func New(runs *service.RunStore, campaign *service.CampaignRunner, val *validator.Validator) *Handler {
	return &Handler{runs: runs, campaign: campaign, val: val}
}

// RegisterRoutes registers the sender routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sender/retry", h.Retry)
	rg.GET("/sender/runs", h.ListRuns)
	rg.GET("/sender/runs/:id", h.GetRun)
	rg.POST("/campaigns/:id/sender/run", h.RunCampaign)
}

// Retry moves a failed run back to pending.
func (h *Handler) Retry(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}
	var req transport.RetryRequest
	if !httpkit.BindJSON(c, h.val, &req) {
		return
	}

	run, err := h.runs.Retry(c.Request.Context(), tenantID, req.RunID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.RetryResponse{OK: true, Run: transport.ToRun(run)})
}

// ListRuns lists the tenant's runs.
func (h *Handler) ListRuns(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}
	var q transport.ListRunsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid query", nil)
		return
	}
	if err := h.val.Struct(q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", validator.FieldErrors(err))
		return
	}

	var status *domain.Status
	if q.Status != "" {
		s := domain.Status(q.Status)
		status = &s
	}

	runs, err := h.runs.ListRuns(c.Request.Context(), tenantID, status, q.Limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ListRunsResponse{Runs: transport.ToRuns(runs)})
}

// GetRun returns one run with its history.
func (h *Handler) GetRun(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid run ID", nil)
		return
	}

	run, err := h.runs.Get(c.Request.Context(), tenantID, runID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToRun(run))
}

// RunCampaign starts the campaign's runs and processes the due ones.
func (h *Handler) RunCampaign(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}
	campaignID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid campaign ID", nil)
		return
	}
	var req transport.CampaignRunRequest
	if c.Request.ContentLength != 0 && !httpkit.BindJSON(c, h.val, &req) {
		return
	}

	res, err := h.campaign.Run(c.Request.Context(), tenantID, campaignID, service.CampaignRunMode(req.Mode), req.Limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToCampaignRun(res))
}
