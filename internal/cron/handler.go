package cron

import (
	"context"
	"net/http"

	audiencesvc "growth_backend/internal/audience/service"
	audiencetransport "growth_backend/internal/audience/transport"
	outreach "growth_backend/internal/outreach/service"
	"growth_backend/platform/httpkit"
	"growth_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RollupRunner computes cross-tenant signals.
type RollupRunner interface {
	Run(ctx context.Context, opts audiencesvc.RollupOptions) (audiencesvc.RollupResult, error)
}

// SenderProcessQuery is the query of GET /cron/sender-process.
type SenderProcessQuery struct {
	Limit int `form:"limit" validate:"omitempty,min=1,max=500"`
}

// AudienceOutcomeResponse is one fanned-out action run.
type AudienceOutcomeResponse struct {
	TenantID   uuid.UUID                             `json:"tenantId"`
	CampaignID *uuid.UUID                            `json:"campaignId,omitempty"`
	Summary    *audiencetransport.RunSummaryResponse `json:"summary,omitempty"`
	Error      string                                `json:"error,omitempty"`
}

// SenderProcessResponse is returned by GET /cron/sender-process.
type SenderProcessResponse struct {
	Processed int                       `json:"processed"`
	Results   []outreach.RunResult      `json:"results"`
	Audience  []AudienceOutcomeResponse `json:"audience"`
}

// Handler serves the cron triggers.
type Handler struct {
	cycle  *SenderCycle
	rollup RollupRunner
	val    *validator.Validator
}

// NewHandler creates a cron handler.
func NewHandler(cycle *SenderCycle, rollup RollupRunner, val *validator.Validator) *Handler {
	return &Handler{cycle: cycle, rollup: rollup, val: val}
}

// RegisterRoutes registers the cron routes on a cron-authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/sender-process", h.SenderProcess)
	rg.GET("/audience-global", h.AudienceGlobal)
}

// SenderProcess runs one sender cycle.
func (h *Handler) SenderProcess(c *gin.Context) {
	var q SenderProcessQuery
	if !h.bindQuery(c, &q) {
		return
	}

	res, err := h.cycle.Run(c.Request.Context(), q.Limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, ToSenderProcess(res))
}

// AudienceGlobal runs the cross-tenant rollup.
func (h *Handler) AudienceGlobal(c *gin.Context) {
	var q audiencetransport.RollupQuery
	if !h.bindQuery(c, &q) {
		return
	}

	res, err := h.rollup.Run(c.Request.Context(), audiencesvc.RollupOptions{WithinDays: q.WithinDays, Limit: q.Limit})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, audiencetransport.ToRollup(res))
}

func (h *Handler) bindQuery(c *gin.Context, q any) bool {
	if err := c.ShouldBindQuery(q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid query", nil)
		return false
	}
	if err := h.val.Struct(q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", validator.FieldErrors(err))
		return false
	}
	return true
}

// ToSenderProcess maps a cycle result.
func ToSenderProcess(res CycleResult) SenderProcessResponse {
	results := res.Results
	if results == nil {
		results = []outreach.RunResult{}
	}
	outcomes := make([]AudienceOutcomeResponse, 0, len(res.Audience))
	for _, o := range res.Audience {
		entry := AudienceOutcomeResponse{
			TenantID:   o.TenantID,
			CampaignID: o.CampaignID,
			Error:      o.Error,
		}
		if o.Summary != nil {
			summary := audiencetransport.ToRunSummary(*o.Summary)
			entry.Summary = &summary
		}
		outcomes = append(outcomes, entry)
	}
	return SenderProcessResponse{
		Processed: res.Processed,
		Results:   results,
		Audience:  outcomes,
	}
}
