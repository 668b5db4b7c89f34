package handler

import (
	"net/http"

	"growth_backend/internal/audience/domain"
	"growth_backend/internal/audience/service"
	"growth_backend/internal/audience/transport"
	"growth_backend/platform/httpkit"
	"growth_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidQuery  = "invalid query"
	msgInvalidTenant = "invalid tenant ID"
)

// Handler handles HTTP requests for the audience pipeline.
type Handler struct {
	ingestor *service.Ingestor
	builder  *service.SegmentBuilder
	runner   *service.ActionRunner
	rollup   *service.Rollup
	val      *validator.Validator
}

// New creates a new audience handler.
func New(ingestor *service.Ingestor, builder *service.SegmentBuilder, runner *service.ActionRunner, rollup *service.Rollup, val *validator.Validator) *Handler {
	return &Handler{ingestor: ingestor, builder: builder, runner: runner, rollup: rollup, val: val}
}

// RecordEvent appends an event for the caller's tenant.
// POST /api/v1/audience/events
func (h *Handler) RecordEvent(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}
	var req transport.RecordEventRequest
	if !httpkit.BindJSON(c, h.val, &req) {
		return
	}

	actor := domain.Actor{
		Kind:        domain.ActorKind(req.Actor.Kind),
		Fingerprint: req.Actor.Fingerprint,
		LeadID:      req.Actor.LeadID,
		UserID:      req.Actor.UserID,
	}
	if actor.Kind == domain.ActorUser && actor.UserID == "" {
		actor.UserID = httpkit.GetIdentity(c).UserID().String()
	}

	h.record(c, service.RecordInput{
		TenantID:   tenantID,
		CampaignID: req.CampaignID,
		Actor:      actor,
		Type:       domain.EventType(req.Type),
		Payload:    req.Payload,
	}, http.StatusCreated)
}

// RecordBeacon appends an anonymous landing-page event.
// POST /api/v1/public/tenants/:tenantId/audience/events
func (h *Handler) RecordBeacon(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("tenantId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidTenant, nil)
		return
	}
	var req transport.BeaconRequest
	if !httpkit.BindJSON(c, h.val, &req) {
		return
	}

	h.record(c, service.RecordInput{
		TenantID:   tenantID,
		CampaignID: req.CampaignID,
		Actor:      domain.Actor{Kind: domain.ActorAnonymous, Fingerprint: req.Fingerprint},
		Type:       domain.EventType(req.Type),
		Payload:    req.Payload,
	}, http.StatusAccepted)
}

func (h *Handler) record(c *gin.Context, in service.RecordInput, status int) {
	ev, err := h.ingestor.Record(c.Request.Context(), in)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, status, transport.RecordEventResponse{
		Success:   true,
		ID:        ev.ID,
		Type:      string(ev.Type),
		Weight:    ev.Weight,
		Timestamp: ev.OccurredAt,
	})
}

// BuildSegments rebuilds the tenant's segments.
// POST /api/v1/audience/segments/build
func (h *Handler) BuildSegments(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}
	var req transport.BuildSegmentsRequest
	if !bindOptionalJSON(c, h.val, &req) {
		return
	}

	res, err := h.builder.Build(c.Request.Context(), tenantID, service.BuildOptions{
		WithinDays: req.WithinDays,
		CampaignID: req.CampaignID,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.BuildSegmentsResponse{
		Success:       true,
		Segments:      transport.ToSegments(res.Segments),
		ScannedEvents: res.ScannedEvents,
		Entities:      res.Entities,
		WithinDays:    res.WithinDays,
		Truncated:     res.Truncated,
	})
}

// ListSegments returns stored segments.
// GET /api/v1/audience/segments/list
func (h *Handler) ListSegments(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}
	var q transport.ListSegmentsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidQuery, nil)
		return
	}
	if err := h.val.Struct(q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", validator.FieldErrors(err))
		return
	}

	var campaignID *uuid.UUID
	if q.CampaignID != "" {
		id := uuid.MustParse(q.CampaignID)
		campaignID = &id
	}

	segments, err := h.builder.List(c.Request.Context(), tenantID, campaignID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ListSegmentsResponse{Success: true, Segments: transport.ToSegments(segments)})
}

// RunActions detects tier transitions.
// POST /api/v1/audience/actions/run
func (h *Handler) RunActions(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}
	var req transport.BuildSegmentsRequest
	if !bindOptionalJSON(c, h.val, &req) {
		return
	}

	summary, err := h.runner.Run(c.Request.Context(), tenantID, service.RunOptions{
		WithinDays: req.WithinDays,
		CampaignID: req.CampaignID,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.RunActionsResponse{Success: true, RunSummaryResponse: transport.ToRunSummary(summary)})
}

// ListActions returns the action log.
// GET /api/v1/audience/actions/list
func (h *Handler) ListActions(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}
	q, ok := h.bindLimit(c)
	if !ok {
		return
	}

	actions, err := h.runner.ListActions(c.Request.Context(), tenantID, q.Limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ListActionsResponse{Success: true, Actions: transport.ToActions(actions)})
}

// ListGlobalSignals returns the latest rollup.
// GET /api/v1/audience/global
func (h *Handler) ListGlobalSignals(c *gin.Context) {
	if _, ok := httpkit.MustGetTenantID(c); !ok {
		return
	}
	q, ok := h.bindLimit(c)
	if !ok {
		return
	}

	signals, err := h.rollup.ListSignals(c.Request.Context(), q.Limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.GlobalSignalsResponse{Signals: transport.ToSignals(signals)})
}

func (h *Handler) bindLimit(c *gin.Context) (transport.LimitQuery, bool) {
	var q transport.LimitQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidQuery, nil)
		return q, false
	}
	if err := h.val.Struct(q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", validator.FieldErrors(err))
		return q, false
	}
	return q, true
}

// bindOptionalJSON accepts an empty body as the zero request.
func bindOptionalJSON(c *gin.Context, val *validator.Validator, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return httpkit.BindJSON(c, val, dst)
}
