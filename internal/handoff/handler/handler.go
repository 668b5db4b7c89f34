package handler

import (
	"net/http"

	"growth_backend/internal/handoff/service"
	"growth_backend/internal/handoff/transport"
	"growth_backend/platform/httpkit"
	"growth_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for handoff tickets.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new handoff handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the ticket routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.POST("/:id/resolve", h.Resolve)
}

// Create opens a ticket and suppresses the lead's run.
func (h *Handler) Create(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}
	var req transport.CreateTicketRequest
	if !httpkit.BindJSON(c, h.val, &req) {
		return
	}

	ticketID, err := h.svc.CreateTicket(c.Request.Context(), tenantID, service.CreateTicketInput{
		LeadID:     req.LeadID,
		CampaignID: req.CampaignID,
		Reason:     req.Reason,
		Channel:    req.Channel,
		Notes:      req.Notes,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.CreateTicketResponse{TicketID: ticketID})
}

// List lists the tenant's tickets.
func (h *Handler) List(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}
	var q transport.ListTicketsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid query", nil)
		return
	}
	if err := h.val.Struct(q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", validator.FieldErrors(err))
		return
	}

	var status *string
	if q.Status != "" {
		status = &q.Status
	}
	tickets, err := h.svc.ListTickets(c.Request.Context(), tenantID, status, q.Limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ListTicketsResponse{Tickets: transport.ToTickets(tickets)})
}

// Resolve closes a ticket.
func (h *Handler) Resolve(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}
	ticketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid ticket ID", nil)
		return
	}
	var req transport.ResolveTicketRequest
	if c.Request.ContentLength != 0 {
		if !httpkit.BindJSON(c, h.val, &req) {
			return
		}
	}

	result, err := h.svc.ResolveTicket(c.Request.Context(), tenantID, ticketID, service.ResolveInput{
		ResumeAutomation: req.ResumeAutomation,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ResolveTicketResponse{
		OK:      true,
		Resumed: result.Resumed,
		Ticket:  transport.ToTicket(result.Ticket),
	})
}
