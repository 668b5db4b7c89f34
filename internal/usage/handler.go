package usage

import (
	"net/http"

	"growth_backend/platform/httpkit"
	"growth_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Handler exposes usage counters.
type Handler struct {
	svc *Service
	val *validator.Validator
}

// NewHandler creates a usage handler.
func NewHandler(svc *Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// Get returns the current period's usage of a metric.
// GET /api/v1/usage/:metric
func (h *Handler) Get(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}
	metric := c.Param("metric")
	if err := h.val.Var(metric, "required,max=64,lowercase"); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid metric", nil)
		return
	}

	u, err := h.svc.Get(c.Request.Context(), tenantID, metric)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, u)
}
