package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rivashah/expense-management-api/internal/service"
	"github.com/rivashah/expense-management-api/pkg/response"
)

// DashboardHandler serves company aggregates.
type DashboardHandler struct {
	service *service.DashboardService
}

// NewDashboardHandler creates a new handler.
func NewDashboardHandler(svc *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{service: svc}
}

// Summary godoc
// @Summary Company expense summary
// @Description Per-status counts and totals in the company default currency
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/summary [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, summary, nil)
}
