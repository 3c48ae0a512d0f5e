package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rivashah/expense-management-api/internal/dto"
	"github.com/rivashah/expense-management-api/internal/service"
	appErrors "github.com/rivashah/expense-management-api/pkg/errors"
	"github.com/rivashah/expense-management-api/pkg/response"
)

// FlowHandler manages the company approval flow configuration.
type FlowHandler struct {
	service *service.FlowService
}

// NewFlowHandler creates a new handler.
func NewFlowHandler(svc *service.FlowService) *FlowHandler {
	return &FlowHandler{service: svc}
}

// Get godoc
// @Summary Get the approval flow
// @Description Returns the company's ordered approval steps
// @Tags ApprovalFlow
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /approval-flow [get]
func (h *FlowHandler) Get(c *gin.Context) {
	steps, err := h.service.Get(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, steps, nil)
}

// Replace godoc
// @Summary Replace the approval flow
// @Description Swaps the company's approval steps wholesale
// @Tags ApprovalFlow
// @Accept json
// @Produce json
// @Param payload body dto.ReplaceFlowRequest true "Flow payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /approval-flow [put]
func (h *FlowHandler) Replace(c *gin.Context) {
	var req dto.ReplaceFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid flow payload"))
		return
	}

	steps, err := h.service.Replace(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, steps, nil)
}
