package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rivashah/expense-management-api/internal/dto"
	"github.com/rivashah/expense-management-api/internal/models"
	appErrors "github.com/rivashah/expense-management-api/pkg/errors"
	"github.com/rivashah/expense-management-api/pkg/response"
)

type approvalService interface {
	ResolveNextApprover(ctx context.Context, expenseID string) (*models.NextApprover, error)
	RecordDecision(ctx context.Context, expenseID, actorID string, req dto.DecisionRequest) (*dto.DecisionResponse, error)
	ListPendingForApprover(ctx context.Context, claims *models.JWTClaims) ([]dto.PendingApprovalItem, error)
}

// ApprovalHandler exposes the workflow engine over HTTP.
type ApprovalHandler struct {
	service approvalService
}

// NewApprovalHandler creates a new handler.
func NewApprovalHandler(svc approvalService) *ApprovalHandler {
	return &ApprovalHandler{service: svc}
}

// NextApprover godoc
// @Summary Resolve the awaited approver
// @Description Returns whose turn it is on the expense, or a terminal marker
// @Tags Approvals
// @Produce json
// @Param id path string true "Expense ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /expenses/{id}/next-approver [get]
func (h *ApprovalHandler) NextApprover(c *gin.Context) {
	next, err := h.service.ResolveNextApprover(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	if next == nil {
		response.JSON(c, http.StatusOK, gin.H{"terminated": true}, nil)
		return
	}
	response.JSON(c, http.StatusOK, next, nil)
}

// Decide godoc
// @Summary Record an approval decision
// @Description Approves or rejects the expense's current step
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Expense ID"
// @Param payload body dto.DecisionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /expenses/{id}/decision [post]
func (h *ApprovalHandler) Decide(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}

	res, err := h.service.RecordDecision(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Pending godoc
// @Summary List expenses awaiting the caller
// @Description Returns pending expenses whose current step resolves to the caller
// @Tags Approvals
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /approvals/pending [get]
func (h *ApprovalHandler) Pending(c *gin.Context) {
	items, err := h.service.ListPendingForApprover(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, items, nil)
}
