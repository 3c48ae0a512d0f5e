package handler

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rivashah/expense-management-api/internal/dto"
	"github.com/rivashah/expense-management-api/internal/models"
	"github.com/rivashah/expense-management-api/internal/service"
	appErrors "github.com/rivashah/expense-management-api/pkg/errors"
	"github.com/rivashah/expense-management-api/pkg/response"
	"github.com/rivashah/expense-management-api/pkg/storage"
)

type expenseService interface {
	Submit(ctx context.Context, claims *models.JWTClaims, req dto.SubmitExpenseRequest) (*dto.SubmitExpenseResponse, error)
	List(ctx context.Context, claims *models.JWTClaims, query dto.ExpenseQuery) ([]models.Expense, *models.Pagination, error)
	Detail(ctx context.Context, claims *models.JWTClaims, expenseID string) (*dto.ExpenseDetail, error)
	AttachReceipt(ctx context.Context, claims *models.JWTClaims, expenseID, fileName string) error
}

// ExpenseHandler exposes expense submission and browsing endpoints.
type ExpenseHandler struct {
	service     expenseService
	metrics     *service.MetricsService
	receipts    *storage.LocalStorage
	maxFileSize int64
}

// NewExpenseHandler creates a new handler. receipts may be nil when
// receipt upload is disabled.
func NewExpenseHandler(svc expenseService, metrics *service.MetricsService, receipts *storage.LocalStorage, maxFileSize int64) *ExpenseHandler {
	if maxFileSize <= 0 {
		maxFileSize = 5 << 20
	}
	return &ExpenseHandler{service: svc, metrics: metrics, receipts: receipts, maxFileSize: maxFileSize}
}

// Submit godoc
// @Summary Submit an expense
// @Description Creates a pending expense and resolves its first approver
// @Tags Expenses
// @Accept json
// @Produce json
// @Param payload body dto.SubmitExpenseRequest true "Expense payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /expenses [post]
func (h *ExpenseHandler) Submit(c *gin.Context) {
	var req dto.SubmitExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid expense payload"))
		return
	}

	res, err := h.service.Submit(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.ObserveExpenseSubmitted()
	}
	response.JSON(c, http.StatusCreated, res, nil)
}

// List godoc
// @Summary List expenses
// @Description Lists expenses visible to the caller, with filters
// @Tags Expenses
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param category query string false "Category filter"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /expenses [get]
func (h *ExpenseHandler) List(c *gin.Context) {
	query, err := parseExpenseQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	expenses, pagination, err := h.service.List(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, expenses, pagination)
}

// Get godoc
// @Summary Get expense detail
// @Description Returns the expense, its approval trail, and the awaited approver
// @Tags Expenses
// @Produce json
// @Param id path string true "Expense ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /expenses/{id} [get]
func (h *ExpenseHandler) Get(c *gin.Context) {
	detail, err := h.service.Detail(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, detail, nil)
}

// UploadReceipt godoc
// @Summary Attach a receipt
// @Description Uploads a receipt file and links it to the expense
// @Tags Expenses
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Expense ID"
// @Param file formData file true "Receipt file"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /expenses/{id}/receipt [post]
func (h *ExpenseHandler) UploadReceipt(c *gin.Context) {
	if h.receipts == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "receipt upload is disabled"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "receipt file is required"))
		return
	}
	if fileHeader.Size > h.maxFileSize {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("receipt exceeds %d bytes", h.maxFileSize)))
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer src.Close() //nolint:errcheck

	filename := fmt.Sprintf("%s%s", uuid.NewString(), filepath.Ext(fileHeader.Filename))
	stored, err := h.receipts.SaveStream(filename, src)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store receipt"))
		return
	}

	if err := h.service.AttachReceipt(c.Request.Context(), claimsFromContext(c), c.Param("id"), stored); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

func parseExpenseQuery(c *gin.Context) (dto.ExpenseQuery, error) {
	query := dto.ExpenseQuery{
		Category: c.Query("category"),
	}

	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := models.ExpenseStatus(strings.ToUpper(strings.TrimSpace(part)))
			switch status {
			case models.ExpenseStatusPending, models.ExpenseStatusApproved, models.ExpenseStatusRejected:
				query.Status = append(query.Status, status)
			default:
				return query, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", part))
			}
		}
	}

	for name, dest := range map[string]**time.Time{"from": &query.From, "to": &query.To} {
		if raw := c.Query(name); raw != "" {
			ts, err := time.Parse("2006-01-02", raw)
			if err != nil {
				return query, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must be formatted as YYYY-MM-DD", name))
			}
			*dest = &ts
		}
	}

	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return query, nil
}
