package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/rivashah/expense-management-api/internal/dto"
	"github.com/rivashah/expense-management-api/internal/middleware"
	"github.com/rivashah/expense-management-api/internal/models"
)

type fakeExpenseSrv struct {
	submitResp *dto.SubmitExpenseResponse
	submitErr  error
	listResp   []models.Expense
	listPage   *models.Pagination
	listErr    error
	detail     *dto.ExpenseDetail
	detailErr  error
	attachErr  error
	lastQuery  dto.ExpenseQuery
	lastSubmit dto.SubmitExpenseRequest
}

func (f *fakeExpenseSrv) Submit(_ context.Context, _ *models.JWTClaims, req dto.SubmitExpenseRequest) (*dto.SubmitExpenseResponse, error) {
	f.lastSubmit = req
	return f.submitResp, f.submitErr
}

func (f *fakeExpenseSrv) List(_ context.Context, _ *models.JWTClaims, query dto.ExpenseQuery) ([]models.Expense, *models.Pagination, error) {
	f.lastQuery = query
	return f.listResp, f.listPage, f.listErr
}

func (f *fakeExpenseSrv) Detail(context.Context, *models.JWTClaims, string) (*dto.ExpenseDetail, error) {
	return f.detail, f.detailErr
}

func (f *fakeExpenseSrv) AttachReceipt(context.Context, *models.JWTClaims, string, string) error {
	return f.attachErr
}

func expenseTestContext(t *testing.T, method, target string, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
		c.Request = httptest.NewRequest(method, target, reader)
		c.Request.Header.Set("Content-Type", "application/json")
	} else {
		c.Request = httptest.NewRequest(method, target, nil)
	}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "emp-1", CompanyID: "co-1", Role: models.RoleEmployee})
	return c, rec
}

func TestExpenseHandlerSubmit(t *testing.T) {
	service := &fakeExpenseSrv{
		submitResp: &dto.SubmitExpenseResponse{Expense: models.Expense{ID: "exp-1", Status: models.ExpenseStatusPending}},
	}
	handler := NewExpenseHandler(service, nil, nil, 0)

	c, rec := expenseTestContext(t, http.MethodPost, "/expenses",
		`{"description":"Taxi","category":"travel","amount":42.5,"currency":"usd","expense_date":"2026-08-12"}`)

	handler.Submit(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Taxi", service.lastSubmit.Description)
	assert.InDelta(t, 42.5, service.lastSubmit.Amount, 0.001)
}

func TestExpenseHandlerSubmitInvalidBody(t *testing.T) {
	handler := NewExpenseHandler(&fakeExpenseSrv{}, nil, nil, 0)

	c, rec := expenseTestContext(t, http.MethodPost, "/expenses", `{"description":`)

	handler.Submit(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExpenseHandlerListParsesFilters(t *testing.T) {
	service := &fakeExpenseSrv{listPage: &models.Pagination{Page: 2, PageSize: 10}}
	handler := NewExpenseHandler(service, nil, nil, 0)

	c, rec := expenseTestContext(t, http.MethodGet,
		"/expenses?status=PENDING,approved&category=travel&from=2026-08-01&to=2026-08-31&page=2&page_size=10", "")

	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []models.ExpenseStatus{models.ExpenseStatusPending, models.ExpenseStatusApproved}, service.lastQuery.Status)
	assert.Equal(t, "travel", service.lastQuery.Category)
	assert.NotNil(t, service.lastQuery.From)
	assert.NotNil(t, service.lastQuery.To)
	assert.Equal(t, 2, service.lastQuery.Page)
	assert.Equal(t, 10, service.lastQuery.PageSize)

	var envelope struct {
		Pagination *models.Pagination `json:"pagination"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, 2, envelope.Pagination.Page)
}

func TestExpenseHandlerListRejectsUnknownStatus(t *testing.T) {
	handler := NewExpenseHandler(&fakeExpenseSrv{}, nil, nil, 0)

	c, rec := expenseTestContext(t, http.MethodGet, "/expenses?status=DRAFT", "")

	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExpenseHandlerListRejectsBadDate(t *testing.T) {
	handler := NewExpenseHandler(&fakeExpenseSrv{}, nil, nil, 0)

	c, rec := expenseTestContext(t, http.MethodGet, "/expenses?from=31-08-2026", "")

	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExpenseHandlerGet(t *testing.T) {
	handler := NewExpenseHandler(&fakeExpenseSrv{
		detail: &dto.ExpenseDetail{
			Expense:      models.Expense{ID: "exp-1"},
			NextApprover: &models.NextApprover{StepNumber: 1, ApproverID: "mgr-1"},
		},
	}, nil, nil, 0)

	c, rec := expenseTestContext(t, http.MethodGet, "/expenses/exp-1", "")
	c.Params = gin.Params{{Key: "id", Value: "exp-1"}}

	handler.Get(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data dto.ExpenseDetail `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "exp-1", envelope.Data.Expense.ID)
	assert.Equal(t, "mgr-1", envelope.Data.NextApprover.ApproverID)
}

func TestExpenseHandlerUploadReceiptDisabled(t *testing.T) {
	handler := NewExpenseHandler(&fakeExpenseSrv{}, nil, nil, 0)

	c, rec := expenseTestContext(t, http.MethodPost, "/expenses/exp-1/receipt", "")
	c.Params = gin.Params{{Key: "id", Value: "exp-1"}}

	handler.UploadReceipt(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
