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
	appErrors "github.com/rivashah/expense-management-api/pkg/errors"
)

type fakeApprovalSrv struct {
	next       *models.NextApprover
	nextErr    error
	decision   *dto.DecisionResponse
	decideErr  error
	pending    []dto.PendingApprovalItem
	pendingErr error
	lastDecide struct {
		expenseID string
		actorID   string
		req       dto.DecisionRequest
	}
}

func (f *fakeApprovalSrv) ResolveNextApprover(context.Context, string) (*models.NextApprover, error) {
	return f.next, f.nextErr
}

func (f *fakeApprovalSrv) RecordDecision(_ context.Context, expenseID, actorID string, req dto.DecisionRequest) (*dto.DecisionResponse, error) {
	f.lastDecide.expenseID = expenseID
	f.lastDecide.actorID = actorID
	f.lastDecide.req = req
	return f.decision, f.decideErr
}

func (f *fakeApprovalSrv) ListPendingForApprover(context.Context, *models.JWTClaims) ([]dto.PendingApprovalItem, error) {
	return f.pending, f.pendingErr
}

func decisionContext(t *testing.T, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/expenses/exp-1/decision", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: "exp-1"}}
	return c, rec
}

func TestApprovalHandlerNextApprover(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApprovalHandler(&fakeApprovalSrv{
		next: &models.NextApprover{StepNumber: 2, Role: models.ApprovalRoleFinance, ApproverID: "fin-1"},
	})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/expenses/exp-1/next-approver", nil)
	c.Params = gin.Params{{Key: "id", Value: "exp-1"}}

	handler.NextApprover(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data models.NextApprover `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "fin-1", envelope.Data.ApproverID)
	assert.Equal(t, 2, envelope.Data.StepNumber)
}

func TestApprovalHandlerNextApproverTerminated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApprovalHandler(&fakeApprovalSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/expenses/exp-1/next-approver", nil)
	c.Params = gin.Params{{Key: "id", Value: "exp-1"}}

	handler.NextApprover(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data map[string]interface{} `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, true, envelope.Data["terminated"])
}

func TestApprovalHandlerDecideRequiresAuth(t *testing.T) {
	handler := NewApprovalHandler(&fakeApprovalSrv{})

	c, rec := decisionContext(t, `{"decision":"APPROVED"}`)
	handler.Decide(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApprovalHandlerDecidePassesActor(t *testing.T) {
	service := &fakeApprovalSrv{
		decision: &dto.DecisionResponse{ExpenseStatus: models.ExpenseStatusPending},
	}
	handler := NewApprovalHandler(service)

	c, rec := decisionContext(t, `{"decision":"APPROVED","comment":"ok"}`)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "mgr-1", CompanyID: "co-1", Role: models.RoleManager})

	handler.Decide(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "exp-1", service.lastDecide.expenseID)
	assert.Equal(t, "mgr-1", service.lastDecide.actorID)
	assert.Equal(t, models.DecisionApproved, service.lastDecide.req.Decision)
	assert.Equal(t, "ok", service.lastDecide.req.Comment)
}

func TestApprovalHandlerDecideInvalidBody(t *testing.T) {
	handler := NewApprovalHandler(&fakeApprovalSrv{})

	c, rec := decisionContext(t, `{"decision":`)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "mgr-1"})

	handler.Decide(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApprovalHandlerDecideServiceError(t *testing.T) {
	handler := NewApprovalHandler(&fakeApprovalSrv{
		decideErr: appErrors.Clone(appErrors.ErrForbidden, "decision belongs to another approver"),
	})

	c, rec := decisionContext(t, `{"decision":"APPROVED"}`)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "emp-1"})

	handler.Decide(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestApprovalHandlerPending(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApprovalHandler(&fakeApprovalSrv{
		pending: []dto.PendingApprovalItem{
			{Expense: models.Expense{ID: "exp-1"}, StepNumber: 1, Role: models.ApprovalRoleManager},
		},
	})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/approvals/pending", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "mgr-1", CompanyID: "co-1", Role: models.RoleManager})

	handler.Pending(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data []dto.PendingApprovalItem `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Len(t, envelope.Data, 1)
	assert.Equal(t, "exp-1", envelope.Data[0].Expense.ID)
}
