package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rivashah/expense-management-api/internal/dto"
	"github.com/rivashah/expense-management-api/internal/models"
	appErrors "github.com/rivashah/expense-management-api/pkg/errors"
)

type memExpenseStore struct {
	expenses   map[string]*models.Expense
	lastFilter models.ExpenseFilter
	attached   map[string]string
}

func (m *memExpenseStore) Create(_ context.Context, expense *models.Expense) error {
	if m.expenses == nil {
		m.expenses = make(map[string]*models.Expense)
	}
	m.expenses[expense.ID] = expense
	return nil
}

func (m *memExpenseStore) GetByID(_ context.Context, id string) (*models.Expense, error) {
	expense, ok := m.expenses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *expense
	return &clone, nil
}

func (m *memExpenseStore) List(_ context.Context, filter models.ExpenseFilter) ([]models.Expense, int, error) {
	m.lastFilter = filter
	var out []models.Expense
	for _, expense := range m.expenses {
		out = append(out, *expense)
	}
	return out, len(out), nil
}

func (m *memExpenseStore) AttachReceipt(_ context.Context, id, fileName string) error {
	if _, ok := m.expenses[id]; !ok {
		return sql.ErrNoRows
	}
	if m.attached == nil {
		m.attached = make(map[string]string)
	}
	m.attached[id] = fileName
	return nil
}

type memCompanyStore struct {
	companies map[string]*models.Company
}

func (m *memCompanyStore) GetByID(_ context.Context, id string) (*models.Company, error) {
	company, ok := m.companies[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return company, nil
}

type memUserStore struct {
	users      map[string]*models.User
	lastFilter models.UserFilter
}

func (m *memUserStore) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *memUserStore) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	m.lastFilter = filter
	var out []models.User
	for _, user := range m.users {
		if filter.CompanyID != "" && user.CompanyID != filter.CompanyID {
			continue
		}
		if filter.ManagerID != "" && (user.ManagerID == nil || *user.ManagerID != filter.ManagerID) {
			continue
		}
		out = append(out, *user)
	}
	return out, len(out), nil
}

type stubResolver struct {
	next *models.NextApprover
	err  error
}

func (s *stubResolver) ResolveNextApprover(_ context.Context, _ string) (*models.NextApprover, error) {
	return s.next, s.err
}

type stubConverter struct {
	rate float64
	err  error
}

func (s *stubConverter) Convert(_ context.Context, amount float64, from, to string) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	if from == to {
		return amount, nil
	}
	return amount * s.rate, nil
}

type memRecordLister struct {
	records map[string][]models.ApprovalRecord
}

func (m *memRecordLister) ListByExpense(_ context.Context, expenseID string) ([]models.ApprovalRecord, error) {
	return m.records[expenseID], nil
}

type expenseFixture struct {
	service   *ExpenseService
	expenses  *memExpenseStore
	users     *memUserStore
	resolver  *stubResolver
	converter *stubConverter
	audit     *stubAuditStore
}

func newExpenseFixture(t *testing.T) *expenseFixture {
	t.Helper()

	expenses := &memExpenseStore{expenses: map[string]*models.Expense{}}
	companies := &memCompanyStore{companies: map[string]*models.Company{
		"co-1": {ID: "co-1", Name: "Acme", Country: "US", DefaultCurrency: "USD"},
	}}
	users := &memUserStore{users: map[string]*models.User{
		"emp-1": {ID: "emp-1", CompanyID: "co-1", Role: models.RoleEmployee, ManagerID: strPtr("mgr-1")},
		"emp-2": {ID: "emp-2", CompanyID: "co-1", Role: models.RoleEmployee},
		"mgr-1": {ID: "mgr-1", CompanyID: "co-1", Role: models.RoleManager},
	}}
	resolver := &stubResolver{next: &models.NextApprover{StepNumber: 1, Role: models.ApprovalRoleManager, ApproverID: "mgr-1"}}
	converter := &stubConverter{rate: 1.1}
	audit := &stubAuditStore{}
	records := &memRecordLister{records: map[string][]models.ApprovalRecord{}}

	svc := NewExpenseService(expenses, companies, users, records, resolver, converter, audit, validator.New(), zap.NewNop())
	return &expenseFixture{service: svc, expenses: expenses, users: users, resolver: resolver, converter: converter, audit: audit}
}

func employeeClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "emp-1", CompanyID: "co-1", Role: models.RoleEmployee}
}

func TestExpenseSubmitConvertsCurrency(t *testing.T) {
	fx := newExpenseFixture(t)

	res, err := fx.service.Submit(context.Background(), employeeClaims(), dto.SubmitExpenseRequest{
		Description: "Client dinner",
		Category:    "Meals",
		Amount:      100,
		Currency:    "eur",
		ExpenseDate: "2026-08-20",
	})
	require.NoError(t, err)
	assert.Equal(t, "EUR", res.Expense.Currency)
	assert.InDelta(t, 110, res.Expense.ConvertedAmount, 0.001)
	assert.Equal(t, models.ExpenseStatusPending, res.Expense.Status)
	require.NotNil(t, res.NextApprover)
	assert.Equal(t, "mgr-1", res.NextApprover.ApproverID)
	require.Len(t, fx.audit.logs, 1)
	assert.Equal(t, models.AuditActionExpenseSubmit, fx.audit.logs[0].Action)
}

func TestExpenseSubmitInvalidDate(t *testing.T) {
	fx := newExpenseFixture(t)

	_, err := fx.service.Submit(context.Background(), employeeClaims(), dto.SubmitExpenseRequest{
		Description: "Taxi",
		Category:    "Travel",
		Amount:      20,
		Currency:    "USD",
		ExpenseDate: "20/08/2026",
	})
	requireCode(t, err, appErrors.ErrValidation.Code)
}

func TestExpenseSubmitRejectsNonPositiveAmount(t *testing.T) {
	fx := newExpenseFixture(t)

	_, err := fx.service.Submit(context.Background(), employeeClaims(), dto.SubmitExpenseRequest{
		Description: "Refund",
		Category:    "Misc",
		Amount:      -5,
		Currency:    "USD",
		ExpenseDate: "2026-08-20",
	})
	requireCode(t, err, appErrors.ErrValidation.Code)
}

func TestExpenseSubmitSurvivesResolverFailure(t *testing.T) {
	fx := newExpenseFixture(t)
	fx.resolver.next = nil
	fx.resolver.err = errors.New("flow not configured")

	res, err := fx.service.Submit(context.Background(), employeeClaims(), dto.SubmitExpenseRequest{
		Description: "Hotel",
		Category:    "Travel",
		Amount:      300,
		Currency:    "USD",
		ExpenseDate: "2026-08-20",
	})
	require.NoError(t, err)
	assert.Nil(t, res.NextApprover)
	assert.Len(t, fx.expenses.expenses, 1)
}

func TestExpenseListEmployeeSeesOnlyOwn(t *testing.T) {
	fx := newExpenseFixture(t)

	_, _, err := fx.service.List(context.Background(), employeeClaims(), dto.ExpenseQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"emp-1"}, fx.expenses.lastFilter.SubmitterIDs)
	assert.Equal(t, "co-1", fx.expenses.lastFilter.CompanyID)
}

func TestExpenseListManagerSeesTeam(t *testing.T) {
	fx := newExpenseFixture(t)
	claims := &models.JWTClaims{UserID: "mgr-1", CompanyID: "co-1", Role: models.RoleManager}

	_, _, err := fx.service.List(context.Background(), claims, dto.ExpenseQuery{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"mgr-1", "emp-1"}, fx.expenses.lastFilter.SubmitterIDs)
}

func TestExpenseListFinanceSeesCompany(t *testing.T) {
	fx := newExpenseFixture(t)
	claims := &models.JWTClaims{UserID: "fin-1", CompanyID: "co-1", Role: models.RoleFinance}

	_, _, err := fx.service.List(context.Background(), claims, dto.ExpenseQuery{})
	require.NoError(t, err)
	assert.Empty(t, fx.expenses.lastFilter.SubmitterIDs)
}

func TestExpenseDetailScoping(t *testing.T) {
	fx := newExpenseFixture(t)
	fx.expenses.expenses["exp-1"] = &models.Expense{ID: "exp-1", CompanyID: "co-1", SubmitterID: "emp-2", Status: models.ExpenseStatusPending}

	// Another employee cannot read it.
	_, err := fx.service.Detail(context.Background(), employeeClaims(), "exp-1")
	requireCode(t, err, appErrors.ErrForbidden.Code)

	// Its submitter can.
	claims := &models.JWTClaims{UserID: "emp-2", CompanyID: "co-1", Role: models.RoleEmployee}
	detail, err := fx.service.Detail(context.Background(), claims, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, "exp-1", detail.Expense.ID)

	// A manager without that report cannot.
	claims = &models.JWTClaims{UserID: "mgr-1", CompanyID: "co-1", Role: models.RoleManager}
	_, err = fx.service.Detail(context.Background(), claims, "exp-1")
	requireCode(t, err, appErrors.ErrForbidden.Code)
}

func TestExpenseDetailCrossCompanyHidden(t *testing.T) {
	fx := newExpenseFixture(t)
	fx.expenses.expenses["exp-9"] = &models.Expense{ID: "exp-9", CompanyID: "co-2", SubmitterID: "other", Status: models.ExpenseStatusPending}

	claims := &models.JWTClaims{UserID: "fin-1", CompanyID: "co-1", Role: models.RoleFinance}
	_, err := fx.service.Detail(context.Background(), claims, "exp-9")
	requireCode(t, err, appErrors.ErrNotFound.Code)
}

func TestExpenseAttachReceipt(t *testing.T) {
	fx := newExpenseFixture(t)
	fx.expenses.expenses["exp-1"] = &models.Expense{ID: "exp-1", CompanyID: "co-1", SubmitterID: "emp-1", Status: models.ExpenseStatusPending}

	err := fx.service.AttachReceipt(context.Background(), employeeClaims(), "exp-1", "receipt.pdf")
	require.NoError(t, err)
	assert.Equal(t, "receipt.pdf", fx.expenses.attached["exp-1"])

	claims := &models.JWTClaims{UserID: "emp-2", CompanyID: "co-1", Role: models.RoleEmployee}
	err = fx.service.AttachReceipt(context.Background(), claims, "exp-1", "receipt.pdf")
	requireCode(t, err, appErrors.ErrForbidden.Code)
}
