package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rivashah/expense-management-api/internal/dto"
	"github.com/rivashah/expense-management-api/internal/models"
	appErrors "github.com/rivashah/expense-management-api/pkg/errors"
)

type expenseStore interface {
	Create(ctx context.Context, expense *models.Expense) error
	GetByID(ctx context.Context, id string) (*models.Expense, error)
	List(ctx context.Context, filter models.ExpenseFilter) ([]models.Expense, int, error)
	AttachReceipt(ctx context.Context, id, fileName string) error
}

type expenseCompanyStore interface {
	GetByID(ctx context.Context, id string) (*models.Company, error)
}

type expenseUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}

type expenseRecordStore interface {
	ListByExpense(ctx context.Context, expenseID string) ([]models.ApprovalRecord, error)
}

type nextApproverResolver interface {
	ResolveNextApprover(ctx context.Context, expenseID string) (*models.NextApprover, error)
}

type amountConverter interface {
	Convert(ctx context.Context, amount float64, from, to string) (float64, error)
}

// ExpenseService handles submission, listing, and detail views of
// expenses, scoped to the caller's company and role.
type ExpenseService struct {
	expenses  expenseStore
	companies expenseCompanyStore
	users     expenseUserStore
	records   expenseRecordStore
	resolver  nextApproverResolver
	converter amountConverter
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExpenseService constructs the expense use cases.
func NewExpenseService(
	expenses expenseStore,
	companies expenseCompanyStore,
	users expenseUserStore,
	records expenseRecordStore,
	resolver nextApproverResolver,
	converter amountConverter,
	audit auditLogger,
	validate *validator.Validate,
	logger *zap.Logger,
) *ExpenseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ExpenseService{
		expenses:  expenses,
		companies: companies,
		users:     users,
		records:   records,
		resolver:  resolver,
		converter: converter,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// Submit creates a PENDING expense for the caller, normalizing the
// amount into the company's default currency. The resolved first
// approver is returned alongside so clients can show who is next;
// resolution failures (for example a flow not configured yet) do not
// block the submission itself.
func (s *ExpenseService) Submit(ctx context.Context, claims *models.JWTClaims, req dto.SubmitExpenseRequest) (*dto.SubmitExpenseResponse, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid expense payload")
	}

	expenseDate, err := time.Parse("2006-01-02", req.ExpenseDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expense_date must be formatted as YYYY-MM-DD")
	}

	company, err := s.companies.GetByID(ctx, claims.CompanyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "company not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load company")
	}

	currency := strings.ToUpper(req.Currency)
	converted, err := s.converter.Convert(ctx, req.Amount, currency, company.DefaultCurrency)
	if err != nil {
		return nil, err
	}

	expense := &models.Expense{
		ID:              uuid.NewString(),
		CompanyID:       claims.CompanyID,
		SubmitterID:     claims.UserID,
		Description:     req.Description,
		Category:        req.Category,
		Amount:          req.Amount,
		Currency:        currency,
		ConvertedAmount: converted,
		Status:          models.ExpenseStatusPending,
		ExpenseDate:     expenseDate,
	}
	if err := s.expenses.Create(ctx, expense); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create expense")
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"amount":           expense.Amount,
		"currency":         expense.Currency,
		"converted_amount": expense.ConvertedAmount,
	})
	s.emitExpenseAudit(ctx, claims.UserID, expense.ID, payload)

	next, err := s.resolver.ResolveNextApprover(ctx, expense.ID)
	if err != nil {
		s.logger.Warn("expense submitted but first approver could not be resolved",
			zap.String("expense_id", expense.ID), zap.Error(err))
		next = nil
	}

	return &dto.SubmitExpenseResponse{Expense: *expense, NextApprover: next}, nil
}

// List returns expenses visible to the caller. Employees see their
// own, managers additionally see their direct reports', and finance,
// director, and admin roles see the whole company.
func (s *ExpenseService) List(ctx context.Context, claims *models.JWTClaims, query dto.ExpenseQuery) ([]models.Expense, *models.Pagination, error) {
	if claims == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}

	filter := models.ExpenseFilter{
		CompanyID: claims.CompanyID,
		Status:    query.Status,
		Category:  query.Category,
		From:      query.From,
		To:        query.To,
		Page:      query.Page,
		PageSize:  query.PageSize,
	}

	switch claims.Role {
	case models.RoleEmployee:
		filter.SubmitterIDs = []string{claims.UserID}
	case models.RoleManager:
		ids, err := s.visibleSubmitters(ctx, claims)
		if err != nil {
			return nil, nil, err
		}
		filter.SubmitterIDs = ids
	}

	expenses, total, err := s.expenses.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list expenses")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = 20
	}
	return expenses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Detail returns the expense with its full approval trail and, when
// the workflow is still live, the awaited approver.
func (s *ExpenseService) Detail(ctx context.Context, claims *models.JWTClaims, expenseID string) (*dto.ExpenseDetail, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	expense, err := s.expenses.GetByID(ctx, expenseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "expense not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load expense")
	}

	if err := s.authorizeRead(ctx, claims, expense); err != nil {
		return nil, err
	}

	records, err := s.records.ListByExpense(ctx, expense.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval records")
	}

	var next *models.NextApprover
	if expense.Status == models.ExpenseStatusPending {
		next, err = s.resolver.ResolveNextApprover(ctx, expense.ID)
		if err != nil {
			s.logger.Warn("failed to resolve next approver for detail view",
				zap.String("expense_id", expense.ID), zap.Error(err))
			next = nil
		}
	}

	return &dto.ExpenseDetail{Expense: *expense, Approvals: records, NextApprover: next}, nil
}

// AttachReceipt links a stored receipt file to a pending expense owned
// by the caller.
func (s *ExpenseService) AttachReceipt(ctx context.Context, claims *models.JWTClaims, expenseID, fileName string) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if fileName == "" {
		return appErrors.Clone(appErrors.ErrValidation, "receipt file name is required")
	}

	expense, err := s.expenses.GetByID(ctx, expenseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "expense not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load expense")
	}
	if expense.SubmitterID != claims.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the submitter can attach a receipt")
	}

	if err := s.expenses.AttachReceipt(ctx, expenseID, fileName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "expense not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach receipt")
	}
	return nil
}

func (s *ExpenseService) authorizeRead(ctx context.Context, claims *models.JWTClaims, expense *models.Expense) error {
	if expense.CompanyID != claims.CompanyID {
		return appErrors.Clone(appErrors.ErrNotFound, "expense not found")
	}

	switch claims.Role {
	case models.RoleEmployee:
		if expense.SubmitterID != claims.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "expense belongs to another user")
		}
	case models.RoleManager:
		if expense.SubmitterID == claims.UserID {
			return nil
		}
		submitter, err := s.users.FindByID(ctx, expense.SubmitterID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submitter")
		}
		if submitter.ManagerID == nil || *submitter.ManagerID != claims.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "expense belongs to another team")
		}
	}
	return nil
}

func (s *ExpenseService) visibleSubmitters(ctx context.Context, claims *models.JWTClaims) ([]string, error) {
	reports, _, err := s.users.List(ctx, models.UserFilter{
		CompanyID: claims.CompanyID,
		ManagerID: claims.UserID,
		PageSize:  500,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load direct reports")
	}
	ids := make([]string, 0, len(reports)+1)
	ids = append(ids, claims.UserID)
	for _, report := range reports {
		ids = append(ids, report.ID)
	}
	return ids, nil
}

func (s *ExpenseService) emitExpenseAudit(ctx context.Context, userID, expenseID string, payload []byte) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionExpenseSubmit,
		Resource:   "expense",
		ResourceID: &expenseID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "expense-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
