package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rivashah/expense-management-api/internal/dto"
	"github.com/rivashah/expense-management-api/internal/models"
	"github.com/rivashah/expense-management-api/internal/repository"
	appErrors "github.com/rivashah/expense-management-api/pkg/errors"
)

type approvalExpenseStore interface {
	GetByID(ctx context.Context, id string) (*models.Expense, error)
	List(ctx context.Context, filter models.ExpenseFilter) ([]models.Expense, int, error)
}

type approvalFlowStore interface {
	ListByCompany(ctx context.Context, companyID string) ([]models.ApprovalFlowStep, error)
}

type approvalRecordStore interface {
	ListByExpense(ctx context.Context, expenseID string) ([]models.ApprovalRecord, error)
	ApplyDecision(ctx context.Context, params repository.ApplyDecisionParams) (*models.ApprovalRecord, models.ExpenseStatus, error)
}

type approvalUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type decisionObserver interface {
	ObserveDecision(decision models.DecisionStatus, fastTracked bool)
}

// ApprovalService implements the approval workflow engine: resolving
// whose turn it is on an expense and recording decisions.
type ApprovalService struct {
	expenses approvalExpenseStore
	flows    approvalFlowStore
	records  approvalRecordStore
	users    approvalUserStore
	audit    auditLogger
	metrics  decisionObserver
	logger   *zap.Logger

	fastTrackThreshold float64
	financeRole        models.ApprovalRole
}

// ApprovalServiceOption configures the service.
type ApprovalServiceOption func(*ApprovalService)

// WithDecisionObserver wires a metrics sink for recorded decisions.
func WithDecisionObserver(observer decisionObserver) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.metrics = observer
	}
}

// NewApprovalService constructs the workflow engine. fastTrackThreshold
// is denominated in each company's default currency; financeRole names
// the step role whose approval always fast-tracks.
func NewApprovalService(
	expenses approvalExpenseStore,
	flows approvalFlowStore,
	records approvalRecordStore,
	users approvalUserStore,
	audit auditLogger,
	logger *zap.Logger,
	fastTrackThreshold float64,
	financeRole models.ApprovalRole,
	opts ...ApprovalServiceOption,
) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fastTrackThreshold <= 0 {
		fastTrackThreshold = 500
	}
	if financeRole == "" {
		financeRole = models.ApprovalRoleFinance
	}
	svc := &ApprovalService{
		expenses:           expenses,
		flows:              flows,
		records:            records,
		users:              users,
		audit:              audit,
		logger:             logger,
		fastTrackThreshold: fastTrackThreshold,
		financeRole:        financeRole,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// ResolveNextApprover computes whose turn it is on the expense. A nil
// result with nil error means the workflow has terminated (fully
// approved, or rejected at some step). Read-only and idempotent.
func (s *ApprovalService) ResolveNextApprover(ctx context.Context, expenseID string) (*models.NextApprover, error) {
	expense, err := s.loadExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	next, _, err := s.resolve(ctx, expense)
	return next, err
}

// resolve walks the decision ledger against the configured flow and
// returns the awaited approver plus the configured step count.
//
// The walk maintains the invariant that a step is only ever returned
// when every earlier step is Approved or absent: a Pending record pins
// the current step, a Rejected record terminates the walk immediately,
// and an Approved record advances past its own step number. The
// decision processor's fast-track branch relies on this invariant
// instead of re-verifying coverage.
func (s *ApprovalService) resolve(ctx context.Context, expense *models.Expense) (*models.NextApprover, int, error) {
	steps, err := s.flows.ListByCompany(ctx, expense.CompanyID)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval flow")
	}
	if len(steps) == 0 {
		return nil, 0, appErrors.Clone(appErrors.ErrConfiguration, "no approval flow steps configured for company")
	}

	records, err := s.records.ListByExpense(ctx, expense.ID)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval records")
	}

	current := 1
scan:
	for _, record := range records {
		switch record.Status {
		case models.DecisionPending:
			current = record.StepNumber
			break scan
		case models.DecisionRejected:
			return nil, len(steps), nil
		case models.DecisionApproved:
			current = record.StepNumber + 1
		}
	}

	if current > len(steps) {
		return nil, len(steps), nil
	}

	var step *models.ApprovalFlowStep
	for i := range steps {
		if steps[i].StepNumber == current {
			step = &steps[i]
			break
		}
	}
	if step == nil {
		return nil, len(steps), appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("approval flow step %d is not configured", current))
	}

	approverID, err := s.resolveApproverID(ctx, expense, step)
	if err != nil {
		return nil, len(steps), err
	}

	approver, err := s.users.FindByID(ctx, approverID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, len(steps), appErrors.Clone(appErrors.ErrNotFound, "resolved approver does not exist")
		}
		return nil, len(steps), appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approver")
	}

	return &models.NextApprover{
		StepNumber:   step.StepNumber,
		Role:         step.Role,
		ApproverID:   approver.ID,
		ApproverName: approver.FullName,
		ApproverMail: approver.Email,
	}, len(steps), nil
}

func (s *ApprovalService) resolveApproverID(ctx context.Context, expense *models.Expense, step *models.ApprovalFlowStep) (string, error) {
	if step.Role.Dynamic() {
		submitter, err := s.users.FindByID(ctx, expense.SubmitterID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", appErrors.Clone(appErrors.ErrNotFound, "expense submitter does not exist")
			}
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submitter")
		}
		if submitter.ManagerID == nil || *submitter.ManagerID == "" {
			return "", appErrors.Clone(appErrors.ErrValidation, "expense submitter has no manager assigned")
		}
		return *submitter.ManagerID, nil
	}

	if step.ApproverID == nil || *step.ApproverID == "" {
		return "", appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("approval flow step %d has no approver configured", step.StepNumber))
	}
	return *step.ApproverID, nil
}

// RecordDecision validates the acting approver against the resolver,
// persists the decision, and settles the expense status.
func (s *ApprovalService) RecordDecision(ctx context.Context, expenseID, actorID string, req dto.DecisionRequest) (*dto.DecisionResponse, error) {
	if req.Decision != models.DecisionApproved && req.Decision != models.DecisionRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision must be APPROVED or REJECTED")
	}

	expense, err := s.loadExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}

	next, totalSteps, err := s.resolve(ctx, expense)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expense has no pending approval step")
	}

	// Strict identity match: no role-based override, no delegation.
	if next.ApproverID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "user is not the approver for the current step")
	}

	fastTracked := false
	if req.Decision == models.DecisionApproved {
		fastTracked = expense.ConvertedAmount > s.fastTrackThreshold || next.Role == s.financeRole
	}

	record, finalStatus, err := s.records.ApplyDecision(ctx, repository.ApplyDecisionParams{
		ExpenseID:   expense.ID,
		StepNumber:  next.StepNumber,
		ApproverID:  actorID,
		Role:        next.Role,
		Decision:    req.Decision,
		Comment:     optionalString(req.Comment),
		FastTracked: fastTracked,
		TotalSteps:  totalSteps,
	})
	if err != nil {
		if errors.Is(err, repository.ErrExpenseNotPending) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "expense was finalized by another decision")
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "expense not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}

	if s.metrics != nil {
		s.metrics.ObserveDecision(req.Decision, fastTracked)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"step":         record.StepNumber,
		"decision":     record.Status,
		"expense":      finalStatus,
		"fast_tracked": fastTracked,
	})
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionExpenseDecision,
		Resource:   "expense",
		ResourceID: &expense.ID,
		NewValues:  payload,
	})

	s.logger.Info("approval decision recorded",
		zap.String("expense_id", expense.ID),
		zap.Int("step", record.StepNumber),
		zap.String("decision", string(record.Status)),
		zap.String("expense_status", string(finalStatus)),
		zap.Bool("fast_tracked", fastTracked),
	)

	return &dto.DecisionResponse{
		Record:        *record,
		ExpenseStatus: finalStatus,
		FastTracked:   fastTracked,
	}, nil
}

// ListPendingForApprover returns the company's pending expenses whose
// current step resolves to the given user.
func (s *ApprovalService) ListPendingForApprover(ctx context.Context, claims *models.JWTClaims) ([]dto.PendingApprovalItem, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	pending, _, err := s.expenses.List(ctx, models.ExpenseFilter{
		CompanyID: claims.CompanyID,
		Status:    []models.ExpenseStatus{models.ExpenseStatusPending},
		PageSize:  100,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending expenses")
	}

	items := make([]dto.PendingApprovalItem, 0, len(pending))
	for i := range pending {
		next, _, err := s.resolve(ctx, &pending[i])
		if err != nil {
			// Misconfigured or orphaned expenses should not hide the rest
			// of the queue.
			s.logger.Warn("skipping unresolvable expense",
				zap.String("expense_id", pending[i].ID), zap.Error(err))
			continue
		}
		if next == nil || next.ApproverID != claims.UserID {
			continue
		}
		items = append(items, dto.PendingApprovalItem{
			Expense:    pending[i],
			StepNumber: next.StepNumber,
			Role:       next.Role,
		})
	}
	return items, nil
}

func (s *ApprovalService) loadExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	expense, err := s.expenses.GetByID(ctx, expenseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "expense not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load expense")
	}
	return expense, nil
}

func (s *ApprovalService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "approval-service"
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
