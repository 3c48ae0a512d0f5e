package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rivashah/expense-management-api/internal/models"
)

// ErrExpenseNotPending is returned when a decision races against one
// that already finalized the expense.
var ErrExpenseNotPending = errors.New("expense is no longer pending")

const approvalRecordColumns = `id, expense_id, step_number, approver_id, role, status, comment, decided_at`

// ApprovalRecordRepository persists the per-step decision ledger.
type ApprovalRecordRepository struct {
	db *sqlx.DB
}

// NewApprovalRecordRepository constructs the repository.
func NewApprovalRecordRepository(db *sqlx.DB) *ApprovalRecordRepository {
	return &ApprovalRecordRepository{db: db}
}

// ListByExpense returns all records for an expense ordered by step number.
func (r *ApprovalRecordRepository) ListByExpense(ctx context.Context, expenseID string) ([]models.ApprovalRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM approval_records WHERE expense_id = $1 ORDER BY step_number ASC`, approvalRecordColumns)
	var records []models.ApprovalRecord
	if err := r.db.SelectContext(ctx, &records, query, expenseID); err != nil {
		return nil, fmt.Errorf("list approval records: %w", err)
	}
	return records, nil
}

// ApplyDecisionParams groups everything the transactional write needs.
// TotalSteps is the company's configured step count; FastTracked is the
// already-evaluated fast-track predicate for an approval.
type ApplyDecisionParams struct {
	ExpenseID  string
	StepNumber int
	ApproverID string
	Role       models.ApprovalRole
	Decision   models.DecisionStatus
	Comment    *string
	FastTracked bool
	TotalSteps  int
}

// ApplyDecision records a decision and settles the expense status in a
// single transaction. The expense row is locked for the duration so two
// concurrent decisions on the same expense serialize; the loser of the
// race sees ErrExpenseNotPending if the winner finalized the expense.
//
// The record upsert honours the (expense_id, step_number) uniqueness:
// re-deciding the same step overwrites rather than duplicating.
//
// Status settlement: a rejection is always terminal. An approval marks
// the expense Approved when the fast-track flag is set and the step is
// the last one, or otherwise when a recount shows every configured step
// has an Approved record. The fast-track branch deliberately trusts the
// resolver's sequential walk instead of re-verifying earlier steps.
func (r *ApprovalRecordRepository) ApplyDecision(ctx context.Context, params ApplyDecisionParams) (*models.ApprovalRecord, models.ExpenseStatus, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("begin decision: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentStatus models.ExpenseStatus
	if err := tx.GetContext(ctx, &currentStatus, `SELECT status FROM expenses WHERE id = $1 FOR UPDATE`, params.ExpenseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("lock expense: %w", err)
	}
	if currentStatus != models.ExpenseStatusPending {
		return nil, "", ErrExpenseNotPending
	}

	record := &models.ApprovalRecord{
		ID:         uuid.NewString(),
		ExpenseID:  params.ExpenseID,
		StepNumber: params.StepNumber,
		ApproverID: params.ApproverID,
		Role:       params.Role,
		Status:     params.Decision,
		Comment:    params.Comment,
		DecidedAt:  time.Now().UTC(),
	}

	const upsert = `INSERT INTO approval_records (id, expense_id, step_number, approver_id, role, status, comment, decided_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (expense_id, step_number)
	DO UPDATE SET approver_id = EXCLUDED.approver_id, role = EXCLUDED.role, status = EXCLUDED.status, comment = EXCLUDED.comment, decided_at = EXCLUDED.decided_at
	RETURNING id`
	if err := tx.GetContext(ctx, &record.ID, upsert,
		record.ID, record.ExpenseID, record.StepNumber, record.ApproverID, record.Role, record.Status, record.Comment, record.DecidedAt,
	); err != nil {
		return nil, "", fmt.Errorf("upsert approval record: %w", err)
	}

	finalStatus := models.ExpenseStatusPending
	switch {
	case params.Decision == models.DecisionRejected:
		finalStatus = models.ExpenseStatusRejected
	case params.FastTracked:
		if params.StepNumber >= params.TotalSteps {
			finalStatus = models.ExpenseStatusApproved
		}
	default:
		var coverage struct {
			Total    int `db:"total"`
			Approved int `db:"approved"`
		}
		const recount = `SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE status = 'APPROVED') AS approved
		FROM approval_records WHERE expense_id = $1`
		if err := tx.GetContext(ctx, &coverage, recount, params.ExpenseID); err != nil {
			return nil, "", fmt.Errorf("recount approvals: %w", err)
		}
		if coverage.Total == params.TotalSteps && coverage.Approved == coverage.Total {
			finalStatus = models.ExpenseStatusApproved
		}
	}

	if finalStatus != models.ExpenseStatusPending {
		if _, err := tx.ExecContext(ctx, `UPDATE expenses SET status = $2, updated_at = $3 WHERE id = $1`,
			params.ExpenseID, finalStatus, time.Now().UTC(),
		); err != nil {
			return nil, "", fmt.Errorf("finalize expense status: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("commit decision: %w", err)
	}
	return record, finalStatus, nil
}
