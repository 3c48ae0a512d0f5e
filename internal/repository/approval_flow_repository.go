package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rivashah/expense-management-api/internal/models"
)

const flowStepColumns = `id, company_id, step_number, role, approver_id, created_at, updated_at`

// ApprovalFlowRepository persists per-company approval flow configuration.
type ApprovalFlowRepository struct {
	db *sqlx.DB
}

// NewApprovalFlowRepository constructs the repository.
func NewApprovalFlowRepository(db *sqlx.DB) *ApprovalFlowRepository {
	return &ApprovalFlowRepository{db: db}
}

// ListByCompany returns the company's flow steps ordered by step number.
func (r *ApprovalFlowRepository) ListByCompany(ctx context.Context, companyID string) ([]models.ApprovalFlowStep, error) {
	query := fmt.Sprintf(`SELECT %s FROM approval_flow_steps WHERE company_id = $1 ORDER BY step_number ASC`, flowStepColumns)
	var steps []models.ApprovalFlowStep
	if err := r.db.SelectContext(ctx, &steps, query, companyID); err != nil {
		return nil, fmt.Errorf("list flow steps: %w", err)
	}
	return steps, nil
}

// CountByCompany returns the number of configured steps.
func (r *ApprovalFlowRepository) CountByCompany(ctx context.Context, companyID string) (int, error) {
	const query = `SELECT COUNT(*) FROM approval_flow_steps WHERE company_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, companyID); err != nil {
		return 0, fmt.Errorf("count flow steps: %w", err)
	}
	return count, nil
}

// Replace swaps the company's flow configuration wholesale inside a
// transaction. Steps are assumed validated (dense 1..N) by the caller.
func (r *ApprovalFlowRepository) Replace(ctx context.Context, companyID string, steps []models.ApprovalFlowStep) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin flow replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM approval_flow_steps WHERE company_id = $1`, companyID); err != nil {
		return fmt.Errorf("clear flow steps: %w", err)
	}

	now := time.Now().UTC()
	const insert = `INSERT INTO approval_flow_steps (id, company_id, step_number, role, approver_id, created_at, updated_at)
	VALUES (:id, :company_id, :step_number, :role, :approver_id, :created_at, :updated_at)`
	for i := range steps {
		step := &steps[i]
		if step.ID == "" {
			step.ID = uuid.NewString()
		}
		step.CompanyID = companyID
		step.CreatedAt = now
		step.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, insert, step); err != nil {
			return fmt.Errorf("insert flow step %d: %w", step.StepNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit flow replace: %w", err)
	}
	return nil
}
