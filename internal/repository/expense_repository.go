package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rivashah/expense-management-api/internal/models"
)

const expenseColumns = `id, company_id, submitter_id, description, category, amount, currency, converted_amount, status, expense_date, receipt_file, created_at, updated_at`

// ExpenseRepository persists expense records.
type ExpenseRepository struct {
	db *sqlx.DB
}

// NewExpenseRepository constructs the repository.
func NewExpenseRepository(db *sqlx.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

// Create inserts a new expense row.
func (r *ExpenseRepository) Create(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.NewString()
	}
	if expense.Status == "" {
		expense.Status = models.ExpenseStatusPending
	}
	now := time.Now().UTC()
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = now
	}
	expense.UpdatedAt = now
	expense.Currency = strings.ToUpper(expense.Currency)

	const query = `INSERT INTO expenses
	(id, company_id, submitter_id, description, category, amount, currency, converted_amount, status, expense_date, receipt_file, created_at, updated_at)
	VALUES (:id, :company_id, :submitter_id, :description, :category, :amount, :currency, :converted_amount, :status, :expense_date, :receipt_file, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, expense); err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	return nil
}

// GetByID fetches an expense by identifier.
func (r *ExpenseRepository) GetByID(ctx context.Context, id string) (*models.Expense, error) {
	query := fmt.Sprintf(`SELECT %s FROM expenses WHERE id = $1 LIMIT 1`, expenseColumns)
	var expense models.Expense
	if err := r.db.GetContext(ctx, &expense, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find expense by id: %w", err)
	}
	return &expense, nil
}

// List returns expenses matching the filter (latest first) with total count.
func (r *ExpenseRepository) List(ctx context.Context, filter models.ExpenseFilter) ([]models.Expense, int, error) {
	baseQuery := `FROM expenses WHERE company_id = $1`
	args := []interface{}{filter.CompanyID}
	var conditions []string

	if len(filter.SubmitterIDs) > 0 {
		placeholders := make([]string, len(filter.SubmitterIDs))
		for i, id := range filter.SubmitterIDs {
			args = append(args, id)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("submitter_id IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("expense_date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("expense_date <= $%d", len(args)))
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", expenseColumns, baseQuery, pageSize, offset)

	var expenses []models.Expense
	if err := r.db.SelectContext(ctx, &expenses, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list expenses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count expenses: %w", err)
	}

	return expenses, total, nil
}

// AttachReceipt records the stored receipt file name.
func (r *ExpenseRepository) AttachReceipt(ctx context.Context, id, fileName string) error {
	const query = `UPDATE expenses SET receipt_file = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, fileName, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("attach receipt: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check receipt update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// StatusSummaryRow aggregates count and amount per status.
type StatusSummaryRow struct {
	Status models.ExpenseStatus `db:"status"`
	Count  int                  `db:"count"`
	Total  float64              `db:"total"`
}

// SummaryByStatus returns per-status counts and converted-amount totals
// for a company.
func (r *ExpenseRepository) SummaryByStatus(ctx context.Context, companyID string) ([]StatusSummaryRow, error) {
	const query = `SELECT status, COUNT(*) AS count, COALESCE(SUM(converted_amount), 0) AS total
	FROM expenses WHERE company_id = $1 GROUP BY status`
	var rows []StatusSummaryRow
	if err := r.db.SelectContext(ctx, &rows, query, companyID); err != nil {
		return nil, fmt.Errorf("summarize expenses: %w", err)
	}
	return rows, nil
}
