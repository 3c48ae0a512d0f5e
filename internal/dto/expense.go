package dto

import (
	"time"

	"github.com/rivashah/expense-management-api/internal/models"
)

// SubmitExpenseRequest payload for submitting a new expense.
type SubmitExpenseRequest struct {
	Description string  `json:"description" validate:"required"`
	Category    string  `json:"category" validate:"required"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Currency    string  `json:"currency" validate:"required,len=3"`
	ExpenseDate string  `json:"expense_date" validate:"required"`
}

// ExpenseQuery mirrors supported listing filters.
type ExpenseQuery struct {
	Status   []models.ExpenseStatus
	Category string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// ExpenseDetail combines an expense with its approval trail.
type ExpenseDetail struct {
	Expense      models.Expense          `json:"expense"`
	Approvals    []models.ApprovalRecord `json:"approvals"`
	NextApprover *models.NextApprover    `json:"next_approver,omitempty"`
}

// SubmitExpenseResponse returns the created expense and the first
// approver that must act on it.
type SubmitExpenseResponse struct {
	Expense      models.Expense       `json:"expense"`
	NextApprover *models.NextApprover `json:"next_approver,omitempty"`
}
