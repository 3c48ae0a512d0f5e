package dto

import "github.com/rivashah/expense-management-api/internal/models"

// DecisionRequest payload for recording an approval decision.
// Decision must be APPROVED or REJECTED; the acting user comes from
// the authenticated session, never from the payload.
type DecisionRequest struct {
	Decision models.DecisionStatus `json:"decision" validate:"required"`
	Comment  string                `json:"comment"`
}

// DecisionResponse returns the persisted record, the expense's
// resulting status, and whether the fast-track rule fired.
type DecisionResponse struct {
	Record        models.ApprovalRecord `json:"record"`
	ExpenseStatus models.ExpenseStatus  `json:"expense_status"`
	FastTracked   bool                  `json:"fast_tracked"`
}

// PendingApprovalItem is one expense waiting on the caller.
type PendingApprovalItem struct {
	Expense    models.Expense      `json:"expense"`
	StepNumber int                 `json:"step_number"`
	Role       models.ApprovalRole `json:"role"`
}
