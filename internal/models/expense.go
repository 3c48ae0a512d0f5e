package models

import "time"

// ExpenseStatus captures the expense lifecycle. Pending is the only
// initial state; Approved and Rejected are terminal.
type ExpenseStatus string

const (
	ExpenseStatusPending  ExpenseStatus = "PENDING"
	ExpenseStatusApproved ExpenseStatus = "APPROVED"
	ExpenseStatusRejected ExpenseStatus = "REJECTED"
)

// Expense is the subject routed through the approval workflow.
// ConvertedAmount holds the amount normalized into the company's
// default currency at submission time.
type Expense struct {
	ID              string        `db:"id" json:"id"`
	CompanyID       string        `db:"company_id" json:"company_id"`
	SubmitterID     string        `db:"submitter_id" json:"submitter_id"`
	Description     string        `db:"description" json:"description"`
	Category        string        `db:"category" json:"category"`
	Amount          float64       `db:"amount" json:"amount"`
	Currency        string        `db:"currency" json:"currency"`
	ConvertedAmount float64       `db:"converted_amount" json:"converted_amount"`
	Status          ExpenseStatus `db:"status" json:"status"`
	ExpenseDate     time.Time     `db:"expense_date" json:"expense_date"`
	ReceiptFile     *string       `db:"receipt_file" json:"receipt_file,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// ExpenseFilter constrains expense listing queries.
type ExpenseFilter struct {
	CompanyID    string
	SubmitterIDs []string
	Status       []ExpenseStatus
	Category     string
	From         *time.Time
	To           *time.Time
	Page         int
	PageSize     int
}
