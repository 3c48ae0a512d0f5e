package models

import "time"

// ApprovalRole tags a flow step with the role expected to act on it.
// RoleStepManager resolves dynamically to the submitter's assigned
// manager; the other roles point at a fixed approver configured on
// the step itself.
type ApprovalRole string

const (
	ApprovalRoleManager  ApprovalRole = "MANAGER"
	ApprovalRoleFinance  ApprovalRole = "FINANCE"
	ApprovalRoleDirector ApprovalRole = "DIRECTOR"
	ApprovalRoleAdmin    ApprovalRole = "ADMIN"
)

// Dynamic reports whether the role resolves at runtime instead of
// using the step's fixed approver.
func (r ApprovalRole) Dynamic() bool {
	return r == ApprovalRoleManager
}

// Known reports whether the role is one of the supported tags.
func (r ApprovalRole) Known() bool {
	switch r {
	case ApprovalRoleManager, ApprovalRoleFinance, ApprovalRoleDirector, ApprovalRoleAdmin:
		return true
	}
	return false
}

// DecisionStatus is the per-step outcome recorded on an approval
// record. It shares Approved/Rejected with ExpenseStatus but is a
// distinct axis: a Pending record means "this step is awaited", not
// "the expense is unprocessed".
type DecisionStatus string

const (
	DecisionPending  DecisionStatus = "PENDING"
	DecisionApproved DecisionStatus = "APPROVED"
	DecisionRejected DecisionStatus = "REJECTED"
)

// ApprovalFlowStep is one position in a company's ordered approval
// sequence. Step numbers form a dense sequence 1..N per company.
type ApprovalFlowStep struct {
	ID         string       `db:"id" json:"id"`
	CompanyID  string       `db:"company_id" json:"company_id"`
	StepNumber int          `db:"step_number" json:"step_number"`
	Role       ApprovalRole `db:"role" json:"role"`
	ApproverID *string      `db:"approver_id" json:"approver_id,omitempty"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at" json:"updated_at"`
}

// ApprovalRecord is the per-(expense, step) ledger entry capturing who
// decided, what they decided, and when. Unique on (expense_id, step_number).
type ApprovalRecord struct {
	ID         string         `db:"id" json:"id"`
	ExpenseID  string         `db:"expense_id" json:"expense_id"`
	StepNumber int            `db:"step_number" json:"step_number"`
	ApproverID string         `db:"approver_id" json:"approver_id"`
	Role       ApprovalRole   `db:"role" json:"role"`
	Status     DecisionStatus `db:"status" json:"status"`
	Comment    *string        `db:"comment" json:"comment,omitempty"`
	DecidedAt  time.Time      `db:"decided_at" json:"decided_at"`
}

// NextApprover is the resolver's answer: the step awaiting action and
// the identity that must act on it. A nil NextApprover from the
// resolver means the workflow has terminated.
type NextApprover struct {
	StepNumber   int          `json:"step_number"`
	Role         ApprovalRole `json:"role"`
	ApproverID   string       `json:"approver_id"`
	ApproverName string       `json:"approver_name"`
	ApproverMail string       `json:"approver_email"`
}
