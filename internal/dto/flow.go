package dto

import "github.com/rivashah/expense-management-api/internal/models"

// FlowStepInput is one step in a flow replacement request.
type FlowStepInput struct {
	StepNumber int                 `json:"step_number" validate:"required,gt=0"`
	Role       models.ApprovalRole `json:"role" validate:"required"`
	ApproverID *string             `json:"approver_id,omitempty"`
}

// ReplaceFlowRequest swaps the company's approval flow wholesale.
// Steps must form a dense 1..N sequence.
type ReplaceFlowRequest struct {
	Steps []FlowStepInput `json:"steps" validate:"required,min=1,dive"`
}
