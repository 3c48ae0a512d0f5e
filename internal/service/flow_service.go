package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rivashah/expense-management-api/internal/dto"
	"github.com/rivashah/expense-management-api/internal/models"
	appErrors "github.com/rivashah/expense-management-api/pkg/errors"
)

type flowStore interface {
	ListByCompany(ctx context.Context, companyID string) ([]models.ApprovalFlowStep, error)
	Replace(ctx context.Context, companyID string, steps []models.ApprovalFlowStep) error
}

type flowUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// FlowService manages a company's ordered approval sequence.
type FlowService struct {
	flows     flowStore
	users     flowUserStore
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFlowService constructs the approval flow use cases.
func NewFlowService(flows flowStore, users flowUserStore, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *FlowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &FlowService{flows: flows, users: users, audit: audit, validator: validate, logger: logger}
}

// Get returns the company's configured steps in order.
func (s *FlowService) Get(ctx context.Context, claims *models.JWTClaims) ([]models.ApprovalFlowStep, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	steps, err := s.flows.ListByCompany(ctx, claims.CompanyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval flow")
	}
	return steps, nil
}

// Replace swaps the company's whole flow for the given steps. Steps
// must form a dense 1..N sequence; non-manager roles need an existing
// approver from the same company. Replacement does not touch decisions
// already recorded on in-flight expenses.
func (s *FlowService) Replace(ctx context.Context, claims *models.JWTClaims, req dto.ReplaceFlowRequest) ([]models.ApprovalFlowStep, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid approval flow payload")
	}
	if len(req.Steps) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "approval flow needs at least one step")
	}

	inputs := make([]dto.FlowStepInput, len(req.Steps))
	copy(inputs, req.Steps)
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].StepNumber < inputs[j].StepNumber })

	steps := make([]models.ApprovalFlowStep, 0, len(inputs))
	for i, input := range inputs {
		if input.StepNumber != i+1 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "step numbers must form a dense sequence starting at 1")
		}

		if !input.Role.Known() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown approval role %q", input.Role))
		}

		step := models.ApprovalFlowStep{
			ID:         uuid.NewString(),
			CompanyID:  claims.CompanyID,
			StepNumber: input.StepNumber,
			Role:       input.Role,
		}

		if input.Role.Dynamic() {
			if input.ApproverID != nil && *input.ApproverID != "" {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("step %d resolves dynamically and cannot name an approver", input.StepNumber))
			}
		} else {
			if input.ApproverID == nil || *input.ApproverID == "" {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("step %d requires a fixed approver", input.StepNumber))
			}
			approver, err := s.users.FindByID(ctx, *input.ApproverID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("approver for step %d does not exist", input.StepNumber))
				}
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approver")
			}
			if approver.CompanyID != claims.CompanyID {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("approver for step %d belongs to another company", input.StepNumber))
			}
			approverID := *input.ApproverID
			step.ApproverID = &approverID
		}

		steps = append(steps, step)
	}

	if err := s.flows.Replace(ctx, claims.CompanyID, steps); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace approval flow")
	}

	payload, _ := json.Marshal(map[string]interface{}{"steps": len(steps)})
	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &claims.UserID,
			Action:     models.AuditActionFlowReplace,
			Resource:   "approval_flow",
			ResourceID: &claims.CompanyID,
			NewValues:  payload,
			IPAddress:  "system",
			UserAgent:  "flow-service",
		}); err != nil {
			s.logger.Warn("failed to persist audit log", zap.Error(err))
		}
	}

	s.logger.Info("approval flow replaced",
		zap.String("company_id", claims.CompanyID),
		zap.Int("steps", len(steps)),
	)
	return steps, nil
}
