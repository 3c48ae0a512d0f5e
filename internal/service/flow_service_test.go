package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rivashah/expense-management-api/internal/dto"
	"github.com/rivashah/expense-management-api/internal/models"
	appErrors "github.com/rivashah/expense-management-api/pkg/errors"
)

type memFlowStore struct {
	steps    []models.ApprovalFlowStep
	replaced []models.ApprovalFlowStep
}

func (m *memFlowStore) ListByCompany(_ context.Context, companyID string) ([]models.ApprovalFlowStep, error) {
	var out []models.ApprovalFlowStep
	for _, step := range m.steps {
		if step.CompanyID == companyID {
			out = append(out, step)
		}
	}
	return out, nil
}

func (m *memFlowStore) Replace(_ context.Context, companyID string, steps []models.ApprovalFlowStep) error {
	m.replaced = steps
	return nil
}

func newFlowFixture(t *testing.T) (*FlowService, *memFlowStore, *memUserStore) {
	t.Helper()
	flows := &memFlowStore{}
	users := &memUserStore{users: map[string]*models.User{
		"fin-1": {ID: "fin-1", CompanyID: "co-1", Role: models.RoleFinance},
		"out-1": {ID: "out-1", CompanyID: "co-2", Role: models.RoleFinance},
	}}
	svc := NewFlowService(flows, users, &stubAuditStore{}, validator.New(), zap.NewNop())
	return svc, flows, users
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "adm-1", CompanyID: "co-1", Role: models.RoleAdmin}
}

func TestFlowReplaceValid(t *testing.T) {
	svc, flows, _ := newFlowFixture(t)

	steps, err := svc.Replace(context.Background(), adminClaims(), dto.ReplaceFlowRequest{Steps: []dto.FlowStepInput{
		{StepNumber: 2, Role: models.ApprovalRoleFinance, ApproverID: strPtr("fin-1")},
		{StepNumber: 1, Role: models.ApprovalRoleManager},
	}})
	require.NoError(t, err)
	require.Len(t, steps, 2)
	// Sorted into order regardless of payload order.
	assert.Equal(t, 1, steps[0].StepNumber)
	assert.Equal(t, models.ApprovalRoleManager, steps[0].Role)
	assert.Nil(t, steps[0].ApproverID)
	assert.Equal(t, 2, steps[1].StepNumber)
	require.NotNil(t, steps[1].ApproverID)
	assert.Equal(t, "fin-1", *steps[1].ApproverID)
	assert.Len(t, flows.replaced, 2)
}

func TestFlowReplaceSparseSequence(t *testing.T) {
	svc, _, _ := newFlowFixture(t)

	_, err := svc.Replace(context.Background(), adminClaims(), dto.ReplaceFlowRequest{Steps: []dto.FlowStepInput{
		{StepNumber: 1, Role: models.ApprovalRoleManager},
		{StepNumber: 3, Role: models.ApprovalRoleFinance, ApproverID: strPtr("fin-1")},
	}})
	requireCode(t, err, appErrors.ErrValidation.Code)
}

func TestFlowReplaceUnknownRole(t *testing.T) {
	svc, _, _ := newFlowFixture(t)

	_, err := svc.Replace(context.Background(), adminClaims(), dto.ReplaceFlowRequest{Steps: []dto.FlowStepInput{
		{StepNumber: 1, Role: "INTERN"},
	}})
	requireCode(t, err, appErrors.ErrValidation.Code)
}

func TestFlowReplaceFixedStepNeedsApprover(t *testing.T) {
	svc, _, _ := newFlowFixture(t)

	_, err := svc.Replace(context.Background(), adminClaims(), dto.ReplaceFlowRequest{Steps: []dto.FlowStepInput{
		{StepNumber: 1, Role: models.ApprovalRoleFinance},
	}})
	requireCode(t, err, appErrors.ErrValidation.Code)
}

func TestFlowReplaceApproverFromOtherCompany(t *testing.T) {
	svc, _, _ := newFlowFixture(t)

	_, err := svc.Replace(context.Background(), adminClaims(), dto.ReplaceFlowRequest{Steps: []dto.FlowStepInput{
		{StepNumber: 1, Role: models.ApprovalRoleFinance, ApproverID: strPtr("out-1")},
	}})
	requireCode(t, err, appErrors.ErrValidation.Code)
}

func TestFlowReplaceDynamicStepRejectsApprover(t *testing.T) {
	svc, _, _ := newFlowFixture(t)

	_, err := svc.Replace(context.Background(), adminClaims(), dto.ReplaceFlowRequest{Steps: []dto.FlowStepInput{
		{StepNumber: 1, Role: models.ApprovalRoleManager, ApproverID: strPtr("fin-1")},
	}})
	requireCode(t, err, appErrors.ErrValidation.Code)
}

func TestFlowGetScopedToCompany(t *testing.T) {
	svc, flows, _ := newFlowFixture(t)
	flows.steps = []models.ApprovalFlowStep{
		{ID: "s1", CompanyID: "co-1", StepNumber: 1, Role: models.ApprovalRoleManager},
		{ID: "s2", CompanyID: "co-2", StepNumber: 1, Role: models.ApprovalRoleFinance},
	}

	steps, err := svc.Get(context.Background(), adminClaims())
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "s1", steps[0].ID)
}
