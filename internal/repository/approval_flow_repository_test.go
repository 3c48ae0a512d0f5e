package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/rivashah/expense-management-api/internal/models"
)

func TestApprovalFlowRepositoryListByCompany(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApprovalFlowRepository(db)
	rows := sqlmock.NewRows([]string{"id", "company_id", "step_number", "role", "approver_id", "created_at", "updated_at"}).
		AddRow("step-1", "co-1", 1, "MANAGER", nil, time.Now(), time.Now()).
		AddRow("step-2", "co-1", 2, "FINANCE", "fin-1", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, company_id, step_number")).
		WithArgs("co-1").
		WillReturnRows(rows)

	steps, err := repo.ListByCompany(context.Background(), "co-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, models.ApprovalRoleManager, steps[0].Role)
	require.NotNil(t, steps[1].ApproverID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalFlowRepositoryReplace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApprovalFlowRepository(db)
	approver := "fin-1"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM approval_flow_steps")).
		WithArgs("co-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approval_flow_steps")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approval_flow_steps")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Replace(context.Background(), "co-1", []models.ApprovalFlowStep{
		{StepNumber: 1, Role: models.ApprovalRoleManager},
		{StepNumber: 2, Role: models.ApprovalRoleFinance, ApproverID: &approver},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
