package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/rivashah/expense-management-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestApprovalRecordRepositoryListByExpense(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApprovalRecordRepository(db)
	rows := sqlmock.NewRows([]string{"id", "expense_id", "step_number", "approver_id", "role", "status", "comment", "decided_at"}).
		AddRow("rec-1", "exp-1", 1, "mgr-1", "MANAGER", "APPROVED", nil, time.Now()).
		AddRow("rec-2", "exp-1", 2, "fin-1", "FINANCE", "PENDING", nil, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, expense_id, step_number")).
		WithArgs("exp-1").
		WillReturnRows(rows)

	records, err := repo.ListByExpense(context.Background(), "exp-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, 1, records[0].StepNumber)
	require.Equal(t, models.DecisionPending, records[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRecordRepositoryApplyDecisionRejection(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApprovalRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM expenses WHERE id = $1 FOR UPDATE")).
		WithArgs("exp-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PENDING"))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO approval_records")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("rec-1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE expenses SET status = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	record, status, err := repo.ApplyDecision(context.Background(), ApplyDecisionParams{
		ExpenseID:  "exp-1",
		StepNumber: 1,
		ApproverID: "mgr-1",
		Role:       models.ApprovalRoleManager,
		Decision:   models.DecisionRejected,
		TotalSteps: 3,
	})
	require.NoError(t, err)
	require.Equal(t, models.ExpenseStatusRejected, status)
	require.Equal(t, "rec-1", record.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRecordRepositoryApplyDecisionFullCoverage(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApprovalRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM expenses WHERE id = $1 FOR UPDATE")).
		WithArgs("exp-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PENDING"))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO approval_records")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("rec-3"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) AS total")).
		WithArgs("exp-1").
		WillReturnRows(sqlmock.NewRows([]string{"total", "approved"}).AddRow(3, 3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE expenses SET status = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, status, err := repo.ApplyDecision(context.Background(), ApplyDecisionParams{
		ExpenseID:  "exp-1",
		StepNumber: 3,
		ApproverID: "dir-1",
		Role:       models.ApprovalRoleDirector,
		Decision:   models.DecisionApproved,
		TotalSteps: 3,
	})
	require.NoError(t, err)
	require.Equal(t, models.ExpenseStatusApproved, status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRecordRepositoryApplyDecisionFastTrackMidFlow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApprovalRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM expenses WHERE id = $1 FOR UPDATE")).
		WithArgs("exp-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PENDING"))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO approval_records")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("rec-1"))
	mock.ExpectCommit()

	// Fast-tracked mid-flow approval leaves the expense pending and never
	// recounts coverage.
	_, status, err := repo.ApplyDecision(context.Background(), ApplyDecisionParams{
		ExpenseID:   "exp-1",
		StepNumber:  1,
		ApproverID:  "mgr-1",
		Role:        models.ApprovalRoleManager,
		Decision:    models.DecisionApproved,
		FastTracked: true,
		TotalSteps:  3,
	})
	require.NoError(t, err)
	require.Equal(t, models.ExpenseStatusPending, status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRecordRepositoryApplyDecisionFinalizedRace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApprovalRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM expenses WHERE id = $1 FOR UPDATE")).
		WithArgs("exp-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("REJECTED"))
	mock.ExpectRollback()

	_, _, err := repo.ApplyDecision(context.Background(), ApplyDecisionParams{
		ExpenseID:  "exp-1",
		StepNumber: 2,
		ApproverID: "fin-1",
		Role:       models.ApprovalRoleFinance,
		Decision:   models.DecisionApproved,
		TotalSteps: 3,
	})
	require.ErrorIs(t, err, ErrExpenseNotPending)
	require.NoError(t, mock.ExpectationsWereMet())
}
