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

func TestExpenseRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewExpenseRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO expenses")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	expense := &models.Expense{
		CompanyID:       "co-1",
		SubmitterID:     "emp-1",
		Description:     "flight to client site",
		Category:        "travel",
		Amount:          850,
		Currency:        "usd",
		ConvertedAmount: 850,
		ExpenseDate:     time.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), expense))
	require.NotEmpty(t, expense.ID)
	require.Equal(t, models.ExpenseStatusPending, expense.Status)
	require.Equal(t, "USD", expense.Currency)

	rows := sqlmock.NewRows([]string{"id", "company_id", "submitter_id", "description", "category", "amount", "currency", "converted_amount", "status", "expense_date", "receipt_file", "created_at", "updated_at"}).
		AddRow(expense.ID, "co-1", "emp-1", "flight to client site", "travel", 850.0, "USD", 850.0, "PENDING", time.Now(), nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, company_id, submitter_id")).
		WithArgs(expense.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), expense.ID)
	require.NoError(t, err)
	require.Equal(t, expense.ID, found.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewExpenseRepository(db)
	rows := sqlmock.NewRows([]string{"id", "company_id", "submitter_id", "description", "category", "amount", "currency", "converted_amount", "status", "expense_date", "receipt_file", "created_at", "updated_at"}).
		AddRow("exp-1", "co-1", "emp-1", "team lunch", "meals", 40.0, "EUR", 43.5, "PENDING", time.Now(), nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, company_id, submitter_id")).
		WithArgs("co-1", "emp-1", "PENDING").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("co-1", "emp-1", "PENDING").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.ExpenseFilter{
		CompanyID:    "co-1",
		SubmitterIDs: []string{"emp-1"},
		Status:       []models.ExpenseStatus{models.ExpenseStatusPending},
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseRepositorySummaryByStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewExpenseRepository(db)
	rows := sqlmock.NewRows([]string{"status", "count", "total"}).
		AddRow("PENDING", 2, 930.0).
		AddRow("APPROVED", 5, 1250.5)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count")).
		WithArgs("co-1").
		WillReturnRows(rows)

	summary, err := repo.SummaryByStatus(context.Background(), "co-1")
	require.NoError(t, err)
	require.Len(t, summary, 2)
	require.Equal(t, models.ExpenseStatusPending, summary[0].Status)
	require.InDelta(t, 1250.5, summary[1].Total, 0.001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseRepositoryAttachReceiptMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewExpenseRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE expenses SET receipt_file = $2")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AttachReceipt(context.Background(), "missing", "receipt.pdf")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
