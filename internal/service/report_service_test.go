package service

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rivashah/expense-management-api/internal/dto"
	"github.com/rivashah/expense-management-api/internal/models"
	appErrors "github.com/rivashah/expense-management-api/pkg/errors"
	"github.com/rivashah/expense-management-api/pkg/jobs"
	"github.com/rivashah/expense-management-api/pkg/storage"
)

type memReportStore struct {
	jobs map[string]*models.ReportJob
}

func (m *memReportStore) Create(_ context.Context, job *models.ReportJob) error {
	if m.jobs == nil {
		m.jobs = make(map[string]*models.ReportJob)
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *memReportStore) GetByID(_ context.Context, id string) (*models.ReportJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *job
	return &clone, nil
}

func (m *memReportStore) MarkProcessing(_ context.Context, id string) error {
	m.jobs[id].Status = models.ReportStatusProcessing
	return nil
}

func (m *memReportStore) MarkFinished(_ context.Context, id, resultFile string, finishedAt time.Time) error {
	job := m.jobs[id]
	job.Status = models.ReportStatusFinished
	job.ResultFile = &resultFile
	job.FinishedAt = &finishedAt
	return nil
}

func (m *memReportStore) MarkFailed(_ context.Context, id, message string, finishedAt time.Time) error {
	job := m.jobs[id]
	job.Status = models.ReportStatusFailed
	job.ErrorMessage = &message
	job.FinishedAt = &finishedAt
	return nil
}

type memDispatcher struct {
	enqueued []jobs.Job
	err      error
}

func (m *memDispatcher) Enqueue(job jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

func newReportFixture(t *testing.T) (*ReportService, *memReportStore, *memDispatcher, *memExpenseStore) {
	t.Helper()

	store := &memReportStore{jobs: map[string]*models.ReportJob{}}
	dispatcher := &memDispatcher{}
	expenses := &memExpenseStore{expenses: map[string]*models.Expense{
		"exp-1": {ID: "exp-1", CompanyID: "co-1", SubmitterID: "emp-1", Description: "Taxi", Category: "Travel", Amount: 25, Currency: "USD", ConvertedAmount: 25, Status: models.ExpenseStatusApproved, ExpenseDate: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)},
	}}

	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)

	svc := NewReportService(store, expenses, dispatcher, files, signer, nil, validator.New(), zap.NewNop(), ReportServiceConfig{ResultTTL: time.Hour})
	return svc, store, dispatcher, expenses
}

func TestReportCreateJobEnqueues(t *testing.T) {
	svc, store, dispatcher, _ := newReportFixture(t)

	job, err := svc.CreateJob(context.Background(), adminClaims(), dto.CreateReportRequest{Format: models.ReportFormatCSV})
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusQueued, job.Status)
	assert.Equal(t, "co-1", job.CompanyID)
	require.Len(t, dispatcher.enqueued, 1)
	assert.Equal(t, job.ID, dispatcher.enqueued[0].ID)
	assert.Contains(t, store.jobs, job.ID)
}

func TestReportCreateJobUnsupportedFormat(t *testing.T) {
	svc, _, _, _ := newReportFixture(t)

	_, err := svc.CreateJob(context.Background(), adminClaims(), dto.CreateReportRequest{Format: "xlsx"})
	requireCode(t, err, appErrors.ErrValidation.Code)
}

func TestReportCreateJobEnqueueFailureMarksFailed(t *testing.T) {
	svc, store, dispatcher, _ := newReportFixture(t)
	dispatcher.err = assert.AnError

	_, err := svc.CreateJob(context.Background(), adminClaims(), dto.CreateReportRequest{Format: models.ReportFormatCSV})
	require.Error(t, err)
	require.Len(t, store.jobs, 1)
	for _, job := range store.jobs {
		assert.Equal(t, models.ReportStatusFailed, job.Status)
	}
}

func TestReportHandleRendersCSV(t *testing.T) {
	svc, store, _, _ := newReportFixture(t)
	job := &models.ReportJob{
		ID:        "job-1",
		CompanyID: "co-1",
		Params:    models.ReportJobParams{Format: models.ReportFormatCSV},
		Status:    models.ReportStatusQueued,
		CreatedBy: "adm-1",
	}
	require.NoError(t, store.Create(context.Background(), job))

	err := svc.Handle(context.Background(), jobs.Job{ID: "job-1", Type: "expense-report"})
	require.NoError(t, err)

	stored := store.jobs["job-1"]
	assert.Equal(t, models.ReportStatusFinished, stored.Status)
	require.NotNil(t, stored.ResultFile)

	file, err := svc.files.Open(*stored.ResultFile)
	require.NoError(t, err)
	defer file.Close()
	raw, err := os.ReadFile(file.Name())
	require.NoError(t, err)
	content := string(raw)
	assert.True(t, strings.HasPrefix(content, "ID,Submitter"))
	assert.Contains(t, content, "Taxi")
	assert.Equal(t, ".csv", filepath.Ext(*stored.ResultFile))
}

func TestReportDownloadFlow(t *testing.T) {
	svc, store, _, _ := newReportFixture(t)
	job := &models.ReportJob{
		ID:        "job-1",
		CompanyID: "co-1",
		Params:    models.ReportJobParams{Format: models.ReportFormatCSV},
		Status:    models.ReportStatusQueued,
		CreatedBy: "adm-1",
	}
	require.NoError(t, store.Create(context.Background(), job))
	require.NoError(t, svc.Handle(context.Background(), jobs.Job{ID: "job-1"}))

	view, err := svc.Get(context.Background(), adminClaims(), "job-1")
	require.NoError(t, err)
	require.NotNil(t, view.DownloadURL)
	token := (*view.DownloadURL)[strings.LastIndex(*view.DownloadURL, "/")+1:]

	download, err := svc.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, models.ReportFormatCSV, download.Format)

	_, err = svc.ResolveDownload(context.Background(), "bogus-token")
	requireCode(t, err, appErrors.ErrForbidden.Code)
}

func TestReportGetScopedToCompany(t *testing.T) {
	svc, store, _, _ := newReportFixture(t)
	store.jobs["job-9"] = &models.ReportJob{ID: "job-9", CompanyID: "co-2", Status: models.ReportStatusQueued}

	_, err := svc.Get(context.Background(), adminClaims(), "job-9")
	requireCode(t, err, appErrors.ErrNotFound.Code)
}
