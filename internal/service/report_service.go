package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rivashah/expense-management-api/internal/dto"
	"github.com/rivashah/expense-management-api/internal/models"
	appErrors "github.com/rivashah/expense-management-api/pkg/errors"
	"github.com/rivashah/expense-management-api/pkg/export"
	"github.com/rivashah/expense-management-api/pkg/jobs"
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkFinished(ctx context.Context, id, resultFile string, finishedAt time.Time) error
	MarkFailed(ctx context.Context, id, message string, finishedAt time.Time) error
}

type reportExpenseLister interface {
	List(ctx context.Context, filter models.ExpenseFilter) ([]models.Expense, int, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type reportFileStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type downloadSigner interface {
	Generate(jobID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error)
}

type reportObserver interface {
	ObserveReportGeneration(duration time.Duration)
}

// ReportServiceConfig governs result retention.
type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ReportService owns the async expense export pipeline: clients queue
// a job, workers render the file, and a signed URL gates the download.
type ReportService struct {
	repo      reportJobStore
	expenses  reportExpenseLister
	queue     jobDispatcher
	files     reportFileStore
	signer    downloadSigner
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	metrics   reportObserver
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ReportServiceConfig
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// NewReportService constructs the report pipeline.
func NewReportService(
	repo reportJobStore,
	expenses reportExpenseLister,
	queue jobDispatcher,
	files reportFileStore,
	signer downloadSigner,
	metrics reportObserver,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ReportServiceConfig,
) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ReportService{
		repo:      repo,
		expenses:  expenses,
		queue:     queue,
		files:     files,
		signer:    signer,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// SetQueue attaches the dispatcher after construction. The queue's
// handler is this service, so the two reference each other.
func (s *ReportService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// CreateJob persists a QUEUED job and hands it to the worker pool.
func (s *ReportService) CreateJob(ctx context.Context, claims *models.JWTClaims, req dto.CreateReportRequest) (*models.ReportJob, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report payload")
	}
	if req.Format != models.ReportFormatCSV && req.Format != models.ReportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "report workers are not running")
	}

	job := &models.ReportJob{
		ID:        uuid.NewString(),
		CompanyID: claims.CompanyID,
		Params:    models.ReportJobParams{Format: req.Format, Status: req.Status, From: req.From, To: req.To},
		Status:    models.ReportStatusQueued,
		CreatedBy: claims.UserID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "expense-report"}); err != nil {
		now := time.Now().UTC()
		if markErr := s.repo.MarkFailed(ctx, job.ID, "failed to enqueue job", now); markErr != nil {
			s.logger.Warn("failed to mark unenqueued job", zap.String("job_id", job.ID), zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	return job, nil
}

// Get returns job state, attaching a signed download URL once finished.
func (s *ReportService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*dto.ReportJobView, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.CompanyID != claims.CompanyID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
	}

	view := &dto.ReportJobView{Job: *job}
	if job.Status == models.ReportStatusFinished && job.ResultFile != nil {
		token, _, err := s.signer.Generate(job.ID, *job.ResultFile)
		if err != nil {
			s.logger.Warn("failed to sign download token", zap.String("job_id", job.ID), zap.Error(err))
		} else {
			url := "/api/v1/reports/download/" + token
			view.DownloadURL = &url
		}
	}
	return view, nil
}

// ResolveDownload validates a signed token and opens the export file.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	jobID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.Status != models.ReportStatusFinished || job.ResultFile == nil || *job.ResultFile != relPath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not ready")
	}

	file, err := s.files.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ReportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// Handle is the queue worker entry point: it renders the export and
// settles the job row. Returning an error lets the queue retry.
func (s *ReportService) Handle(ctx context.Context, job jobs.Job) error {
	started := time.Now()

	record, err := s.repo.GetByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", job.ID, err)
	}
	if err := s.repo.MarkProcessing(ctx, record.ID); err != nil {
		return fmt.Errorf("mark processing %s: %w", record.ID, err)
	}

	relPath, err := s.render(ctx, record)
	if err != nil {
		now := time.Now().UTC()
		if markErr := s.repo.MarkFailed(ctx, record.ID, err.Error(), now); markErr != nil {
			s.logger.Warn("failed to mark job failed", zap.String("job_id", record.ID), zap.Error(markErr))
		}
		return err
	}

	if err := s.repo.MarkFinished(ctx, record.ID, relPath, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark finished %s: %w", record.ID, err)
	}

	if s.metrics != nil {
		s.metrics.ObserveReportGeneration(time.Since(started))
	}
	s.logger.Info("report generated",
		zap.String("job_id", record.ID),
		zap.String("file", relPath),
		zap.Duration("took", time.Since(started)),
	)
	return nil
}

func (s *ReportService) render(ctx context.Context, job *models.ReportJob) (string, error) {
	expenses, _, err := s.expenses.List(ctx, models.ExpenseFilter{
		CompanyID: job.CompanyID,
		Status:    job.Params.Status,
		From:      job.Params.From,
		To:        job.Params.To,
		PageSize:  10000,
	})
	if err != nil {
		return "", fmt.Errorf("list expenses for report: %w", err)
	}

	dataset := export.Dataset{
		Headers: []string{"ID", "Submitter", "Description", "Category", "Amount", "Currency", "Converted", "Status", "Date"},
	}
	for _, expense := range expenses {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"ID":          expense.ID,
			"Submitter":   expense.SubmitterID,
			"Description": expense.Description,
			"Category":    expense.Category,
			"Amount":      fmt.Sprintf("%.2f", expense.Amount),
			"Currency":    expense.Currency,
			"Converted":   fmt.Sprintf("%.2f", expense.ConvertedAmount),
			"Status":      string(expense.Status),
			"Date":        expense.ExpenseDate.Format("2006-01-02"),
		})
	}

	var (
		payload   []byte
		renderErr error
	)
	switch job.Params.Format {
	case models.ReportFormatPDF:
		payload, renderErr = s.pdf.Render(dataset, "Expense Report")
	default:
		payload, renderErr = s.csv.Render(dataset)
	}
	if renderErr != nil {
		return "", fmt.Errorf("render %s report: %w", job.Params.Format, renderErr)
	}

	filename := fmt.Sprintf("%s-%s.%s", job.CompanyID, job.ID, job.Params.Format)
	relPath, err := s.files.Save(filename, payload)
	if err != nil {
		return "", fmt.Errorf("store report file: %w", err)
	}
	return relPath, nil
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.files.CleanupOlderThan(s.cfg.ResultTTL)
				if err != nil {
					s.logger.Warn("report cleanup failed", zap.Error(err))
					continue
				}
				if len(removed) > 0 {
					s.logger.Info("expired report files removed", zap.Int("count", len(removed)))
				}
			}
		}
	}()
}
