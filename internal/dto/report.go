package dto

import (
	"time"

	"github.com/rivashah/expense-management-api/internal/models"
)

// CreateReportRequest enqueues an expense export job.
type CreateReportRequest struct {
	Format models.ReportFormat    `json:"format" validate:"required"`
	Status []models.ExpenseStatus `json:"status,omitempty"`
	From   *time.Time             `json:"from,omitempty"`
	To     *time.Time             `json:"to,omitempty"`
}

// ReportJobView is the API projection of a report job, including a
// signed download URL once the job finished.
type ReportJobView struct {
	Job         models.ReportJob `json:"job"`
	DownloadURL *string          `json:"download_url,omitempty"`
}
