package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rivashah/expense-management-api/internal/dto"
	"github.com/rivashah/expense-management-api/internal/models"
	"github.com/rivashah/expense-management-api/internal/repository"
	appErrors "github.com/rivashah/expense-management-api/pkg/errors"
)

type summaryProvider interface {
	SummaryByStatus(ctx context.Context, companyID string) ([]repository.StatusSummaryRow, error)
}

type dashboardCompanyStore interface {
	GetByID(ctx context.Context, id string) (*models.Company, error)
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// DashboardService aggregates company-wide expense counts and totals.
type DashboardService struct {
	summaries summaryProvider
	companies dashboardCompanyStore
	cache     summaryCache
	ttl       time.Duration
	logger    *zap.Logger
}

// NewDashboardService constructs the dashboard aggregator.
func NewDashboardService(summaries summaryProvider, companies dashboardCompanyStore, cache summaryCache, ttl time.Duration, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &DashboardService{summaries: summaries, companies: companies, cache: cache, ttl: ttl, logger: logger}
}

// Summary returns per-status counts and converted totals for the
// caller's company, cached briefly since the dashboard is hit far more
// often than decisions land.
func (s *DashboardService) Summary(ctx context.Context, claims *models.JWTClaims) (*dto.DashboardSummary, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}

	key := "dashboard:summary:" + claims.CompanyID
	if s.cache != nil {
		var cached dto.DashboardSummary
		if err := s.cache.Get(ctx, key, &cached); err == nil && cached.Currency != "" {
			return &cached, nil
		}
	}

	company, err := s.companies.GetByID(ctx, claims.CompanyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load company")
	}

	rows, err := s.summaries.SummaryByStatus(ctx, claims.CompanyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate expenses")
	}

	summary := &dto.DashboardSummary{Currency: company.DefaultCurrency}
	for _, row := range rows {
		switch row.Status {
		case models.ExpenseStatusPending:
			summary.PendingCount = row.Count
			summary.PendingAmount = row.Total
		case models.ExpenseStatusApproved:
			summary.ApprovedCount = row.Count
			summary.ApprovedAmount = row.Total
		case models.ExpenseStatusRejected:
			summary.RejectedCount = row.Count
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary, s.ttl); err != nil {
			s.logger.Warn("failed to cache dashboard summary", zap.Error(err))
		}
	}
	return summary, nil
}
