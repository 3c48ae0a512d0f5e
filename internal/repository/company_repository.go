package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rivashah/expense-management-api/internal/models"
)

// CompanyRepository provides database access for tenant records.
type CompanyRepository struct {
	db *sqlx.DB
}

// NewCompanyRepository creates a new instance of CompanyRepository.
func NewCompanyRepository(db *sqlx.DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

// Create inserts a new company row.
func (r *CompanyRepository) Create(ctx context.Context, company *models.Company) error {
	if company.ID == "" {
		company.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if company.CreatedAt.IsZero() {
		company.CreatedAt = now
	}
	company.UpdatedAt = now
	company.DefaultCurrency = strings.ToUpper(company.DefaultCurrency)

	const query = `INSERT INTO companies (id, name, country, default_currency, created_at, updated_at)
	VALUES (:id, :name, :country, :default_currency, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, company); err != nil {
		return fmt.Errorf("create company: %w", err)
	}
	return nil
}

// GetByID fetches a company by identifier.
func (r *CompanyRepository) GetByID(ctx context.Context, id string) (*models.Company, error) {
	const query = `SELECT id, name, country, default_currency, created_at, updated_at FROM companies WHERE id = $1 LIMIT 1`
	var company models.Company
	if err := r.db.GetContext(ctx, &company, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find company by id: %w", err)
	}
	return &company, nil
}
