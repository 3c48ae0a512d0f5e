package service

import (
	"context"

	"github.com/rivashah/expense-management-api/internal/models"
)

// auditLogger is the write side of the audit trail, shared by the
// services that emit audit entries.
type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
