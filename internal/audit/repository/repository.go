package repository

import (
	"context"

	"insiderwatch/backend/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	// ListByOrg returns the audit logs of orgID matching f, newest first.
	ListByOrg(ctx context.Context, orgID string, f domain.Filter) ([]*domain.AuditLog, error)
	Create(ctx context.Context, a *domain.AuditLog) error
}
