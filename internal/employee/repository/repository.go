package repository

import (
	"context"

	"insiderwatch/backend/internal/employee/domain"
)

// Repository defines persistence for employees and their anomaly flags.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Employee, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.Employee, error)
	ListFlagged(ctx context.Context, orgID string) ([]*domain.Employee, error)
	// SetAnomalyFlags writes flag values for the given employee ids of orgID in one transaction.
	SetAnomalyFlags(ctx context.Context, orgID string, flags map[string]bool) error
}
