package repository

import (
	"context"

	"insiderwatch/backend/internal/blocking/domain"
)

// Repository defines persistence for blocking records.
type Repository interface {
	// Create appends r and sets r.ID.
	Create(ctx context.Context, r *domain.BlockingRecord) error
	// ListByOrg returns the most recent records of orgID, newest block first.
	ListByOrg(ctx context.Context, orgID string, limit int) ([]*domain.BlockingRecord, error)
}
