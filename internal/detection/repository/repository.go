package repository

import (
	"context"
	"time"

	"insiderwatch/backend/internal/detection/domain"
)

// Repository defines persistence for detection history.
type Repository interface {
	// GetByPeriod returns the history for the exact window, or nil if none.
	GetByPeriod(ctx context.Context, orgID string, start, end time.Time) (*domain.History, error)
	// Create stores h. A concurrent run that already stored the same window wins; Create then succeeds
	// without writing.
	Create(ctx context.Context, h *domain.History) error
	// ListByOrg returns the most recent histories of orgID, newest run first.
	ListByOrg(ctx context.Context, orgID string, limit int) ([]*domain.History, error)
}
