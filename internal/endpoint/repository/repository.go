package repository

import (
	"context"

	"insiderwatch/backend/internal/endpoint/domain"
)

// Repository defines persistence for endpoints (PCs).
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Endpoint, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.Endpoint, error)
	// UpdatePresence sets state and present user; presentUserID "" stores NULL.
	// Returns false when the endpoint does not exist.
	UpdatePresence(ctx context.Context, id string, state domain.PresenceState, presentUserID string) (bool, error)
	// SetAccessFlag stores the access flag. Returns false when the endpoint does not exist.
	SetAccessFlag(ctx context.Context, id string, allow bool) (bool, error)
}
