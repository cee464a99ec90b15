package repository

import (
	"context"

	"insiderwatch/backend/internal/gateway/domain"
)

// Repository defines lookups of gateways.
type Repository interface {
	// FindByConnectedMAC returns the gateway whose connected MAC list contains mac (case-insensitive),
	// or nil if none.
	FindByConnectedMAC(ctx context.Context, mac string) (*domain.Gateway, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.Gateway, error)
}
