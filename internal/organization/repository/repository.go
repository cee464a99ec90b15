package repository

import (
	"context"

	"insiderwatch/backend/internal/organization/domain"
)

// Repository defines reads of organizations and their security managers.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Organization, error)
	List(ctx context.Context) ([]*domain.Organization, error)
	// SecurityManagerEmails returns the email of every active security manager of orgID.
	SecurityManagerEmails(ctx context.Context, orgID string) ([]string, error)
}
