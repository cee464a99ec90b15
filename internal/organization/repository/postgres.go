package repository

import (
	"context"
	"database/sql"
	"errors"

	"insiderwatch/backend/internal/organization/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an organization repository backed by conn.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the organization for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	var o domain.Organization
	err := r.db.QueryRowContext(ctx,
		`SELECT organization_id::text, name, email_domain, created_at FROM organizations WHERE organization_id::text = $1`, id).
		Scan(&o.ID, &o.Name, &o.EmailDomain, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// List returns every organization ordered by name.
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.Organization, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT organization_id::text, name, email_domain, created_at FROM organizations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.Organization, 0)
	for rows.Next() {
		var o domain.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.EmailDomain, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

// SecurityManagerEmails returns the addresses of managers of orgID that are not soft-deleted.
func (r *PostgresRepository) SecurityManagerEmails(ctx context.Context, orgID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT email FROM security_managers
		WHERE organization_id::text = $1 AND deleted_at IS NULL
		ORDER BY email`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		out = append(out, email)
	}
	return out, rows.Err()
}
