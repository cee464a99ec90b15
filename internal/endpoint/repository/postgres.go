package repository

import (
	"context"
	"database/sql"
	"errors"

	"insiderwatch/backend/internal/endpoint/domain"
)

const selectEndpoint = `
	SELECT pc_id, organization_id::text, COALESCE(ip_address, ''), COALESCE(mac_address, ''),
		access_flag, COALESCE(present_user_id, ''), current_state
	FROM pcs`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an endpoint repository backed by conn.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the endpoint for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Endpoint, error) {
	e, err := scanEndpoint(r.db.QueryRowContext(ctx, selectEndpoint+` WHERE pc_id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// ListByOrg returns the endpoints of orgID ordered by id.
func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Endpoint, error) {
	rows, err := r.db.QueryContext(ctx, selectEndpoint+` WHERE organization_id = $1 ORDER BY pc_id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.Endpoint, 0)
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpdatePresence(ctx context.Context, id string, state domain.PresenceState, presentUserID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE pcs SET current_state = $1, present_user_id = $2 WHERE pc_id = $3`,
		string(state), sql.NullString{String: presentUserID, Valid: presentUserID != ""}, id)
	return affected(res, err)
}

func (r *PostgresRepository) SetAccessFlag(ctx context.Context, id string, allow bool) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE pcs SET access_flag = $1 WHERE pc_id = $2`, allow, id)
	return affected(res, err)
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEndpoint(s scanner) (*domain.Endpoint, error) {
	var (
		e     domain.Endpoint
		state string
	)
	if err := s.Scan(&e.ID, &e.OrganizationID, &e.IPAddress, &e.MACAddress, &e.AccessFlag, &e.PresentUserID, &state); err != nil {
		return nil, err
	}
	e.State = domain.PresenceState(state)
	return &e, nil
}
