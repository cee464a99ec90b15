package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"insiderwatch/backend/internal/gateway/domain"
)

const selectGateway = `SELECT router_id, organization_id::text, control_ip, state, connected_mac_addresses FROM routers`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a gateway repository backed by conn.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// FindByConnectedMAC returns the first gateway (lowest id) serving mac, or nil if none.
func (r *PostgresRepository) FindByConnectedMAC(ctx context.Context, mac string) (*domain.Gateway, error) {
	row := r.db.QueryRowContext(ctx, selectGateway+`
		WHERE EXISTS (
			SELECT 1 FROM jsonb_array_elements_text(connected_mac_addresses) AS m
			WHERE lower(m) = lower($1)
		)
		ORDER BY router_id
		LIMIT 1`, mac)
	g, err := scanGateway(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

// ListByOrg returns the gateways of orgID.
func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Gateway, error) {
	rows, err := r.db.QueryContext(ctx, selectGateway+` WHERE organization_id = $1 ORDER BY router_id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.Gateway, 0)
	for rows.Next() {
		g, err := scanGateway(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGateway(s scanner) (*domain.Gateway, error) {
	var (
		g    domain.Gateway
		macs []byte
	)
	if err := s.Scan(&g.ID, &g.OrganizationID, &g.ControlIP, &g.State, &macs); err != nil {
		return nil, err
	}
	if len(macs) > 0 {
		if err := json.Unmarshal(macs, &g.ConnectedMACs); err != nil {
			return nil, err
		}
	}
	return &g, nil
}
