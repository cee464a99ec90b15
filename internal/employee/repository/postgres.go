package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"

	"insiderwatch/backend/internal/db"
	"insiderwatch/backend/internal/employee/domain"
)

const selectEmployee = `
	SELECT employee_id, organization_id::text, employee_name, email, role,
		COALESCE(supervisor_id, ''), COALESCE(assigned_pc_id, ''), shared_pc_ids, anomaly_flag
	FROM employees`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an employee repository backed by conn.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the employee for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Employee, error) {
	row := r.db.QueryRowContext(ctx, selectEmployee+` WHERE employee_id = $1`, id)
	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// ListByOrg returns every employee of orgID ordered by id.
func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Employee, error) {
	return r.list(ctx, selectEmployee+` WHERE organization_id = $1 ORDER BY employee_id`, orgID)
}

// ListFlagged returns the employees of orgID whose anomaly flag is set.
func (r *PostgresRepository) ListFlagged(ctx context.Context, orgID string) ([]*domain.Employee, error) {
	return r.list(ctx, selectEmployee+` WHERE organization_id = $1 AND anomaly_flag ORDER BY employee_id`, orgID)
}

// SetAnomalyFlags updates the flags in one transaction. Ids outside orgID are ignored.
func (r *PostgresRepository) SetAnomalyFlags(ctx context.Context, orgID string, flags map[string]bool) error {
	if len(flags) == 0 {
		return nil
	}
	ids := make([]string, 0, len(flags))
	for id := range flags {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE employees SET anomaly_flag = $1, updated_at = now()
			WHERE employee_id = $2 AND organization_id = $3`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, flags[id], id, orgID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Employee, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.Employee, 0)
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(s scanner) (*domain.Employee, error) {
	var (
		e      domain.Employee
		shared []byte
	)
	if err := s.Scan(&e.ID, &e.OrganizationID, &e.Name, &e.Email, &e.Role,
		&e.SupervisorID, &e.AssignedPCID, &shared, &e.AnomalyFlag); err != nil {
		return nil, err
	}
	if len(shared) > 0 {
		if err := json.Unmarshal(shared, &e.SharedPCIDs); err != nil {
			return nil, err
		}
	}
	return &e, nil
}
