package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"insiderwatch/backend/internal/detection/domain"
)

const selectHistory = `
	SELECT anomaly_detection_history_id, organization_id::text, start_date, end_date, run_timestamp, COALESCE(results, '{}')
	FROM anomaly_detection_histories`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a detection history repository backed by conn.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByPeriod returns the history for orgID and the exact window, or nil if not found.
func (r *PostgresRepository) GetByPeriod(ctx context.Context, orgID string, start, end time.Time) (*domain.History, error) {
	row := r.db.QueryRowContext(ctx, selectHistory+`
		WHERE organization_id::text = $1 AND start_date = $2 AND end_date = $3`, orgID, start.UTC(), end.UTC())
	h, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return h, err
}

// Create inserts h and sets its ID and RunTimestamp. The period unique key makes a duplicate a no-op.
func (r *PostgresRepository) Create(ctx context.Context, h *domain.History) error {
	payload, err := json.Marshal(h.Results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO anomaly_detection_histories (organization_id, start_date, end_date, run_timestamp, results)
		VALUES ($1::uuid, $2, $3, $4, $5)
		ON CONFLICT ON CONSTRAINT anomaly_detection_histories_period_key DO NOTHING
		RETURNING anomaly_detection_history_id`,
		h.OrganizationID, h.StartDate.UTC(), h.EndDate.UTC(), h.RunTimestamp.UTC(), string(payload)).Scan(&h.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

// ListByOrg returns up to limit histories of orgID, newest run first. limit <= 0 means 100.
func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID string, limit int) ([]*domain.History, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, selectHistory+`
		WHERE organization_id::text = $1
		ORDER BY run_timestamp DESC
		LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.History, 0)
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHistory(s scanner) (*domain.History, error) {
	var (
		h       domain.History
		results string
	)
	if err := s.Scan(&h.ID, &h.OrganizationID, &h.StartDate, &h.EndDate, &h.RunTimestamp, &results); err != nil {
		return nil, err
	}
	h.Results = domain.Results{}
	if results != "" {
		if err := json.Unmarshal([]byte(results), &h.Results); err != nil {
			return nil, fmt.Errorf("decode results of history %d: %w", h.ID, err)
		}
	}
	return &h, nil
}
