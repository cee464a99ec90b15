package repository

import (
	"context"
	"database/sql"
	"time"

	"insiderwatch/backend/internal/blocking/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a blocking repository backed by conn.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

func (r *PostgresRepository) Create(ctx context.Context, rec *domain.BlockingRecord) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO blocking_history (organization_id, pc_id, employee_id, logon_time, blocking_time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING blocking_history_id`,
		rec.OrganizationID, rec.EndpointID, rec.EmployeeID, nullTime(rec.LogonTime), nullTime(rec.BlockTime),
	).Scan(&rec.ID)
}

func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID string, limit int) ([]*domain.BlockingRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT blocking_history_id, organization_id::text, pc_id, employee_id, logon_time, blocking_time
		FROM blocking_history
		WHERE organization_id = $1
		ORDER BY blocking_time DESC NULLS LAST, blocking_history_id DESC
		LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.BlockingRecord, 0)
	for rows.Next() {
		var (
			rec            domain.BlockingRecord
			logon, blocked sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.OrganizationID, &rec.EndpointID, &rec.EmployeeID, &logon, &blocked); err != nil {
			return nil, err
		}
		rec.LogonTime = logon.Time
		rec.BlockTime = blocked.Time
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}
