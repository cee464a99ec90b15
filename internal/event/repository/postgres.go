package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"insiderwatch/backend/internal/db"
	"insiderwatch/backend/internal/event/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an event repository backed by conn.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// ListByPeriod returns events in [start, end), newest first. No matches yields an empty slice.
func (r *PostgresRepository) ListByPeriod(ctx context.Context, start, end time.Time) ([]*domain.RawEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_id, employee_id, pc_id, "timestamp", event_type
		FROM behavior_logs
		WHERE "timestamp" >= $1 AND "timestamp" < $2
		ORDER BY "timestamp" DESC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.RawEvent, 0)
	for rows.Next() {
		var (
			e   domain.RawEvent
			typ string
		)
		if err := rows.Scan(&e.EventID, &e.UserID, &e.EndpointID, &e.Timestamp, &typ); err != nil {
			return nil, err
		}
		e.Type = domain.Type(typ)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// DetailsByEventIDs runs one query against the detail table of t.
func (r *PostgresRepository) DetailsByEventIDs(ctx context.Context, t domain.Type, ids []string) (map[string]*domain.Detail, error) {
	out := make(map[string]*domain.Detail, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var query string
	switch t {
	case domain.TypeHTTP:
		query = `SELECT event_id, url FROM http_logs WHERE event_id = ANY($1)`
	case domain.TypeEmail:
		query = `SELECT event_id, "to", COALESCE(cc, ''), COALESCE(bcc, ''), from_addr, size, attachment
			FROM email_logs WHERE event_id = ANY($1)`
	case domain.TypeDevice:
		query = `SELECT event_id, activity FROM device_logs WHERE event_id = ANY($1)`
	case domain.TypeLogon:
		query = `SELECT event_id, activity FROM logon_logs WHERE event_id = ANY($1)`
	case domain.TypeFile:
		query = `SELECT event_id, filename FROM file_logs WHERE event_id = ANY($1)`
	default:
		return nil, fmt.Errorf("event: unknown type %q", t)
	}

	rows, err := r.db.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var d domain.Detail
		switch t {
		case domain.TypeHTTP:
			err = rows.Scan(&d.EventID, &d.URL)
		case domain.TypeEmail:
			err = rows.Scan(&d.EventID, &d.To, &d.Cc, &d.Bcc, &d.From, &d.Size, &d.Attachments)
		case domain.TypeDevice, domain.TypeLogon:
			err = rows.Scan(&d.EventID, &d.Activity)
		case domain.TypeFile:
			err = rows.Scan(&d.EventID, &d.Filename)
		}
		if err != nil {
			return nil, err
		}
		out[d.EventID] = &d
	}
	return out, rows.Err()
}

// Create inserts the base row and the detail row in a single transaction.
// Driver errors are classified into ErrDuplicateEventID, ErrConflict, ErrInvalidData or ErrUnavailable.
func (r *PostgresRepository) Create(ctx context.Context, ev *domain.NewEvent) error {
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO behavior_logs (event_id, employee_id, pc_id, "timestamp", event_type)
			VALUES ($1, $2, $3, $4, $5)`,
			ev.EventID, ev.UserID, ev.EndpointID, ev.Timestamp, string(ev.Type)); err != nil {
			return err
		}
		d := ev.Detail
		var err error
		switch ev.Type {
		case domain.TypeHTTP:
			_, err = tx.ExecContext(ctx, `INSERT INTO http_logs (event_id, url) VALUES ($1, $2)`, ev.EventID, d.URL)
		case domain.TypeEmail:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO email_logs (event_id, "to", cc, bcc, from_addr, size, attachment)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				ev.EventID, d.To, nullString(d.Cc), nullString(d.Bcc), d.From, d.Size, d.Attachments)
		case domain.TypeDevice:
			_, err = tx.ExecContext(ctx, `INSERT INTO device_logs (event_id, activity) VALUES ($1, $2)`, ev.EventID, d.Activity)
		case domain.TypeLogon:
			_, err = tx.ExecContext(ctx, `INSERT INTO logon_logs (event_id, activity) VALUES ($1, $2)`, ev.EventID, d.Activity)
		case domain.TypeFile:
			_, err = tx.ExecContext(ctx, `INSERT INTO file_logs (event_id, filename) VALUES ($1, $2)`, ev.EventID, d.Filename)
		}
		return err
	})
	return classify(err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// classify maps driver errors onto the package sentinels, keeping the original as context.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505" && pgErr.ConstraintName == "behavior_logs_pkey":
			return fmt.Errorf("%w: %s", ErrDuplicateEventID, pgErr.Message)
		case strings.HasPrefix(pgErr.Code, "23"):
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		case strings.HasPrefix(pgErr.Code, "22"):
			return fmt.Errorf("%w: %s", ErrInvalidData, pgErr.Message)
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P"), strings.HasPrefix(pgErr.Code, "53"):
			return fmt.Errorf("%w: %s", ErrUnavailable, pgErr.Message)
		}
		return err
	}
	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
