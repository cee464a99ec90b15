package repository

import (
	"context"
	"errors"
	"time"

	"insiderwatch/backend/internal/event/domain"
)

// Errors returned by Create, classified from the underlying driver error.
var (
	// ErrDuplicateEventID means the event_id primary key already exists; callers may retry with a new id.
	ErrDuplicateEventID = errors.New("event: duplicate event id")
	// ErrConflict is any other integrity violation (unknown employee or pc, constraint failure).
	ErrConflict = errors.New("event: integrity violation")
	// ErrInvalidData is a value the store rejected (too long, out of range).
	ErrInvalidData = errors.New("event: invalid data")
	// ErrUnavailable means the store could not be reached.
	ErrUnavailable = errors.New("event: store unavailable")
)

// Repository defines persistence for behavior events and their per-type detail.
type Repository interface {
	// ListByPeriod returns events with start <= timestamp < end, newest first.
	ListByPeriod(ctx context.Context, start, end time.Time) ([]*domain.RawEvent, error)
	// DetailsByEventIDs returns the detail rows of the given type for ids in one batched lookup,
	// keyed by event id. Ids without a detail row are absent from the map.
	DetailsByEventIDs(ctx context.Context, t domain.Type, ids []string) (map[string]*domain.Detail, error)
	// Create stores the base row and its detail atomically.
	Create(ctx context.Context, ev *domain.NewEvent) error
}
