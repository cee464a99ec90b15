// Package features turns stored behavior events into the weekly numeric vectors the classifier scores.
//
// The stages run in order: Loader, Standardizer, Encoder, Aggregator. Each stage is a plain value
// with explicit inputs so the detection scorer can drive them and tests can exercise them alone.
package features

import (
	"context"
	"fmt"
	"time"

	"insiderwatch/backend/internal/event/domain"
)

// EventSource is the read side of the event repository the loader depends on.
type EventSource interface {
	ListByPeriod(ctx context.Context, start, end time.Time) ([]*domain.RawEvent, error)
}

// Loader fetches the raw events of a time window.
type Loader struct {
	src EventSource
}

// NewLoader returns a Loader reading from src.
func NewLoader(src EventSource) *Loader {
	return &Loader{src: src}
}

// Load returns every event with start <= timestamp < end, newest first.
// An empty or inverted window yields an empty slice.
func (l *Loader) Load(ctx context.Context, start, end time.Time) ([]*domain.RawEvent, error) {
	if !end.After(start) {
		return []*domain.RawEvent{}, nil
	}
	events, err := l.src.ListByPeriod(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	if events == nil {
		events = []*domain.RawEvent{}
	}
	return events, nil
}
