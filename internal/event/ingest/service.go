package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"insiderwatch/backend/internal/event/domain"
	"insiderwatch/backend/internal/event/repository"
	"insiderwatch/backend/internal/logger"
	"insiderwatch/backend/internal/logon"
	"insiderwatch/backend/internal/metrics"
	"insiderwatch/backend/internal/telemetry"
	telemetrydomain "insiderwatch/backend/internal/telemetry/domain"
)

// DefaultMaxAttempts bounds id regeneration when a generated event id already exists.
const DefaultMaxAttempts = 5

// EventWriter stores one event with its detail.
type EventWriter interface {
	Create(ctx context.Context, ev *domain.NewEvent) error
}

// LogonSubmitter queues logon events for the coordinator.
type LogonSubmitter interface {
	Submit(ctx context.Context, ev logon.Event) error
}

// Result is the outcome of one collector request. EventIDs lists the stored events in order and
// is also populated for the records written before a failure.
type Result struct {
	Count    int      `json:"count"`
	EventIDs []string `json:"event_ids"`
}

// Service validates, stores and dispatches collector payloads.
type Service struct {
	events      EventWriter
	logons      LogonSubmitter
	emitter     telemetry.EventEmitter
	loc         *time.Location
	newID       func() (string, error)
	maxAttempts int
}

// NewService returns a Service. logons and emitter may be nil. loc is used for timestamps that
// carry no offset.
func NewService(events EventWriter, logons LogonSubmitter, emitter telemetry.EventEmitter, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		events:      events,
		logons:      logons,
		emitter:     emitter,
		loc:         loc,
		newID:       NewEventID,
		maxAttempts: DefaultMaxAttempts,
	}
}

// Ingest parses raw, validates every record and stores them in order. Validation happens for the
// whole payload before the first write. Logon events are handed to the coordinator after their
// write; a failed hand-off is logged and does not fail the request.
func (s *Service) Ingest(ctx context.Context, raw []byte) (*Result, error) {
	records, err := ParsePayload(raw)
	if err != nil {
		metrics.IngestRejected.WithLabelValues("payload").Inc()
		return nil, err
	}
	events := make([]*domain.NewEvent, 0, len(records))
	for i, rec := range records {
		ev, err := decodeRecord(i, rec, s.loc)
		if err != nil {
			metrics.IngestRejected.WithLabelValues("validation").Inc()
			return nil, err
		}
		events = append(events, ev)
	}

	res := &Result{EventIDs: make([]string, 0, len(events))}
	perType := make(map[domain.Type]int)
	for _, ev := range events {
		if err := s.store(ctx, ev); err != nil {
			metrics.IngestRejected.WithLabelValues(rejectReason(err)).Inc()
			res.Count = len(res.EventIDs)
			return res, err
		}
		res.EventIDs = append(res.EventIDs, ev.EventID)
		perType[ev.Type]++
		metrics.IngestedEvents.WithLabelValues(string(ev.Type)).Inc()
		if ev.IsLogonActivity() {
			s.dispatch(ctx, ev)
		}
	}
	res.Count = len(res.EventIDs)

	counts := make(map[string]int, len(perType))
	for t, n := range perType {
		counts[string(t)] = n
	}
	telemetry.EmitAsync(ctx, s.emitter, telemetrydomain.NewEvent("", telemetrydomain.EventIngestBatch, map[string]any{
		"count":   res.Count,
		"by_type": counts,
	}))
	return res, nil
}

// store writes ev, regenerating its id while the store reports a duplicate.
func (s *Service) store(ctx context.Context, ev *domain.NewEvent) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		id, idErr := s.newID()
		if idErr != nil {
			return fmt.Errorf("generate event id: %w", idErr)
		}
		ev.EventID = id
		ev.Detail.EventID = id
		err = s.events.Create(ctx, ev)
		if !errors.Is(err, repository.ErrDuplicateEventID) {
			return err
		}
		logger.Get().Warn("ingest: duplicate event id, regenerating",
			zap.String("event_id", id), zap.Int("attempt", attempt))
	}
	return err
}

func (s *Service) dispatch(ctx context.Context, ev *domain.NewEvent) {
	if s.logons == nil {
		return
	}
	if err := s.logons.Submit(ctx, logon.FromNewEvent(ev)); err != nil {
		logger.Get().Error("ingest: logon event not dispatched",
			zap.String("event_id", ev.EventID), zap.Error(err))
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, repository.ErrDuplicateEventID), errors.Is(err, repository.ErrConflict):
		return "conflict"
	case errors.Is(err, repository.ErrInvalidData):
		return "invalid_data"
	case errors.Is(err, repository.ErrUnavailable):
		return "unavailable"
	}
	return "internal"
}
