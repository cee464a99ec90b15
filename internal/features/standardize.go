package features

import (
	"context"
	"fmt"

	"insiderwatch/backend/internal/event/domain"
)

// DetailSource is the batched detail lookup the standardizer depends on.
type DetailSource interface {
	DetailsByEventIDs(ctx context.Context, t domain.Type, ids []string) (map[string]*domain.Detail, error)
}

// Standardizer joins raw events with their per-type detail rows.
type Standardizer struct {
	src DetailSource
}

// NewStandardizer returns a Standardizer reading details from src.
func NewStandardizer(src DetailSource) *Standardizer {
	return &Standardizer{src: src}
}

// Standardize returns one StandardizedEvent per input event, grouped by type.
// Each known type costs exactly one detail lookup. Events of an unknown type are passed through
// without a detail so the encoder can reject them.
func (s *Standardizer) Standardize(ctx context.Context, events []*domain.RawEvent) ([]domain.StandardizedEvent, error) {
	byType := make(map[domain.Type][]*domain.RawEvent, len(domain.Types))
	var unknown []*domain.RawEvent
	for _, ev := range events {
		if _, ok := domain.ParseType(string(ev.Type)); !ok {
			unknown = append(unknown, ev)
			continue
		}
		byType[ev.Type] = append(byType[ev.Type], ev)
	}

	out := make([]domain.StandardizedEvent, 0, len(events))
	for _, t := range domain.Types {
		group := byType[t]
		if len(group) == 0 {
			continue
		}
		ids := make([]string, len(group))
		for i, ev := range group {
			ids[i] = ev.EventID
		}
		details, err := s.src.DetailsByEventIDs(ctx, t, ids)
		if err != nil {
			return nil, fmt.Errorf("load %s details: %w", t, err)
		}
		for _, ev := range group {
			out = append(out, domain.Standardize(ev, details[ev.EventID]))
		}
	}
	for _, ev := range unknown {
		out = append(out, domain.Standardize(ev, nil))
	}
	return out, nil
}
