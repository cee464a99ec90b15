package telemetry

import (
	"context"

	"insiderwatch/backend/internal/telemetry/domain"
)

// EventEmitter emits telemetry events (to Kafka or OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}
