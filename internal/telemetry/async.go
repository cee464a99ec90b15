package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"insiderwatch/backend/internal/logger"
	"insiderwatch/backend/internal/telemetry/domain"
)

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the HTTP server stops before shutting down the
// emitters, so in-flight async emits can complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
// emitter and event may be nil, in which case nothing happens. The goroutine does not inherit
// ctx cancellation, so a finished request does not abort its telemetry.
func EmitAsync(ctx context.Context, emitter EventEmitter, event *domain.Event) {
	if emitter == nil || event == nil {
		return
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			logger.Get().Warn("telemetry: async emit failed",
				zap.String("event_type", event.EventType),
				zap.Error(err))
		}
	}()
}
