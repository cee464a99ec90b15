package logon

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"insiderwatch/backend/internal/logger"
	"insiderwatch/backend/internal/metrics"
)

// ErrDispatcherClosed is returned by Submit after Close.
var ErrDispatcherClosed = errors.New("logon: dispatcher closed")

const defaultHandleTimeout = 30 * time.Second

// Handler handles one logon event.
type Handler interface {
	Handle(ctx context.Context, ev Event) Outcome
}

// Dispatcher runs a Handler on a bounded pool of workers fed by a bounded queue.
type Dispatcher struct {
	handler Handler
	workers int
	queue   chan Event
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher returns a dispatcher with the given pool and queue sizes.
func NewDispatcher(handler Handler, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Dispatcher{
		handler: handler,
		workers: workers,
		queue:   make(chan Event, queueSize),
		timeout: defaultHandleTimeout,
	}
}

// Start launches the workers. Each event is handled with its own timeout derived from ctx.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for ev := range d.queue {
				metrics.LogonQueueDepth.Set(float64(len(d.queue)))
				d.handle(ctx, ev)
			}
		}()
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev Event) {
	hctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	out := d.handler.Handle(hctx, ev)
	if out.Err != nil {
		logger.Get().Warn("logon: event handled with error", zap.String("event_id", ev.EventID), zap.Error(out.Err))
	}
}

// Submit queues ev. It blocks until the event is queued or ctx is done.
func (d *Dispatcher) Submit(ctx context.Context, ev Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- ev:
		metrics.LogonQueueDepth.Set(float64(len(d.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events, lets the workers drain the queue and waits for them.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
	metrics.LogonQueueDepth.Set(0)
}
