package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"insiderwatch/backend/internal/telemetry/domain"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*domain.Event
	emitErr error
	delay   time.Duration
	done    chan struct{}
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *domain.Event) error {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.delay):
		}
	}
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if m.done != nil {
		m.done <- struct{}{}
	}
	return m.emitErr
}

func (m *mockEventEmitter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func waitN(t *testing.T, done <-chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d emits", i, n)
		}
	}
}

func TestEmitAsync_NilArguments(t *testing.T) {
	EmitAsync(context.Background(), nil, domain.NewEvent("org-1", "test", nil))

	emitter := &mockEventEmitter{}
	EmitAsync(context.Background(), emitter, nil)
	time.Sleep(10 * time.Millisecond)
	if emitter.count() != 0 {
		t.Errorf("expected 0 events, got %d", emitter.count())
	}
}

func TestEmitAsync_SuccessfulEmit(t *testing.T) {
	emitter := &mockEventEmitter{done: make(chan struct{}, 1)}
	ev := domain.NewEvent("org-1", domain.EventContainment, nil)
	ev.UserID = "ACM2278"

	EmitAsync(context.Background(), emitter, ev)
	waitN(t, emitter.done, 1)

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	if emitter.events[0].OrgID != "org-1" || emitter.events[0].UserID != "ACM2278" {
		t.Errorf("unexpected event %+v", emitter.events[0])
	}
}

func TestEmitAsync_IgnoresCallerCancellation(t *testing.T) {
	emitter := &mockEventEmitter{done: make(chan struct{}, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	EmitAsync(ctx, emitter, domain.NewEvent("org-1", "test", nil))
	waitN(t, emitter.done, 1)
}

func TestEmitAsync_ErrorIsSwallowed(t *testing.T) {
	emitter := &mockEventEmitter{emitErr: context.DeadlineExceeded, done: make(chan struct{}, 1)}
	EmitAsync(context.Background(), emitter, domain.NewEvent("org-1", "test", nil))
	waitN(t, emitter.done, 1)
}

func TestEmitAsync_Concurrent(t *testing.T) {
	emitter := &mockEventEmitter{done: make(chan struct{}, 10)}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			EmitAsync(context.Background(), emitter, domain.NewEvent("org-1", "test", nil))
		}()
	}
	wg.Wait()
	waitN(t, emitter.done, 10)
	if emitter.count() != 10 {
		t.Errorf("expected 10 events, got %d", emitter.count())
	}
}
