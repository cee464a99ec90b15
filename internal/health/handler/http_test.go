package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

// mockPolicyChecker implements PolicyChecker for tests.
type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

func probe(t *testing.T, h *Handler, path string) (int, statusResponse) {
	t.Helper()
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec.Code, body
}

func TestLive(t *testing.T) {
	code, body := probe(t, NewHandler(&mockPinger{pingErr: errors.New("down")}, nil), "/healthz")
	if code != http.StatusOK || body.Status != StatusServing {
		t.Errorf("liveness = %d %q, want 200 SERVING", code, body.Status)
	}
}

func TestReady_NoChecks(t *testing.T) {
	code, body := probe(t, NewHandler(nil, nil), "/readyz")
	if code != http.StatusOK || body.Status != StatusServing {
		t.Errorf("readiness = %d %q, want 200 SERVING", code, body.Status)
	}
}

func TestReady_PingerSuccess(t *testing.T) {
	code, body := probe(t, NewHandler(&mockPinger{}, &mockPolicyChecker{}), "/readyz")
	if code != http.StatusOK {
		t.Fatalf("code = %d, want 200", code)
	}
	if body.Checks["database"] != "ok" || body.Checks["policy"] != "ok" {
		t.Errorf("checks = %v", body.Checks)
	}
}

func TestReady_PingerFailure(t *testing.T) {
	code, body := probe(t, NewHandler(&mockPinger{pingErr: errors.New("connection refused")}, nil), "/readyz")
	if code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d, want 503", code)
	}
	if body.Status != StatusNotServing {
		t.Errorf("status = %q, want NOT_SERVING", body.Status)
	}
	if body.Checks["database"] != "connection refused" {
		t.Errorf("database check = %q", body.Checks["database"])
	}
}

func TestReady_PolicyCheckerFailure(t *testing.T) {
	code, body := probe(t, NewHandler(&mockPinger{}, &mockPolicyChecker{healthErr: errors.New("rego compile failed")}), "/readyz")
	if code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d, want 503", code)
	}
	if body.Checks["database"] != "ok" {
		t.Errorf("database check = %q, want ok", body.Checks["database"])
	}
	if body.Checks["policy"] != "rego compile failed" {
		t.Errorf("policy check = %q", body.Checks["policy"])
	}
}
