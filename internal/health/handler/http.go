// Package handler serves liveness and readiness probes.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"insiderwatch/backend/internal/logger"
	"insiderwatch/backend/internal/server/httpx"
)

const checkTimeout = 2 * time.Second

// Status values reported by the probes.
const (
	StatusServing    = "SERVING"
	StatusNotServing = "NOT_SERVING"
)

// Pinger checks database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the containment policy engine is usable.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler serves /healthz and /readyz.
type Handler struct {
	pinger Pinger
	policy PolicyChecker
}

// NewHandler returns a Handler. Either check may be nil and is then skipped.
func NewHandler(pinger Pinger, policy PolicyChecker) *Handler {
	return &Handler{pinger: pinger, policy: policy}
}

// RegisterRoutes mounts the probes under r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Live)
	r.Get("/readyz", h.Ready)
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Live reports that the process is up.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, statusResponse{Status: StatusServing})
}

// Ready runs the database and policy checks. Failed checks give 503 and are named in the body.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	resp := statusResponse{Status: StatusServing, Checks: map[string]string{}}
	check := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			logger.Get().Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			resp.Checks[name] = err.Error()
			resp.Status = StatusNotServing
			return
		}
		resp.Checks[name] = "ok"
	}
	if h.pinger != nil {
		check("database", h.pinger.PingContext)
	}
	if h.policy != nil {
		check("policy", h.policy.HealthCheck)
	}

	code := http.StatusOK
	if resp.Status != StatusServing {
		code = http.StatusServiceUnavailable
	}
	httpx.JSON(w, code, resp)
}
