// Package server builds the HTTP router and its middleware stack.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"insiderwatch/backend/internal/audit"
	"insiderwatch/backend/internal/server/httpx"
	"insiderwatch/backend/internal/telemetry"
)

// APIPrefix is where the REST handlers are mounted.
const APIPrefix = "/api/v1"

// RouteRegistrar is implemented by every HTTP handler package.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// Deps holds what the router mounts. Nil entries are skipped.
type Deps struct {
	Logger *zap.Logger
	// Health serves /healthz and /readyz at the root.
	Health RouteRegistrar
	// Alerts serves the live-alert websocket at the root.
	Alerts RouteRegistrar
	// API handlers are mounted under APIPrefix.
	API []RouteRegistrar
	// Audit receives an entry for every audited API route.
	Audit audit.AuditLogger
	// Telemetry receives an http.request event per organization-scoped request.
	Telemetry   telemetry.EventEmitter
	CORSOrigins []string
	// RequestTimeout bounds API handlers; zero disables it.
	RequestTimeout time.Duration
}

// NewRouter creates the chi router with the middleware stack and all routes.
func NewRouter(deps Deps) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(MetricsMiddleware)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", audit.ActorHeader},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if deps.Health != nil {
		deps.Health.RegisterRoutes(router)
	}
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	if deps.Alerts != nil {
		deps.Alerts.RegisterRoutes(router)
	}

	router.Route(APIPrefix, func(r chi.Router) {
		r.Use(audit.Middleware(deps.Audit))
		r.Use(TelemetryMiddleware(deps.Telemetry))
		if deps.RequestTimeout > 0 {
			r.Use(middleware.Timeout(deps.RequestTimeout))
		}
		for _, h := range deps.API {
			if h != nil {
				h.RegisterRoutes(r)
			}
		}
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusNotFound, httpx.ErrorBody{Error: "endpoint not found"})
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusMethodNotAllowed, httpx.ErrorBody{Error: "method not allowed"})
	})

	return router
}
