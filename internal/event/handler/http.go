// Package handler exposes the log collector over HTTP.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"insiderwatch/backend/internal/event/ingest"
	"insiderwatch/backend/internal/event/repository"
	"insiderwatch/backend/internal/server/httpx"
)

// MaxBodyBytes caps a single collector request.
const MaxBodyBytes = 8 << 20

// Ingester stores a collector payload.
type Ingester interface {
	Ingest(ctx context.Context, raw []byte) (*ingest.Result, error)
}

// Handler serves the log collector route.
type Handler struct {
	ingester Ingester
}

// NewHandler returns a Handler.
func NewHandler(ingester Ingester) *Handler {
	return &Handler{ingester: ingester}
}

// RegisterRoutes mounts the routes under r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/log_collector/post_log", h.PostLog)
}

// PostLog accepts one JSON object, a JSON array or NDJSON.
func (h *Handler) PostLog(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.Error(w, http.StatusRequestEntityTooLarge, err, "payload too large")
			return
		}
		httpx.Error(w, http.StatusBadRequest, err, "could not read body")
		return
	}
	res, err := h.ingester.Ingest(r.Context(), raw)
	if err != nil {
		status, msg := statusCode(err)
		httpx.Error(w, status, err, msg)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func statusCode(err error) (int, string) {
	var verr *ingest.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "invalid record"
	case errors.Is(err, ingest.ErrEmptyPayload):
		return http.StatusBadRequest, "empty payload"
	case errors.Is(err, ingest.ErrMalformedPayload):
		return http.StatusBadRequest, "invalid JSON"
	case errors.Is(err, repository.ErrDuplicateEventID), errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, "integrity violation"
	case errors.Is(err, repository.ErrInvalidData):
		return http.StatusBadRequest, "invalid data"
	case errors.Is(err, repository.ErrUnavailable):
		return http.StatusServiceUnavailable, "database unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}
