// Package handler exposes the audit trail over HTTP.
package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"insiderwatch/backend/internal/audit/domain"
	auditrepo "insiderwatch/backend/internal/audit/repository"
	"insiderwatch/backend/internal/server/httpx"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Handler serves audit log listings.
type Handler struct {
	repo auditrepo.Repository
}

// NewHandler returns a Handler reading from repo.
func NewHandler(repo auditrepo.Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes mounts the routes under r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/audit_logs/{organizationID}", h.ListAuditLogs)
}

// ListAuditLogs returns a page of audit logs filtered by actor_id, action and resource.
func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), defaultPageSize)
	if err != nil || limit <= 0 {
		httpx.Error(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", q.Get("limit")), "limit must be a positive integer")
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		httpx.Error(w, http.StatusBadRequest, fmt.Errorf("invalid offset %q", q.Get("offset")), "offset must be a non-negative integer")
		return
	}
	logs, err := h.repo.ListByOrg(r.Context(), chi.URLParam(r, "organizationID"), domain.Filter{
		ActorID:  q.Get("actor_id"),
		Action:   q.Get("action"),
		Resource: q.Get("resource"),
		Limit:    int32(min(limit, maxPageSize)),
		Offset:   int32(offset),
	})
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, err, "failed to list audit logs")
		return
	}
	httpx.JSON(w, http.StatusOK, logs)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
