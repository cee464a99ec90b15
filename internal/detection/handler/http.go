// Package handler exposes anomaly detection over HTTP.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"insiderwatch/backend/internal/detection"
	"insiderwatch/backend/internal/detection/domain"
	empdomain "insiderwatch/backend/internal/employee/domain"
	"insiderwatch/backend/internal/server/httpx"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// Runner runs detection for one window.
type Runner interface {
	Run(ctx context.Context, orgID string, start, end time.Time) (domain.Results, error)
}

// HistoryLister lists stored detection runs.
type HistoryLister interface {
	ListByOrg(ctx context.Context, orgID string, limit int) ([]*domain.History, error)
}

// FlaggedLister lists employees currently flagged anomalous.
type FlaggedLister interface {
	ListFlagged(ctx context.Context, orgID string) ([]*empdomain.Employee, error)
}

// Handler serves the anomaly detection routes.
type Handler struct {
	runner    Runner
	histories HistoryLister
	employees FlaggedLister
	loc       *time.Location
	nowF      func() time.Time
}

// NewHandler returns a Handler. loc is used for date-only query parameters and the default window.
func NewHandler(runner Runner, histories HistoryLister, employees FlaggedLister, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{runner: runner, histories: histories, employees: employees, loc: loc, nowF: time.Now}
}

// RegisterRoutes mounts the routes under r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/anomaly_detect/{organizationID}", func(r chi.Router) {
		r.Get("/", h.Detect)
		r.Get("/histories", h.Histories)
		r.Get("/user_counts", h.UserCounts)
		r.Get("/employees", h.FlaggedEmployees)
	})
}

type detectResponse struct {
	OrganizationID string         `json:"organization_id"`
	Start          time.Time      `json:"start"`
	End            time.Time      `json:"end"`
	Results        domain.Results `json:"results"`
}

// Detect scores [start, end). Without query parameters the previous full week is scored.
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "organizationID")
	start, end, err := h.window(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err, "invalid detection window")
		return
	}
	results, err := h.runner.Run(r.Context(), orgID, start, end)
	if err != nil {
		httpx.Error(w, statusCode(err), err, "anomaly detection failed")
		return
	}
	httpx.JSON(w, http.StatusOK, detectResponse{OrganizationID: orgID, Start: start, End: end, Results: results})
}

func (h *Handler) window(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	startRaw, endRaw := q.Get("start"), q.Get("end")
	if startRaw == "" && endRaw == "" {
		start, end := detection.PreviousWeek(h.nowF(), h.loc)
		return start, end, nil
	}
	if startRaw == "" || endRaw == "" {
		return time.Time{}, time.Time{}, errors.New("start and end must be given together")
	}
	start, err := httpx.ParseTime(startRaw, h.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start: %w", err)
	}
	end, err := httpx.ParseTime(endRaw, h.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end: %w", err)
	}
	return start, end, nil
}

type historyResponse struct {
	ID           int64          `json:"id"`
	StartDate    time.Time      `json:"start_date"`
	EndDate      time.Time      `json:"end_date"`
	RunTimestamp time.Time      `json:"run_timestamp"`
	Results      domain.Results `json:"results"`
}

// Histories lists stored runs, newest first.
func (h *Handler) Histories(w http.ResponseWriter, r *http.Request) {
	list, ok := h.listHistories(w, r)
	if !ok {
		return
	}
	out := make([]historyResponse, 0, len(list))
	for _, hist := range list {
		out = append(out, historyResponse{
			ID:           hist.ID,
			StartDate:    hist.StartDate,
			EndDate:      hist.EndDate,
			RunTimestamp: hist.RunTimestamp,
			Results:      hist.Results,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

// UserCounts lists the number of anomalous users of each stored run.
func (h *Handler) UserCounts(w http.ResponseWriter, r *http.Request) {
	list, ok := h.listHistories(w, r)
	if !ok {
		return
	}
	out := make([]domain.UserCount, 0, len(list))
	for _, hist := range list {
		n := 0
		for _, res := range hist.Results {
			if res.Anomalous() {
				n++
			}
		}
		out = append(out, domain.UserCount{
			HistoryID:      hist.ID,
			StartDate:      hist.StartDate,
			EndDate:        hist.EndDate,
			RunTimestamp:   hist.RunTimestamp,
			AnomalousUsers: n,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listHistories(w http.ResponseWriter, r *http.Request) ([]*domain.History, bool) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.Error(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw), "limit must be a positive integer")
			return nil, false
		}
		limit = min(n, maxHistoryLimit)
	}
	list, err := h.histories.ListByOrg(r.Context(), chi.URLParam(r, "organizationID"), limit)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, err, "failed to list detection histories")
		return nil, false
	}
	return list, true
}

type flaggedEmployee struct {
	EmployeeID   string `json:"employee_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	AssignedPCID string `json:"assigned_pc_id,omitempty"`
}

// FlaggedEmployees lists employees whose anomaly flag is set.
func (h *Handler) FlaggedEmployees(w http.ResponseWriter, r *http.Request) {
	list, err := h.employees.ListFlagged(r.Context(), chi.URLParam(r, "organizationID"))
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, err, "failed to list flagged employees")
		return
	}
	out := make([]flaggedEmployee, 0, len(list))
	for _, e := range list {
		out = append(out, flaggedEmployee{
			EmployeeID:   e.ID,
			Name:         e.Name,
			Email:        e.Email,
			Role:         e.Role,
			AssignedPCID: e.AssignedPCID,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, detection.ErrInvalidWindow):
		return http.StatusBadRequest
	case errors.Is(err, detection.ErrOrganizationNotFound):
		return http.StatusNotFound
	case errors.Is(err, detection.ErrClassifierUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
