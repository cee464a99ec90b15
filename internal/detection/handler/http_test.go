package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insiderwatch/backend/internal/detection"
	"insiderwatch/backend/internal/detection/domain"
	empdomain "insiderwatch/backend/internal/employee/domain"
)

type mockRunner struct {
	orgID      string
	start, end time.Time
	results    domain.Results
	err        error
}

func (m *mockRunner) Run(_ context.Context, orgID string, start, end time.Time) (domain.Results, error) {
	m.orgID, m.start, m.end = orgID, start, end
	return m.results, m.err
}

type mockHistories struct {
	list  []*domain.History
	limit int
}

func (m *mockHistories) ListByOrg(_ context.Context, _ string, limit int) ([]*domain.History, error) {
	m.limit = limit
	return m.list, nil
}

type mockFlagged struct{ list []*empdomain.Employee }

func (m *mockFlagged) ListFlagged(context.Context, string) ([]*empdomain.Employee, error) {
	return m.list, nil
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestDetect(t *testing.T) {
	anomalous := domain.Result{PredClass: 2, PTop: 0.7, PAnomaly: 0.9}
	tests := []struct {
		name       string
		query      string
		runErr     error
		wantStatus int
		wantStart  time.Time
		wantEnd    time.Time
	}{
		{
			name:       "explicit window",
			query:      "?start=2024-01-07&end=2024-01-14",
			wantStatus: http.StatusOK,
			wantStart:  time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC),
			wantEnd:    time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC),
		},
		{
			name:       "default previous week",
			wantStatus: http.StatusOK,
			wantStart:  time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
			wantEnd:    time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC),
		},
		{name: "only start", query: "?start=2024-01-07", wantStatus: http.StatusBadRequest},
		{name: "bad end", query: "?start=2024-01-07&end=soon", wantStatus: http.StatusBadRequest},
		{name: "invalid window", query: "?start=2024-01-14&end=2024-01-07", runErr: detection.ErrInvalidWindow, wantStatus: http.StatusBadRequest},
		{name: "unknown org", query: "?start=2024-01-07&end=2024-01-14", runErr: detection.ErrOrganizationNotFound, wantStatus: http.StatusNotFound},
		{name: "classifier down", query: "?start=2024-01-07&end=2024-01-14", runErr: fmt.Errorf("%w: timeout", detection.ErrClassifierUnavailable), wantStatus: http.StatusServiceUnavailable},
		{name: "schema mismatch", query: "?start=2024-01-07&end=2024-01-14", runErr: detection.ErrSchemaMismatch, wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mockRunner{results: domain.Results{"ACM2278": anomalous}, err: tt.runErr}
			h := NewHandler(runner, &mockHistories{}, &mockFlagged{}, time.UTC)
			h.nowF = func() time.Time { return time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) }

			rec := httptest.NewRecorder()
			newRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anomaly_detect/org-1"+tt.query, nil))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			assert.Equal(t, "org-1", runner.orgID)
			assert.True(t, tt.wantStart.Equal(runner.start))
			assert.True(t, tt.wantEnd.Equal(runner.end))

			var body detectResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, 2, body.Results["ACM2278"].PredClass)
		})
	}
}

func TestUserCountsAndHistories(t *testing.T) {
	hist := &mockHistories{list: []*domain.History{{
		ID:        7,
		StartDate: time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC),
		Results: domain.Results{
			"A": {PredClass: 1},
			"B": {PredClass: 3},
			"C": {PredClass: 0},
		},
	}}}
	router := newRouter(NewHandler(&mockRunner{}, hist, &mockFlagged{}, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anomaly_detect/org-1/user_counts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var counts []domain.UserCount
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
	require.Len(t, counts, 1)
	assert.Equal(t, int64(7), counts[0].HistoryID)
	assert.Equal(t, 2, counts[0].AnomalousUsers)
	assert.Equal(t, defaultHistoryLimit, hist.limit)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anomaly_detect/org-1/histories?limit=1000", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxHistoryLimit, hist.limit)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anomaly_detect/org-1/histories?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFlaggedEmployees(t *testing.T) {
	flagged := &mockFlagged{list: []*empdomain.Employee{{ID: "ACM2278", Name: "Ann", Email: "ann@acme.com", Role: "Engineer", AnomalyFlag: true}}}
	rec := httptest.NewRecorder()
	newRouter(NewHandler(&mockRunner{}, &mockHistories{}, flagged, nil)).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anomaly_detect/org-1/employees", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"employee_id":"ACM2278","name":"Ann","email":"ann@acme.com","role":"Engineer"}]`, rec.Body.String())
}
