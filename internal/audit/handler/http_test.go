package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"insiderwatch/backend/internal/audit/domain"
)

type mockRepo struct {
	orgID  string
	filter domain.Filter
}

func (m *mockRepo) ListByOrg(_ context.Context, orgID string, f domain.Filter) ([]*domain.AuditLog, error) {
	m.orgID, m.filter = orgID, f
	return []*domain.AuditLog{{ID: "a1", OrgID: orgID, Action: "access_changed", Resource: "pc"}}, nil
}

func (m *mockRepo) Create(context.Context, *domain.AuditLog) error { return nil }

func TestListAuditLogs(t *testing.T) {
	testCases := []struct {
		name       string
		query      string
		wantStatus int
		wantFilter domain.Filter
	}{
		{name: "defaults", wantStatus: http.StatusOK, wantFilter: domain.Filter{Limit: defaultPageSize}},
		{
			name:       "filters",
			query:      "?limit=10000&offset=5&action=access_changed&resource=pc&actor_id=admin-1",
			wantStatus: http.StatusOK,
			wantFilter: domain.Filter{ActorID: "admin-1", Action: "access_changed", Resource: "pc", Limit: maxPageSize, Offset: 5},
		},
		{name: "bad limit", query: "?limit=x", wantStatus: http.StatusBadRequest},
		{name: "negative offset", query: "?offset=-1", wantStatus: http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &mockRepo{}
			r := chi.NewRouter()
			NewHandler(repo).RegisterRoutes(r)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit_logs/org-1"+tc.query, nil))
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantStatus != http.StatusOK {
				return
			}
			if repo.orgID != "org-1" {
				t.Errorf("org = %q", repo.orgID)
			}
			if repo.filter != tc.wantFilter {
				t.Errorf("filter = %+v, want %+v", repo.filter, tc.wantFilter)
			}
		})
	}
}
