package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blockingdomain "insiderwatch/backend/internal/blocking/domain"
	endpointdomain "insiderwatch/backend/internal/endpoint/domain"
	gatewaydomain "insiderwatch/backend/internal/gateway/domain"
)

type fakeAccess struct {
	ok    bool
	calls []bool
}

func (f *fakeAccess) SetAccess(_ context.Context, _ string, allow bool) bool {
	f.calls = append(f.calls, allow)
	return f.ok
}

type fakeEndpoints map[string]*endpointdomain.Endpoint

func (f fakeEndpoints) GetByID(_ context.Context, id string) (*endpointdomain.Endpoint, error) {
	return f[id], nil
}

func (f fakeEndpoints) ListByOrg(context.Context, string) ([]*endpointdomain.Endpoint, error) {
	out := make([]*endpointdomain.Endpoint, 0, len(f))
	for _, ep := range f {
		out = append(out, ep)
	}
	return out, nil
}

type fakeGateways []*gatewaydomain.Gateway

func (f fakeGateways) ListByOrg(context.Context, string) ([]*gatewaydomain.Gateway, error) {
	return f, nil
}

type fakeBlocking struct{ limit int }

func (f *fakeBlocking) ListByOrg(_ context.Context, orgID string, limit int) ([]*blockingdomain.BlockingRecord, error) {
	f.limit = limit
	return []*blockingdomain.BlockingRecord{{ID: 1, OrganizationID: orgID, EndpointID: "PC-1", EmployeeID: "ACM2278", BlockTime: time.Date(2024, 1, 8, 23, 0, 0, 0, time.UTC)}}, nil
}

func newTestRouter(access *fakeAccess, blocking *fakeBlocking) http.Handler {
	eps := fakeEndpoints{"PC-1": {ID: "PC-1", OrganizationID: "org-1", MACAddress: "aa:bb:cc:dd:ee:01"}}
	gws := fakeGateways{{ID: 1, ConnectedMACs: []string{"aa:bb:cc:dd:ee:01"}}}
	r := chi.NewRouter()
	NewHandler(access, eps, gws, blocking).RegisterRoutes(r)
	return r
}

func TestSetAccess(t *testing.T) {
	testCases := []struct {
		name       string
		path       string
		ok         bool
		wantStatus int
		wantCalls  []bool
	}{
		{name: "block", path: "/network_access_control/org-1/PC-1/false", ok: true, wantStatus: http.StatusOK, wantCalls: []bool{false}},
		{name: "allow word", path: "/network_access_control/org-1/PC-1/allow", ok: true, wantStatus: http.StatusOK, wantCalls: []bool{true}},
		{name: "gateway failure", path: "/network_access_control/org-1/PC-1/block", ok: false, wantStatus: http.StatusBadGateway, wantCalls: []bool{false}},
		{name: "bad flag", path: "/network_access_control/org-1/PC-1/maybe", wantStatus: http.StatusBadRequest},
		{name: "other org", path: "/network_access_control/org-2/PC-1/block", wantStatus: http.StatusNotFound},
		{name: "unknown pc", path: "/network_access_control/org-1/PC-9/block", wantStatus: http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			access := &fakeAccess{ok: tc.ok}
			rec := httptest.NewRecorder()
			newTestRouter(access, &fakeBlocking{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tc.path, nil))
			assert.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tc.wantCalls, access.calls)
		})
	}
}

func TestHistoriesAndTopology(t *testing.T) {
	blocking := &fakeBlocking{}
	router := newTestRouter(&fakeAccess{}, blocking)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/network_access_control/org-1/histories", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultHistoryLimit, blocking.limit)
	var body struct {
		Results []blockingdomain.BlockingRecord `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 1)
	assert.Equal(t, "PC-1", body.Results[0].EndpointID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/network_access_control/org-1/topology", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"edge-Router-1-PC-1"`)
}

func TestParseFlag(t *testing.T) {
	for raw, want := range map[string]bool{"true": true, "1": true, "ALLOW": true, "false": false, "0": false, "block": false} {
		got, err := ParseFlag(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := ParseFlag("")
	assert.Error(t, err)
}
