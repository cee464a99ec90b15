package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insiderwatch/backend/internal/event/ingest"
	"insiderwatch/backend/internal/event/repository"
	"insiderwatch/backend/internal/server/httpx"
)

type mockIngester struct {
	got []byte
	res *ingest.Result
	err error
}

func (m *mockIngester) Ingest(_ context.Context, raw []byte) (*ingest.Result, error) {
	m.got = raw
	return m.res, m.err
}

func serve(t *testing.T, ing Ingester, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(ing).RegisterRoutes(r)
	req := httptest.NewRequest(http.MethodPost, "/log_collector/post_log", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestPostLog_OK(t *testing.T) {
	ing := &mockIngester{res: &ingest.Result{Count: 1, EventIDs: []string{"{AAAA-BBBBBBBB-CCCCCCCC}"}}}
	rec := serve(t, ing, `{"event_type":"logon"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"event_type":"logon"}`, string(ing.got))
	var body ingest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, []string{"{AAAA-BBBBBBBB-CCCCCCCC}"}, body.EventIDs)
}

func TestPostLog_ErrorMapping(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: &ingest.ValidationError{Field: "url", Msg: "required"}, want: http.StatusBadRequest},
		{name: "empty", err: ingest.ErrEmptyPayload, want: http.StatusBadRequest},
		{name: "malformed", err: fmt.Errorf("%w: line 2", ingest.ErrMalformedPayload), want: http.StatusBadRequest},
		{name: "conflict", err: fmt.Errorf("%w: fk", repository.ErrConflict), want: http.StatusConflict},
		{name: "duplicate exhausted", err: repository.ErrDuplicateEventID, want: http.StatusConflict},
		{name: "data", err: repository.ErrInvalidData, want: http.StatusBadRequest},
		{name: "unavailable", err: repository.ErrUnavailable, want: http.StatusServiceUnavailable},
		{name: "other", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(t, &mockIngester{err: tc.err}, `{}`)
			assert.Equal(t, tc.want, rec.Code)
			var body httpx.ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestPostLog_TooLarge(t *testing.T) {
	rec := serve(t, &mockIngester{}, strings.Repeat("x", MaxBodyBytes+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
