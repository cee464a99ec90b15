package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusBadRequest, errors.New("bad"), "invalid input")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"bad","message":"invalid input"}`, rec.Body.String())
}

func TestParseTime(t *testing.T) {
	loc := time.FixedZone("KST", 9*3600)
	got, err := ParseTime("2024-01-07", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 7, 0, 0, 0, 0, loc), got)

	got, err = ParseTime("2024-01-07T10:00:00Z", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 1, 7, 10, 0, 0, 0, time.UTC)))

	_, err = ParseTime("yesterday", loc)
	assert.Error(t, err)
}
