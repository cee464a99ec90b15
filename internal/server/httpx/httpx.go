// Package httpx holds the JSON response helpers shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"insiderwatch/backend/internal/logger"
)

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Get().Error("encode JSON response", zap.Error(err))
	}
}

// Error logs err and writes it as an ErrorBody.
func Error(w http.ResponseWriter, status int, err error, message string) {
	log := logger.Get()
	if status >= http.StatusInternalServerError {
		log.Error("HTTP error response", zap.Error(err), zap.Int("status_code", status), zap.String("message", message))
	} else {
		log.Warn("HTTP error response", zap.Error(err), zap.Int("status_code", status), zap.String("message", message))
	}
	JSON(w, status, ErrorBody{Error: err.Error(), Message: message})
}

// ParseTime accepts RFC 3339 timestamps and plain YYYY-MM-DD dates in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(time.DateOnly, s, loc)
}
