// Package cache stores detection results by organization and window so repeated requests skip
// recomputation.
package cache

import (
	"context"
	"fmt"
	"time"

	"insiderwatch/backend/internal/detection/domain"
)

// Cache holds detection results for a key until ttl elapses.
type Cache interface {
	// Get returns the results for key. ok is false when missing or expired.
	Get(ctx context.Context, key string) (results domain.Results, ok bool, err error)
	Set(ctx context.Context, key string, results domain.Results, ttl time.Duration) error
}

// Key is the cache and single-flight key of one detection window.
func Key(orgID string, start, end time.Time) string {
	return fmt.Sprintf("insiderwatch:detection:%s:%d:%d", orgID, start.Unix(), end.Unix())
}
