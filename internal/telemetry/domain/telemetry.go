package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the backend.
const (
	EventIngestBatch  = "ingest.batch"
	EventDetectionRun = "detection.run"
	EventContainment  = "containment.action"
	EventAlert        = "alert.sent"
	EventHTTPRequest  = "http.request"
)

// Source tags events emitted by this service.
const Source = "insiderwatch-backend"

// Event is an org-scoped telemetry event. It is serialized as JSON onto the telemetry topic.
type Event struct {
	ID         string          `json:"id"`
	OrgID      string          `json:"orgId"`
	UserID     string          `json:"userId,omitempty"`
	EndpointID string          `json:"endpointId,omitempty"`
	EventType  string          `json:"eventType"`
	Source     string          `json:"source"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// NewEvent builds an event with a fresh id and the current time. metadata is marshalled to JSON;
// values that cannot be marshalled are dropped.
func NewEvent(orgID, eventType string, metadata any) *Event {
	ev := &Event{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		EventType: eventType,
		Source:    Source,
		CreatedAt: time.Now().UTC(),
	}
	if metadata != nil {
		if b, err := json.Marshal(metadata); err == nil {
			ev.Metadata = b
		}
	}
	return ev
}
