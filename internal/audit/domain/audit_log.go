package domain

import "time"

// AuditLog is one recorded administrative or automated action.
type AuditLog struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"organization_id"`
	ActorID   string    `json:"actor_id,omitempty"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows an audit log listing. Empty fields match everything.
type Filter struct {
	ActorID  string
	Action   string
	Resource string
	Limit    int32
	Offset   int32
}
