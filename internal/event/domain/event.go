// Package domain holds behavior-log event types shared by ingestion and the feature pipeline.
package domain

import (
	"strings"
	"time"
)

// Type is the declared channel of a behavior event.
type Type string

const (
	TypeLogon  Type = "logon"
	TypeDevice Type = "device"
	TypeFile   Type = "file"
	TypeEmail  Type = "email"
	TypeHTTP   Type = "http"
)

// Types lists every event type in a stable order.
var Types = []Type{TypeLogon, TypeDevice, TypeFile, TypeEmail, TypeHTTP}

// ParseType returns the Type for s and whether it is known.
func ParseType(s string) (Type, bool) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Types {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// Activity values carried by logon and device detail rows.
const (
	ActivityLogon      = "Logon"
	ActivityLogoff     = "Logoff"
	ActivityConnect    = "Connect"
	ActivityDisconnect = "Disconnect"
)

// NormalizeActivity trims and canonicalises a logon/device activity. It returns "" when the value
// is none of Logon, Logoff, Connect, Disconnect.
func NormalizeActivity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "logon":
		return ActivityLogon
	case "logoff":
		return ActivityLogoff
	case "connect":
		return ActivityConnect
	case "disconnect":
		return ActivityDisconnect
	}
	return ""
}

// RawEvent is one stored behavior log row. Immutable once stored.
type RawEvent struct {
	EventID    string
	UserID     string
	EndpointID string
	Timestamp  time.Time
	Type       Type
}

// Detail is the per-type payload of an event. Only the fields relevant to the event's type are
// set; the rest stay at their zero value.
type Detail struct {
	EventID     string
	URL         string
	To          string
	Cc          string
	Bcc         string
	From        string
	Size        int
	Attachments int
	Activity    string
	Filename    string
}

// StandardizedEvent is a RawEvent flattened with its detail. HasDetail is false when no detail
// row exists for the event's declared type; the detail fields are then the empty sentinel.
type StandardizedEvent struct {
	RawEvent
	To            string
	Cc            string
	Bcc           string
	From          string
	Size          int
	Attachments   int
	URLOrFilename string
	Activity      string
	HasDetail     bool
}

// Standardize joins raw with its detail (nil when missing).
func Standardize(raw *RawEvent, d *Detail) StandardizedEvent {
	out := StandardizedEvent{RawEvent: *raw}
	if d == nil {
		return out
	}
	out.HasDetail = true
	out.To = d.To
	out.Cc = d.Cc
	out.Bcc = d.Bcc
	out.From = d.From
	out.Size = d.Size
	out.Attachments = d.Attachments
	out.Activity = d.Activity
	out.URLOrFilename = d.URL
	if out.URLOrFilename == "" {
		out.URLOrFilename = d.Filename
	}
	return out
}

// NewEvent is an event accepted by ingestion, before it is stored.
type NewEvent struct {
	RawEvent
	Detail Detail
}

// IsLogonActivity reports whether the event is a logon-channel event (logon or logoff).
func (e *NewEvent) IsLogonActivity() bool {
	return e.Type == TypeLogon
}
