package ingest

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"insiderwatch/backend/internal/event/domain"
)

const maxEventTypeLen = 10

var (
	recipientSplit = regexp.MustCompile(`[;\s,]+`)
	recipientWrap  = regexp.MustCompile(`^[{\[(]+|[}\])]+$`)
)

// timestampLayouts are tried in order; layouts without an offset are read in the service location.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
}

// ValidationError describes why one record was rejected.
type ValidationError struct {
	Index int
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record %d: %s: %s", e.Index, e.Field, e.Msg)
}

// record is the wire shape of one collector record.
type record struct {
	EmployeeID  string          `json:"employee_id"`
	PCID        string          `json:"pc_id"`
	Timestamp   string          `json:"timestamp"`
	EventType   string          `json:"event_type"`
	URL         string          `json:"url"`
	To          json.RawMessage `json:"to"`
	Cc          json.RawMessage `json:"cc"`
	Bcc         json.RawMessage `json:"bcc"`
	From        string          `json:"from_addr"`
	Size        *flexInt        `json:"size"`
	Attachments *flexInt        `json:"attachment"`
	Activity    string          `json:"activity"`
	Filename    string          `json:"filename"`
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		fl, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || fl != float64(int(fl)) {
			return fmt.Errorf("not an integer: %s", b)
		}
		n = int(fl)
	}
	*f = flexInt(n)
	return nil
}

// decodeRecord validates raw and builds the event to store. The event id is left empty.
func decodeRecord(index int, raw json.RawMessage, loc *time.Location) (*domain.NewEvent, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, &ValidationError{Index: index, Field: "record", Msg: err.Error()}
	}
	invalid := func(field, msg string) error {
		return &ValidationError{Index: index, Field: field, Msg: msg}
	}

	ev := &domain.NewEvent{}
	ev.UserID = strings.TrimSpace(rec.EmployeeID)
	ev.EndpointID = strings.TrimSpace(rec.PCID)
	if ev.UserID == "" {
		return nil, invalid("employee_id", "required")
	}
	if ev.EndpointID == "" {
		return nil, invalid("pc_id", "required")
	}
	if len(rec.EventType) > maxEventTypeLen {
		return nil, invalid("event_type", "too long")
	}
	t, ok := domain.ParseType(rec.EventType)
	if !ok {
		return nil, invalid("event_type", fmt.Sprintf("unknown type %q", rec.EventType))
	}
	ev.Type = t
	ts, err := parseTimestamp(rec.Timestamp, loc)
	if err != nil {
		return nil, invalid("timestamp", err.Error())
	}
	ev.Timestamp = ts

	d := &ev.Detail
	switch t {
	case domain.TypeHTTP:
		if d.URL = strings.TrimSpace(rec.URL); d.URL == "" {
			return nil, invalid("url", "required")
		}
	case domain.TypeEmail:
		if d.To, err = NormalizeRecipients(rec.To); err != nil {
			return nil, invalid("to", err.Error())
		}
		if d.To == "" {
			return nil, invalid("to", "required")
		}
		if d.Cc, err = NormalizeRecipients(rec.Cc); err != nil {
			return nil, invalid("cc", err.Error())
		}
		if d.Bcc, err = NormalizeRecipients(rec.Bcc); err != nil {
			return nil, invalid("bcc", err.Error())
		}
		if d.From = strings.TrimSpace(rec.From); d.From == "" {
			return nil, invalid("from_addr", "required")
		}
		if rec.Size == nil || *rec.Size < 0 {
			return nil, invalid("size", "required non-negative integer")
		}
		if rec.Attachments == nil || *rec.Attachments < 0 {
			return nil, invalid("attachment", "required non-negative integer")
		}
		d.Size, d.Attachments = int(*rec.Size), int(*rec.Attachments)
	case domain.TypeLogon:
		d.Activity = domain.NormalizeActivity(rec.Activity)
		if d.Activity != domain.ActivityLogon && d.Activity != domain.ActivityLogoff {
			return nil, invalid("activity", "must be Logon or Logoff")
		}
	case domain.TypeDevice:
		d.Activity = domain.NormalizeActivity(rec.Activity)
		if d.Activity != domain.ActivityConnect && d.Activity != domain.ActivityDisconnect {
			return nil, invalid("activity", "must be Connect or Disconnect")
		}
	case domain.TypeFile:
		if d.Filename = strings.TrimSpace(rec.Filename); d.Filename == "" {
			return nil, invalid("filename", "required")
		}
	}
	return ev, nil
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("required")
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported format %q", s)
}

// NormalizeRecipients flattens a recipient field into a ';'-joined list. raw may be a JSON string
// or an array of strings; surrounding brackets are stripped, entries are split on ';', ',' and
// whitespace, and duplicates are dropped keeping first occurrence. null and blank yield "".
func NormalizeRecipients(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var joined string
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, v := range list {
			if v == nil {
				continue
			}
			if s := fmt.Sprint(v); s != "" {
				parts = append(parts, s)
			}
		}
		joined = strings.Join(parts, ";")
	} else if err := json.Unmarshal(raw, &joined); err != nil {
		return "", fmt.Errorf("must be a string or a list of strings")
	}

	joined = recipientWrap.ReplaceAllString(strings.TrimSpace(joined), "")
	seen := make(map[string]struct{})
	var uniq []string
	for _, p := range recipientSplit.Split(joined, -1) {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		uniq = append(uniq, p)
	}
	return strings.Join(uniq, ";"), nil
}
