package features

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"insiderwatch/backend/internal/event/domain"
)

// Input errors reject a whole Encode call.
var (
	ErrUnknownUser  = errors.New("features: unknown user")
	ErrInvalidEvent = errors.New("features: invalid event")
)

// Activity codes.
const (
	ActLogon      = 1
	ActLogoff     = 2
	ActConnect    = 3
	ActDisconnect = 4
	ActHTTP       = 5
	ActEmail      = 6
	ActFile       = 7
)

// Endpoint relation codes.
const (
	PCOwn        = 0
	PCShared     = 1
	PCOther      = 2
	PCSupervisor = 3
)

// Time buckets.
const (
	TimeWorkday      = 1
	TimeAfterHours   = 2
	TimeWeekend      = 3
	TimeWeekendAfter = 4
)

// dayZero is the Monday that day numbers count from.
var dayZero = time.Date(2009, time.December, 28, 0, 0, 0, 0, time.UTC)

// EncodedColumns is the fixed column order of an EncodedRow.
var EncodedColumns = []string{
	"user", "day", "act", "pc", "time", "usb_dur",
	"file_type", "file_len", "file_nwords", "disk", "file_depth",
	"http_type", "url_len", "url_depth", "http_c_len", "http_c_nwords",
	"n_des", "n_atts", "Xemail", "n_exdes", "n_bccdes", "exbccmail",
	"email_size", "email_text_slen", "email_text_nwords",
}

// EncodedRow is the numeric form of one standardized event.
type EncodedRow struct {
	EventID    string
	EndpointID string
	Timestamp  time.Time

	User   string
	Day    int
	Act    int
	PC     int
	Time   int
	USBDur int

	FileType   int
	FileLen    int
	FileNWords int
	Disk       int
	FileDepth  int

	HTTPType    int
	URLLen      int
	URLDepth    int
	HTTPCLen    int
	HTTPCNWords int

	NDes            int
	NAtts           int
	XEmail          int
	NExDes          int
	NBccDes         int
	ExBccMail       int
	EmailSize       int
	EmailTextSLen   int
	EmailTextNWords int
}

// Column returns the numeric value of a column of EncodedColumns (user excluded) and whether it exists.
func (r *EncodedRow) Column(name string) (float64, bool) {
	var v int
	switch name {
	case "day":
		v = r.Day
	case "act":
		v = r.Act
	case "pc":
		v = r.PC
	case "time":
		v = r.Time
	case "usb_dur":
		v = r.USBDur
	case "file_type":
		v = r.FileType
	case "file_len":
		v = r.FileLen
	case "file_nwords":
		v = r.FileNWords
	case "disk":
		v = r.Disk
	case "file_depth":
		v = r.FileDepth
	case "http_type":
		v = r.HTTPType
	case "url_len":
		v = r.URLLen
	case "url_depth":
		v = r.URLDepth
	case "http_c_len":
		v = r.HTTPCLen
	case "http_c_nwords":
		v = r.HTTPCNWords
	case "n_des":
		v = r.NDes
	case "n_atts":
		v = r.NAtts
	case "Xemail":
		v = r.XEmail
	case "n_exdes":
		v = r.NExDes
	case "n_bccdes":
		v = r.NBccDes
	case "exbccmail":
		v = r.ExBccMail
	case "email_size":
		v = r.EmailSize
	case "email_text_slen":
		v = r.EmailTextSLen
	case "email_text_nwords":
		v = r.EmailTextNWords
	default:
		return 0, false
	}
	return float64(v), true
}

// Relationship is what the encoder knows about one employee.
type Relationship struct {
	OwnPC        string
	SharedPCs    []string
	SupervisorID string
	ITAdmin      bool
}

// RelationshipTable maps employee id to relationship. Supervisor endpoints resolve through the same table.
type RelationshipTable map[string]Relationship

// Relation returns the endpoint relation code of endpointID for userID.
func (t RelationshipTable) Relation(userID, endpointID string) int {
	rel := t[userID]
	if rel.OwnPC != "" && endpointID == rel.OwnPC {
		return PCOwn
	}
	for _, pc := range rel.SharedPCs {
		if pc == endpointID {
			return PCShared
		}
	}
	if rel.SupervisorID != "" {
		if sup, ok := t[rel.SupervisorID]; ok && sup.OwnPC != "" && sup.OwnPC == endpointID {
			return PCSupervisor
		}
	}
	return PCOther
}

// Encoder turns standardized events into EncodedRows.
type Encoder struct {
	loc *time.Location
}

// NewEncoder returns an Encoder evaluating weekends and working hours in loc (UTC when nil).
func NewEncoder(loc *time.Location) *Encoder {
	if loc == nil {
		loc = time.UTC
	}
	return &Encoder{loc: loc}
}

// Encode returns exactly one row per event, in input order. emailDomain is the organization's
// internal mail domain. Any unknown user, unknown type or unrecognized logon/device activity
// fails the whole call.
func (e *Encoder) Encode(events []domain.StandardizedEvent, rel RelationshipTable, emailDomain string) ([]EncodedRow, error) {
	acts := make([]int, len(events))
	for i := range events {
		ev := &events[i]
		if _, ok := rel[ev.UserID]; !ok {
			return nil, fmt.Errorf("%w: %q (event %s)", ErrUnknownUser, ev.UserID, ev.EventID)
		}
		act, err := activityCode(ev)
		if err != nil {
			return nil, err
		}
		acts[i] = act
	}

	durations := connectDurations(events, acts)
	emailDomain = strings.ToLower(strings.TrimSpace(emailDomain))

	rows := make([]EncodedRow, len(events))
	for i := range events {
		ev := &events[i]
		local := ev.Timestamp.In(e.loc)
		row := EncodedRow{
			EventID:    ev.EventID,
			EndpointID: ev.EndpointID,
			Timestamp:  ev.Timestamp,
			User:       ev.UserID,
			Day:        DayNumber(local),
			Act:        acts[i],
			PC:         rel.Relation(ev.UserID, ev.EndpointID),
			Time:       TimeBucket(local),
		}
		switch ev.Type {
		case domain.TypeDevice:
			if acts[i] == ActConnect {
				row.USBDur = durations[i]
			}
		case domain.TypeFile:
			if ev.HasDetail {
				row.FileType = FileCategory(ev.URLOrFilename)
			}
		case domain.TypeHTTP:
			if ev.HasDetail {
				row.HTTPType = URLCategory(ev.URLOrFilename)
				row.URLLen = len(ev.URLOrFilename)
				row.URLDepth = URLDepth(ev.URLOrFilename)
			}
		case domain.TypeEmail:
			if ev.HasDetail {
				encodeEmail(&row, ev, emailDomain)
			}
		}
		rows[i] = row
	}
	return rows, nil
}

func activityCode(ev *domain.StandardizedEvent) (int, error) {
	switch ev.Type {
	case domain.TypeHTTP:
		return ActHTTP, nil
	case domain.TypeEmail:
		return ActEmail, nil
	case domain.TypeFile:
		return ActFile, nil
	case domain.TypeLogon, domain.TypeDevice:
		if !ev.HasDetail {
			if ev.Type == domain.TypeLogon {
				return ActLogon, nil
			}
			return ActConnect, nil
		}
		act := domain.NormalizeActivity(ev.Activity)
		switch {
		case ev.Type == domain.TypeLogon && act == domain.ActivityLogon:
			return ActLogon, nil
		case ev.Type == domain.TypeLogon && act == domain.ActivityLogoff:
			return ActLogoff, nil
		case ev.Type == domain.TypeDevice && act == domain.ActivityConnect:
			return ActConnect, nil
		case ev.Type == domain.TypeDevice && act == domain.ActivityDisconnect:
			return ActDisconnect, nil
		}
		return 0, fmt.Errorf("%w: %s activity %q (event %s)", ErrInvalidEvent, ev.Type, ev.Activity, ev.EventID)
	}
	return 0, fmt.Errorf("%w: type %q (event %s)", ErrInvalidEvent, ev.Type, ev.EventID)
}

// connectDurations returns, for every connect event with a detail row, the whole seconds until the
// next device event of the same user and endpoint when that event is a disconnect, else -1.
// Other indices are 0.
func connectDurations(events []domain.StandardizedEvent, acts []int) []int {
	type key struct{ user, endpoint string }
	groups := make(map[key][]int)
	for i := range events {
		if events[i].Type != domain.TypeDevice {
			continue
		}
		k := key{events[i].UserID, events[i].EndpointID}
		groups[k] = append(groups[k], i)
	}

	out := make([]int, len(events))
	for _, idx := range groups {
		sort.SliceStable(idx, func(a, b int) bool {
			return events[idx[a]].Timestamp.Before(events[idx[b]].Timestamp)
		})
		// next is the device event immediately after position j, -1 when none.
		next := -1
		for j := len(idx) - 1; j >= 0; j-- {
			cur := idx[j]
			if acts[cur] == ActConnect && events[cur].HasDetail {
				out[cur] = -1
				if next >= 0 && acts[next] == ActDisconnect {
					out[cur] = int(events[next].Timestamp.Sub(events[cur].Timestamp) / time.Second)
				}
			}
			next = cur
		}
	}
	return out
}

func encodeEmail(row *EncodedRow, ev *domain.StandardizedEvent, orgDomain string) {
	receivers := splitAddresses(ev.To + ";" + ev.Cc)
	bcc := splitAddresses(ev.Bcc)

	external := 0
	for _, addr := range append(append([]string{}, receivers...), bcc...) {
		if !isInternal(addr, orgDomain) {
			external++
		}
	}
	for _, addr := range bcc {
		if !isInternal(addr, orgDomain) {
			row.ExBccMail = 1
			break
		}
	}
	row.NDes = len(receivers) + len(bcc)
	row.NBccDes = len(bcc)
	row.NExDes = external
	if external > 0 {
		row.XEmail = 1
	}
	row.NAtts = ev.Attachments
	row.EmailSize = ev.Size
}

// splitAddresses splits a semicolon-separated list, trimming, lower-casing and deduplicating.
func splitAddresses(s string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, part := range strings.Split(s, ";") {
		addr := strings.ToLower(strings.TrimSpace(part))
		if addr == "" {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}

// isInternal reports whether addr's domain is orgDomain or a subdomain of it.
func isInternal(addr, orgDomain string) bool {
	if orgDomain == "" {
		return false
	}
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return false
	}
	d := addr[at+1:]
	return d == orgDomain || strings.HasSuffix(d, "."+orgDomain)
}

// IsWeekend reports whether t falls on Saturday or Sunday in its own location.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsAfterHours reports whether t's time of day is strictly before 07:30 or strictly after 17:30.
func IsAfterHours(t time.Time) bool {
	minutes := t.Hour()*60 + t.Minute()
	const open, closing = 7*60 + 30, 17*60 + 30
	if minutes < open {
		return true
	}
	return minutes > closing || (minutes == closing && (t.Second() > 0 || t.Nanosecond() > 0))
}

// TimeBucket combines IsWeekend and IsAfterHours into a time code.
func TimeBucket(t time.Time) int {
	switch weekend, after := IsWeekend(t), IsAfterHours(t); {
	case !weekend && !after:
		return TimeWorkday
	case !weekend && after:
		return TimeAfterHours
	case weekend && !after:
		return TimeWeekend
	default:
		return TimeWeekendAfter
	}
}

// DayNumber is the number of calendar days between 2009-12-28 and t's local date.
func DayNumber(t time.Time) int {
	date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(date.Sub(dayZero).Hours() / 24)
}
