// Package logon reacts to logon-channel events: it tracks endpoint presence and contains
// endpoints when a flagged employee logs on.
package logon

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"insiderwatch/backend/internal/alert"
	"insiderwatch/backend/internal/audit"
	blockingdomain "insiderwatch/backend/internal/blocking/domain"
	empdomain "insiderwatch/backend/internal/employee/domain"
	endpointdomain "insiderwatch/backend/internal/endpoint/domain"
	evdomain "insiderwatch/backend/internal/event/domain"
	"insiderwatch/backend/internal/logger"
	"insiderwatch/backend/internal/policy/engine"
)

// Event is a logon or logoff of UserID on EndpointID.
type Event struct {
	EventID    string
	UserID     string
	EndpointID string
	Activity   string
	Timestamp  time.Time
}

// FromNewEvent converts an ingested logon-channel event.
func FromNewEvent(e *evdomain.NewEvent) Event {
	return Event{
		EventID:    e.EventID,
		UserID:     e.UserID,
		EndpointID: e.EndpointID,
		Activity:   e.Detail.Activity,
		Timestamp:  e.Timestamp,
	}
}

// Outcome reports what handling one event did.
type Outcome struct {
	EventID         string
	State           endpointdomain.PresenceState
	PresenceUpdated bool
	Flagged         bool
	Decision        engine.Decision
	Blocked         bool
	Recorded        bool
	Delivered       int
	Emailed         bool
	// Err is the first failure that stopped handling early, including a recovered panic.
	Err error
}

// EndpointStore resolves endpoints and stores presence.
type EndpointStore interface {
	GetByID(ctx context.Context, id string) (*endpointdomain.Endpoint, error)
	UpdatePresence(ctx context.Context, id string, state endpointdomain.PresenceState, presentUserID string) (bool, error)
}

// EmployeeStore resolves employees.
type EmployeeStore interface {
	GetByID(ctx context.Context, id string) (*empdomain.Employee, error)
}

// AccessController blocks and unblocks endpoints.
type AccessController interface {
	SetAccess(ctx context.Context, endpointID string, allow bool) bool
}

// BlockingStore appends blocking records.
type BlockingStore interface {
	Create(ctx context.Context, r *blockingdomain.BlockingRecord) error
}

// Notifier delivers alerts.
type Notifier interface {
	Broadcast(ctx context.Context, a alert.Alert) int
	Email(ctx context.Context, a alert.Alert) error
}

// Deps are the collaborators of a Coordinator. Audit may be nil.
type Deps struct {
	Endpoints EndpointStore
	Employees EmployeeStore
	Policy    engine.Evaluator
	Access    AccessController
	Blocking  BlockingStore
	Notifier  Notifier
	Audit     audit.AuditLogger
}

// Coordinator is the presence state machine plus the containment workflow.
type Coordinator struct {
	deps Deps
	nowF func() time.Time
}

// NewCoordinator returns a Coordinator.
func NewCoordinator(deps Deps) *Coordinator {
	return &Coordinator{deps: deps, nowF: time.Now}
}

// Handle applies ev. Failures, including panics, are logged and reported in the Outcome; they
// never propagate to the caller.
func (c *Coordinator) Handle(ctx context.Context, ev Event) (out Outcome) {
	out.EventID = ev.EventID
	log := logger.Get().With(
		zap.String("event_id", ev.EventID),
		zap.String("employee_id", ev.UserID),
		zap.String("pc_id", ev.EndpointID))
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("logon coordinator panic: %v", r)
			log.Error("logon: recovered from panic", zap.Any("panic", r))
		}
	}()

	activity := evdomain.NormalizeActivity(ev.Activity)
	state, present, ok := endpointdomain.Transition(activity, ev.UserID)
	if !ok {
		out.Err = fmt.Errorf("unsupported logon activity %q", ev.Activity)
		log.Warn("logon: ignoring event", zap.Error(out.Err))
		return out
	}
	out.State = state
	updated, err := c.deps.Endpoints.UpdatePresence(ctx, ev.EndpointID, state, present)
	switch {
	case err != nil:
		log.Error("logon: update presence", zap.Error(err))
	case !updated:
		log.Warn("logon: presence not updated, unknown endpoint")
	default:
		out.PresenceUpdated = true
	}
	if activity != evdomain.ActivityLogon {
		return out
	}

	emp, err := c.deps.Employees.GetByID(ctx, ev.UserID)
	if err != nil {
		out.Err = fmt.Errorf("load employee: %w", err)
		log.Error("logon: load employee", zap.Error(err))
		return out
	}
	if emp == nil || !emp.AnomalyFlag {
		return out
	}
	out.Flagged = true

	orgID := emp.OrganizationID
	if ep, err := c.deps.Endpoints.GetByID(ctx, ev.EndpointID); err == nil && ep != nil && ep.OrganizationID != "" {
		orgID = ep.OrganizationID
	}

	decision, err := c.deps.Policy.EvaluateContainment(ctx, engine.ContainmentInput{
		OrganizationID: orgID,
		EmployeeID:     emp.ID,
		Role:           emp.Role,
		ITAdmin:        emp.IsITAdmin(),
		AnomalyFlag:    emp.AnomalyFlag,
		EndpointID:     ev.EndpointID,
		OwnEndpoint:    emp.AssignedPCID == ev.EndpointID,
		Activity:       strings.ToLower(activity),
		Timestamp:      ev.Timestamp,
	})
	if err != nil {
		log.Warn("logon: containment policy failed, using default decision", zap.Error(err))
	}
	out.Decision = decision
	log.Info("logon: flagged employee logged on",
		zap.String("organization_id", orgID),
		zap.Bool("block", decision.Block),
		zap.Bool("notify", decision.Notify))

	if decision.Block {
		out.Blocked = c.deps.Access.SetAccess(ctx, ev.EndpointID, false)
		if !out.Blocked {
			log.Error("logon: endpoint is not guaranteed blocked")
		}
		out.Recorded = c.record(ctx, log, orgID, ev)
		c.audit(ctx, orgID, ev, out.Blocked)
	}
	if decision.Notify {
		out.Delivered, out.Emailed = c.notify(ctx, log, alert.NewLogonAlert(orgID, ev.EndpointID, ev.UserID, ev.Timestamp, out.Blocked))
	}
	return out
}

func (c *Coordinator) record(ctx context.Context, log *zap.Logger, orgID string, ev Event) bool {
	rec := &blockingdomain.BlockingRecord{
		OrganizationID: orgID,
		EndpointID:     ev.EndpointID,
		EmployeeID:     ev.UserID,
		LogonTime:      ev.Timestamp,
		BlockTime:      c.nowF().UTC(),
	}
	if err := c.deps.Blocking.Create(ctx, rec); err != nil {
		log.Error("logon: record blocking", zap.Error(err))
		return false
	}
	return true
}

func (c *Coordinator) audit(ctx context.Context, orgID string, ev Event, blocked bool) {
	if c.deps.Audit == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{
		"pc_id":       ev.EndpointID,
		"employee_id": ev.UserID,
		"event_id":    ev.EventID,
		"blocked":     blocked,
	})
	c.deps.Audit.LogEvent(ctx, orgID, audit.SystemActor, "auto_block", "pc", string(meta))
}

// notify sends the live alert and the email concurrently; one failing does not affect the other.
func (c *Coordinator) notify(ctx context.Context, log *zap.Logger, a alert.Alert) (int, bool) {
	var (
		g         errgroup.Group
		delivered int
		emailed   bool
	)
	g.Go(func() (err error) {
		defer recoverInto(log, "broadcast", &err)
		delivered = c.deps.Notifier.Broadcast(ctx, a)
		return nil
	})
	g.Go(func() (err error) {
		defer recoverInto(log, "email", &err)
		if err := c.deps.Notifier.Email(ctx, a); err != nil {
			log.Error("logon: alert email failed", zap.Error(err))
			return nil
		}
		emailed = true
		return nil
	})
	_ = g.Wait()
	return delivered, emailed
}

func recoverInto(log *zap.Logger, what string, err *error) {
	if r := recover(); r != nil {
		log.Error("logon: recovered from panic", zap.String("step", what), zap.Any("panic", r))
		*err = fmt.Errorf("%s panic: %v", what, r)
	}
}
