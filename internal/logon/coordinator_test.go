package logon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insiderwatch/backend/internal/alert"
	blockingdomain "insiderwatch/backend/internal/blocking/domain"
	empdomain "insiderwatch/backend/internal/employee/domain"
	endpointdomain "insiderwatch/backend/internal/endpoint/domain"
	"insiderwatch/backend/internal/policy/engine"
)

var logonTime = time.Date(2024, 1, 8, 23, 0, 0, 0, time.UTC)

// steps records the order in which collaborators are called.
type steps struct {
	mu  sync.Mutex
	log []string
}

func (s *steps) add(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, step)
}

func (s *steps) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.log...)
}

type fakeEndpoints struct {
	steps    *steps
	state    endpointdomain.PresenceState
	present  string
	err      error
	notFound bool
}

func (f *fakeEndpoints) GetByID(_ context.Context, id string) (*endpointdomain.Endpoint, error) {
	return &endpointdomain.Endpoint{ID: id, OrganizationID: "org-1"}, nil
}

func (f *fakeEndpoints) UpdatePresence(_ context.Context, _ string, state endpointdomain.PresenceState, present string) (bool, error) {
	f.steps.add("presence")
	if f.err != nil {
		return false, f.err
	}
	f.state, f.present = state, present
	return !f.notFound, nil
}

type fakeEmployees map[string]*empdomain.Employee

func (f fakeEmployees) GetByID(_ context.Context, id string) (*empdomain.Employee, error) {
	return f[id], nil
}

type fakePolicy struct {
	decision engine.Decision
	err      error
}

func (f fakePolicy) EvaluateContainment(_ context.Context, in engine.ContainmentInput) (engine.Decision, error) {
	if f.err != nil {
		return engine.Decision{Block: in.AnomalyFlag, Notify: in.AnomalyFlag}, f.err
	}
	return f.decision, nil
}

type fakeAccess struct {
	steps *steps
	ok    bool
	panic bool
}

func (f *fakeAccess) SetAccess(_ context.Context, _ string, allow bool) bool {
	f.steps.add("block")
	if f.panic {
		panic("ssh exploded")
	}
	return f.ok && !allow
}

type fakeBlocking struct {
	steps   *steps
	records []*blockingdomain.BlockingRecord
	err     error
}

func (f *fakeBlocking) Create(_ context.Context, r *blockingdomain.BlockingRecord) error {
	f.steps.add("record")
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, r)
	return nil
}

type fakeNotifier struct {
	steps      *steps
	alerts     []alert.Alert
	mu         sync.Mutex
	emailErr   error
	panicEmail bool
}

func (f *fakeNotifier) Broadcast(_ context.Context, a alert.Alert) int {
	f.steps.add("broadcast")
	f.mu.Lock()
	f.alerts = append(f.alerts, a)
	f.mu.Unlock()
	return 2
}

func (f *fakeNotifier) Email(context.Context, alert.Alert) error {
	f.steps.add("email")
	if f.panicEmail {
		panic("smtp exploded")
	}
	return f.emailErr
}

type fakeAudit struct {
	actions []string
}

func (f *fakeAudit) LogEvent(_ context.Context, _, _, action, _, _ string) {
	f.actions = append(f.actions, action)
}

type fixture struct {
	steps     *steps
	endpoints *fakeEndpoints
	access    *fakeAccess
	blocking  *fakeBlocking
	notifier  *fakeNotifier
	audit     *fakeAudit
	policy    fakePolicy
}

func newFixture() *fixture {
	s := &steps{}
	return &fixture{
		steps:     s,
		endpoints: &fakeEndpoints{steps: s},
		access:    &fakeAccess{steps: s, ok: true},
		blocking:  &fakeBlocking{steps: s},
		notifier:  &fakeNotifier{steps: s},
		audit:     &fakeAudit{},
		policy:    fakePolicy{decision: engine.Decision{Block: true, Notify: true}},
	}
}

func (f *fixture) coordinator() *Coordinator {
	c := NewCoordinator(Deps{
		Endpoints: f.endpoints,
		Employees: fakeEmployees{
			"ACM2278": {ID: "ACM2278", OrganizationID: "org-1", AnomalyFlag: true},
			"CMP2946": {ID: "CMP2946", OrganizationID: "org-1"},
		},
		Policy:   f.policy,
		Access:   f.access,
		Blocking: f.blocking,
		Notifier: f.notifier,
		Audit:    f.audit,
	})
	c.nowF = func() time.Time { return logonTime.Add(2 * time.Second) }
	return c
}

func logonEvent(user, activity string) Event {
	return Event{EventID: "{A1B2-C3D4E5F6-G7H8I9J0}", UserID: user, EndpointID: "PC-1", Activity: activity, Timestamp: logonTime}
}

func TestHandle_FlaggedLogonContainsInOrder(t *testing.T) {
	f := newFixture()
	out := f.coordinator().Handle(context.Background(), logonEvent("ACM2278", "Logon"))

	require.NoError(t, out.Err)
	assert.Equal(t, endpointdomain.StateLoggedIn, f.endpoints.state)
	assert.Equal(t, "ACM2278", f.endpoints.present)
	assert.True(t, out.Flagged)
	assert.True(t, out.Blocked)
	assert.True(t, out.Recorded)
	assert.True(t, out.Emailed)
	assert.Equal(t, 2, out.Delivered)

	got := f.steps.list()
	require.Len(t, got, 5)
	assert.Equal(t, []string{"presence", "block", "record"}, got[:3])
	assert.ElementsMatch(t, []string{"broadcast", "email"}, got[3:])

	require.Len(t, f.blocking.records, 1)
	rec := f.blocking.records[0]
	assert.Equal(t, "org-1", rec.OrganizationID)
	assert.Equal(t, logonTime, rec.LogonTime)
	assert.Equal(t, logonTime.Add(2*time.Second), rec.BlockTime)

	require.Len(t, f.notifier.alerts, 1)
	assert.Equal(t, alert.TypeAnomalyUserLogon, f.notifier.alerts[0].Type)
	assert.Equal(t, "PC-1", f.notifier.alerts[0].EndpointID)
	assert.Equal(t, []string{"auto_block"}, f.audit.actions)
}

func TestHandle_RecordsEvenWhenBlockFails(t *testing.T) {
	f := newFixture()
	f.access.ok = false
	out := f.coordinator().Handle(context.Background(), logonEvent("ACM2278", "logon"))

	assert.False(t, out.Blocked)
	assert.True(t, out.Recorded)
	require.Len(t, f.notifier.alerts, 1)
	assert.False(t, f.notifier.alerts[0].Blocked)
}

func TestHandle_NotFlagged(t *testing.T) {
	f := newFixture()
	out := f.coordinator().Handle(context.Background(), logonEvent("CMP2946", "Logon"))

	require.NoError(t, out.Err)
	assert.False(t, out.Flagged)
	assert.Equal(t, []string{"presence"}, f.steps.list())
}

func TestHandle_UnknownEmployee(t *testing.T) {
	f := newFixture()
	out := f.coordinator().Handle(context.Background(), logonEvent("NOBODY", "Logon"))
	assert.False(t, out.Flagged)
	assert.Equal(t, []string{"presence"}, f.steps.list())
}

func TestHandle_FlaggedLogoffOnlyUpdatesPresence(t *testing.T) {
	f := newFixture()
	f.endpoints.present = "ACM2278"
	out := f.coordinator().Handle(context.Background(), logonEvent("ACM2278", "Logoff"))

	require.NoError(t, out.Err)
	assert.Equal(t, endpointdomain.StateLoggedOut, out.State)
	assert.Equal(t, "", f.endpoints.present)
	assert.Equal(t, []string{"presence"}, f.steps.list())
}

func TestHandle_PolicyNotifyOnly(t *testing.T) {
	f := newFixture()
	f.policy = fakePolicy{decision: engine.Decision{Notify: true}}
	out := f.coordinator().Handle(context.Background(), logonEvent("ACM2278", "Logon"))

	assert.False(t, out.Blocked)
	assert.False(t, out.Recorded)
	assert.ElementsMatch(t, []string{"presence", "broadcast", "email"}, f.steps.list())
	assert.Empty(t, f.audit.actions)
}

func TestHandle_PolicyErrorUsesDefault(t *testing.T) {
	f := newFixture()
	f.policy = fakePolicy{err: errors.New("rego eval")}
	out := f.coordinator().Handle(context.Background(), logonEvent("ACM2278", "Logon"))
	assert.True(t, out.Blocked)
	assert.True(t, out.Emailed)
}

func TestHandle_FailuresAreContained(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*fixture)
		check  func(*testing.T, Outcome, *fixture)
	}{
		{
			name:   "presence store error",
			mutate: func(f *fixture) { f.endpoints.err = errors.New("db down") },
			check: func(t *testing.T, out Outcome, f *fixture) {
				assert.False(t, out.PresenceUpdated)
				assert.True(t, out.Blocked)
			},
		},
		{
			name:   "blocking record error",
			mutate: func(f *fixture) { f.blocking.err = errors.New("db down") },
			check: func(t *testing.T, out Outcome, f *fixture) {
				assert.False(t, out.Recorded)
				assert.True(t, out.Emailed)
				assert.Equal(t, 2, out.Delivered)
			},
		},
		{
			name:   "email error",
			mutate: func(f *fixture) { f.notifier.emailErr = errors.New("smtp 554") },
			check: func(t *testing.T, out Outcome, f *fixture) {
				assert.False(t, out.Emailed)
				assert.Equal(t, 2, out.Delivered)
				assert.NoError(t, out.Err)
			},
		},
		{
			name:   "email panic",
			mutate: func(f *fixture) { f.notifier.panicEmail = true },
			check: func(t *testing.T, out Outcome, f *fixture) {
				assert.False(t, out.Emailed)
				assert.Equal(t, 2, out.Delivered)
				assert.NoError(t, out.Err)
			},
		},
		{
			name:   "block panic",
			mutate: func(f *fixture) { f.access.panic = true },
			check: func(t *testing.T, out Outcome, f *fixture) {
				require.Error(t, out.Err)
				assert.Contains(t, out.Err.Error(), "panic")
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			tc.mutate(f)
			var out Outcome
			assert.NotPanics(t, func() {
				out = f.coordinator().Handle(context.Background(), logonEvent("ACM2278", "Logon"))
			})
			tc.check(t, out, f)
		})
	}
}

func TestHandle_UnsupportedActivity(t *testing.T) {
	f := newFixture()
	out := f.coordinator().Handle(context.Background(), logonEvent("ACM2278", "Connect"))
	assert.Error(t, out.Err)
	assert.Empty(t, f.steps.list())
}
