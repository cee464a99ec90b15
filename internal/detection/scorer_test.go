package detection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insiderwatch/backend/internal/detection/cache"
	"insiderwatch/backend/internal/detection/classifier"
	"insiderwatch/backend/internal/detection/domain"
	empdomain "insiderwatch/backend/internal/employee/domain"
	evdomain "insiderwatch/backend/internal/event/domain"
	"insiderwatch/backend/internal/features"
	orgdomain "insiderwatch/backend/internal/organization/domain"
)

const testOrg = "0b7c6a52-0c53-4a1b-9d2e-0d7f4ad0f0a1"

type mockEvents struct {
	events  []*evdomain.RawEvent
	details map[string]*evdomain.Detail
}

func (m *mockEvents) ListByPeriod(_ context.Context, start, end time.Time) ([]*evdomain.RawEvent, error) {
	var out []*evdomain.RawEvent
	for _, ev := range m.events {
		if !ev.Timestamp.Before(start) && ev.Timestamp.Before(end) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *mockEvents) DetailsByEventIDs(_ context.Context, _ evdomain.Type, ids []string) (map[string]*evdomain.Detail, error) {
	out := make(map[string]*evdomain.Detail)
	for _, id := range ids {
		if d, ok := m.details[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

type mockEmployees struct {
	mu        sync.Mutex
	employees []*empdomain.Employee
	flags     map[string]bool
	writes    int
}

func (m *mockEmployees) ListByOrg(context.Context, string) ([]*empdomain.Employee, error) {
	return m.employees, nil
}

func (m *mockEmployees) SetAnomalyFlags(_ context.Context, _ string, flags map[string]bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.flags = flags
	return nil
}

type mockOrgs struct{}

func (mockOrgs) GetByID(_ context.Context, id string) (*orgdomain.Organization, error) {
	if id != testOrg {
		return nil, nil
	}
	return &orgdomain.Organization{ID: id, Name: "DTAA", EmailDomain: "dtaa.com"}, nil
}

type mockHistory struct {
	mu      sync.Mutex
	stored  map[string]*domain.History
	creates int
	err     error
}

func (m *mockHistory) key(org string, start, end time.Time) string {
	return cache.Key(org, start, end)
}

func (m *mockHistory) GetByPeriod(_ context.Context, org string, start, end time.Time) (*domain.History, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stored[m.key(org, start, end)], nil
}

func (m *mockHistory) Create(_ context.Context, h *domain.History) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.err != nil {
		return m.err
	}
	if m.stored == nil {
		m.stored = make(map[string]*domain.History)
	}
	m.stored[m.key(h.OrganizationID, h.StartDate, h.EndDate)] = h
	return nil
}

func (m *mockHistory) ListByOrg(context.Context, string, int) ([]*domain.History, error) {
	return nil, nil
}

// countingClassifier predicts class 2 for users listed in anomalous and 0 otherwise.
type countingClassifier struct {
	loads    atomic.Int32
	predicts atomic.Int32
	names    []string
	userOf   func(row []float64) string
	block    chan struct{}
	loadErr  error
}

func (c *countingClassifier) Load(context.Context) (*classifier.Model, error) {
	c.loads.Add(1)
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	names := c.names
	if names == nil {
		names = features.ClassifierColumns()
	}
	return &classifier.Model{Name: "rf", Version: "1", Classes: []int{0, 1, 2, 3}, FeatureNames: names}, nil
}

func (c *countingClassifier) Predict(ctx context.Context, rows [][]float64) (*classifier.Prediction, error) {
	c.predicts.Add(1)
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p := &classifier.Prediction{}
	for _, row := range rows {
		// Users with any after-hours activity are scored anomalous.
		if row[3+afterhourIndex()] > 0 {
			p.Classes = append(p.Classes, 2)
			p.Probabilities = append(p.Probabilities, []float64{0.1, 0.1, 0.7, 0.1})
		} else {
			p.Classes = append(p.Classes, 0)
			p.Probabilities = append(p.Probabilities, []float64{0.9, 0.05, 0.05, 0})
		}
	}
	return p, nil
}

func afterhourIndex() int {
	for i, n := range features.FeatureNames() {
		if n == "n_afterhourallact" {
			return i
		}
	}
	return -1
}

type fixture struct {
	scorer     *Scorer
	employees  *mockEmployees
	history    *mockHistory
	classifier *countingClassifier
	start, end time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	start := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
	ev := func(id, user string, ts time.Time) *evdomain.RawEvent {
		return &evdomain.RawEvent{EventID: id, UserID: user, EndpointID: "PC-" + user, Timestamp: ts, Type: evdomain.TypeLogon}
	}
	events := &mockEvents{
		events: []*evdomain.RawEvent{
			ev("e1", "ACM2278", start.Add(24*time.Hour+9*time.Hour)),
			ev("e2", "ACM2278", start.Add(24*time.Hour+23*time.Hour)),
			ev("e3", "CMP2946", start.Add(48*time.Hour+10*time.Hour)),
			ev("e4", "OUTSIDER", start.Add(48*time.Hour+23*time.Hour)),
		},
		details: map[string]*evdomain.Detail{
			"e1": {EventID: "e1", Activity: "Logon"},
			"e2": {EventID: "e2", Activity: "Logon"},
			"e3": {EventID: "e3", Activity: "Logon"},
			"e4": {EventID: "e4", Activity: "Logon"},
		},
	}
	employees := &mockEmployees{employees: []*empdomain.Employee{
		{ID: "ACM2278", OrganizationID: testOrg, AssignedPCID: "PC-ACM2278", Role: "Engineer"},
		{ID: "CMP2946", OrganizationID: testOrg, AssignedPCID: "PC-CMP2946", Role: "ITAdmin"},
	}}
	history := &mockHistory{}
	cls := &countingClassifier{}
	s := NewScorer(Deps{
		Events:        events,
		Employees:     employees,
		Organizations: mockOrgs{},
		History:       history,
		Classifier:    cls,
	}, Config{Location: time.UTC, CacheTTL: time.Hour})
	return &fixture{scorer: s, employees: employees, history: history, classifier: cls, start: start, end: start.AddDate(0, 0, 7)}
}

func TestRun_ScoresAndWritesBack(t *testing.T) {
	f := newFixture(t)
	results, err := f.scorer.Run(context.Background(), testOrg, f.start, f.end)
	require.NoError(t, err)

	require.Len(t, results, 1)
	r, ok := results["ACM2278"]
	require.True(t, ok)
	assert.Equal(t, 2, r.PredClass)
	assert.InDelta(t, 0.9, r.PAnomaly, 1e-9)
	assert.InDelta(t, 0.7, r.PTop, 1e-9)
	assert.Len(t, r.Proba, 4)

	assert.Equal(t, map[string]bool{"ACM2278": true, "CMP2946": false}, f.employees.flags)
	assert.Equal(t, 1, f.history.creates)
}

func TestRun_Idempotent(t *testing.T) {
	f := newFixture(t)
	first, err := f.scorer.Run(context.Background(), testOrg, f.start, f.end)
	require.NoError(t, err)
	second, err := f.scorer.Run(context.Background(), testOrg, f.start, f.end)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, f.classifier.predicts.Load())
	assert.Equal(t, 1, f.history.creates)
	assert.Equal(t, 1, f.employees.writes)
}

func TestRun_ServedFromHistoryWhenCacheIsCold(t *testing.T) {
	f := newFixture(t)
	_, err := f.scorer.Run(context.Background(), testOrg, f.start, f.end)
	require.NoError(t, err)

	// A fresh scorer shares the history table but not the cache.
	fresh := NewScorer(Deps{
		Events: &mockEvents{}, Employees: f.employees, Organizations: mockOrgs{},
		History: f.history, Classifier: f.classifier,
	}, Config{})
	results, err := fresh.Run(context.Background(), testOrg, f.start, f.end)
	require.NoError(t, err)
	assert.Contains(t, results, "ACM2278")
	assert.EqualValues(t, 1, f.classifier.predicts.Load())
}

func TestRun_ConcurrentCallsShareOneComputation(t *testing.T) {
	f := newFixture(t)
	f.classifier.block = make(chan struct{})

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.scorer.Run(context.Background(), testOrg, f.start, f.end)
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(f.classifier.block)
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, f.classifier.predicts.Load())
	assert.Equal(t, 1, f.history.creates)
}

func TestRun_CancelledCallerDoesNotFailSharedComputation(t *testing.T) {
	f := newFixture(t)
	f.classifier.block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.scorer.Run(ctx, testOrg, f.start, f.end)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return f.classifier.predicts.Load() == 1 }, time.Second, 5*time.Millisecond)

	type outcome struct {
		results domain.Results
		err     error
	}
	second := make(chan outcome, 1)
	go func() {
		r, err := f.scorer.Run(context.Background(), testOrg, f.start, f.end)
		second <- outcome{r, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(f.classifier.block)
	select {
	case got := <-second:
		require.NoError(t, got.err)
		assert.Contains(t, got.results, "ACM2278")
	case <-time.After(time.Second):
		t.Fatal("second caller did not return")
	}
	assert.EqualValues(t, 1, f.classifier.predicts.Load())
	assert.Equal(t, 1, f.history.creates)
}

func TestRun_EmptyWindow(t *testing.T) {
	f := newFixture(t)
	start := f.start.AddDate(0, 0, -14)
	results, err := f.scorer.Run(context.Background(), testOrg, start, start.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.EqualValues(t, 0, f.classifier.loads.Load())
	assert.Equal(t, 0, f.history.creates)
	assert.Equal(t, 0, f.employees.writes)
}

func TestRun_SchemaMismatchPersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.classifier.names = append([]string{"user"}, features.ClassifierColumns()...)

	_, err := f.scorer.Run(context.Background(), testOrg, f.start, f.end)
	require.ErrorIs(t, err, ErrSchemaMismatch)
	assert.EqualValues(t, 0, f.classifier.predicts.Load())
	assert.Equal(t, 0, f.history.creates)
	assert.Equal(t, 0, f.employees.writes)
}

func TestRun_ClassifierUnavailable(t *testing.T) {
	f := newFixture(t)
	f.classifier.loadErr = classifier.ErrUnavailable
	_, err := f.scorer.Run(context.Background(), testOrg, f.start, f.end)
	assert.ErrorIs(t, err, ErrClassifierUnavailable)
	assert.Equal(t, 0, f.history.creates)
}

func TestRun_HistoryFailureStillReturnsResults(t *testing.T) {
	f := newFixture(t)
	f.history.err = errors.New("disk full")
	results, err := f.scorer.Run(context.Background(), testOrg, f.start, f.end)
	require.NoError(t, err)
	assert.Contains(t, results, "ACM2278")
	assert.Equal(t, 1, f.employees.writes)
}

func TestRun_InvalidInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.scorer.Run(context.Background(), "", f.start, f.end)
	assert.ErrorIs(t, err, ErrInvalidWindow)
	_, err = f.scorer.Run(context.Background(), testOrg, f.end, f.start)
	assert.ErrorIs(t, err, ErrInvalidWindow)
	_, err = f.scorer.Run(context.Background(), "unknown-org", f.start, f.end)
	assert.ErrorIs(t, err, ErrOrganizationNotFound)
}

func TestWorse(t *testing.T) {
	normal := domain.Result{PredClass: 0, PAnomaly: 0.4}
	anomalous := domain.Result{PredClass: 1, PAnomaly: 0.3}
	stronger := domain.Result{PredClass: 3, PAnomaly: 0.8}
	assert.True(t, worse(anomalous, normal))
	assert.False(t, worse(normal, anomalous))
	assert.True(t, worse(stronger, anomalous))
}
