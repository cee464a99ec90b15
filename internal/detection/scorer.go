// Package detection scores organizations' weekly behavior vectors and keeps the anomaly flags the
// logon coordinator consults.
package detection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"insiderwatch/backend/internal/detection/cache"
	"insiderwatch/backend/internal/detection/classifier"
	"insiderwatch/backend/internal/detection/domain"
	"insiderwatch/backend/internal/detection/repository"
	empdomain "insiderwatch/backend/internal/employee/domain"
	evdomain "insiderwatch/backend/internal/event/domain"
	"insiderwatch/backend/internal/features"
	"insiderwatch/backend/internal/logger"
	"insiderwatch/backend/internal/metrics"
	orgdomain "insiderwatch/backend/internal/organization/domain"
	"insiderwatch/backend/internal/telemetry"
	teldomain "insiderwatch/backend/internal/telemetry/domain"
)

var (
	// ErrSchemaMismatch means the classifier expects a different feature layout than the pipeline produces.
	ErrSchemaMismatch = errors.New("detection: classifier feature schema mismatch")
	// ErrClassifierUnavailable means the classifier could not be loaded or did not answer.
	ErrClassifierUnavailable = errors.New("detection: classifier unavailable")
	// ErrOrganizationNotFound means the organization id is unknown.
	ErrOrganizationNotFound = errors.New("detection: organization not found")
	// ErrInvalidWindow means the organization id is empty or end is not after start.
	ErrInvalidWindow = errors.New("detection: invalid detection window")
)

// Classifier scores classifier rows.
type Classifier interface {
	Load(ctx context.Context) (*classifier.Model, error)
	Predict(ctx context.Context, rows [][]float64) (*classifier.Prediction, error)
}

// EventStore is the event repository surface the pipeline reads.
type EventStore interface {
	features.EventSource
	features.DetailSource
}

// EmployeeStore lists an organization's employees and stores their anomaly flags.
type EmployeeStore interface {
	ListByOrg(ctx context.Context, orgID string) ([]*empdomain.Employee, error)
	SetAnomalyFlags(ctx context.Context, orgID string, flags map[string]bool) error
}

// OrganizationStore resolves organizations.
type OrganizationStore interface {
	GetByID(ctx context.Context, id string) (*orgdomain.Organization, error)
}

// Config tunes a Scorer.
type Config struct {
	// Location decides weekends, working hours and week boundaries.
	Location *time.Location
	// EmailDomainFallback is used for organizations without an email domain.
	EmailDomainFallback string
	// CacheTTL is how long results stay in the cache.
	CacheTTL time.Duration
}

// Deps are the collaborators of a Scorer. Cache and Emitter may be nil.
type Deps struct {
	Events        EventStore
	Employees     EmployeeStore
	Organizations OrganizationStore
	History       repository.Repository
	Classifier    Classifier
	Cache         cache.Cache
	Emitter       telemetry.EventEmitter
}

// Scorer runs the detection pipeline for one organization and window.
type Scorer struct {
	loader       *features.Loader
	standardizer *features.Standardizer
	encoder      *features.Encoder
	aggregator   *features.Aggregator

	employees  EmployeeStore
	orgs       OrganizationStore
	history    repository.Repository
	classifier Classifier
	cache      cache.Cache
	emitter    telemetry.EventEmitter

	cfg    Config
	group  singleflight.Group
	tracer trace.Tracer
}

// NewScorer wires the feature pipeline to deps.
func NewScorer(deps Deps, cfg Config) *Scorer {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	c := deps.Cache
	if c == nil {
		c = cache.NewMemoryCache()
	}
	return &Scorer{
		loader:       features.NewLoader(deps.Events),
		standardizer: features.NewStandardizer(deps.Events),
		encoder:      features.NewEncoder(cfg.Location),
		aggregator:   features.NewAggregator(cfg.Location),
		employees:    deps.Employees,
		orgs:         deps.Organizations,
		history:      deps.History,
		classifier:   deps.Classifier,
		cache:        c,
		emitter:      deps.Emitter,
		cfg:          cfg,
		tracer:       otel.Tracer("insiderwatch/detection"),
	}
}

// Run returns the anomalous users of orgID for [start, end). A window that was already scored is
// served from the cache or the history table without recomputation. Concurrent calls for the same
// window share one computation, which outlives the cancellation of any single caller.
func (s *Scorer) Run(ctx context.Context, orgID string, start, end time.Time) (domain.Results, error) {
	if orgID == "" || !end.After(start) {
		return nil, ErrInvalidWindow
	}
	key := cache.Key(orgID, start, end)
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.run(shared, orgID, start, end, key)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	results := res.Val.(domain.Results)
	out := make(domain.Results, len(results))
	for user, r := range results {
		out[user] = r
	}
	return out, nil
}

func (s *Scorer) run(ctx context.Context, orgID string, start, end time.Time, key string) (domain.Results, error) {
	ctx, span := s.tracer.Start(ctx, "detection.run", trace.WithAttributes(
		attribute.String("organization_id", orgID),
		attribute.String("start", start.UTC().Format(time.RFC3339)),
		attribute.String("end", end.UTC().Format(time.RFC3339)),
	))
	defer span.End()

	results, ok, err := s.stored(ctx, orgID, start, end, key)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if ok {
		span.SetAttributes(attribute.Bool("cached", true))
		metrics.DetectionRuns.WithLabelValues("cached").Inc()
		return results, nil
	}

	began := time.Now()
	results, err = s.compute(ctx, orgID, start, end, key)
	if err != nil {
		return nil, s.fail(span, err)
	}
	metrics.DetectionDuration.Observe(time.Since(began).Seconds())
	span.SetAttributes(attribute.Int("anomalous_users", len(results)))
	return results, nil
}

func (s *Scorer) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	metrics.DetectionRuns.WithLabelValues("failed").Inc()
	return err
}

// stored looks the window up in the cache, then in the history table.
func (s *Scorer) stored(ctx context.Context, orgID string, start, end time.Time, key string) (domain.Results, bool, error) {
	log := logger.Get()
	results, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warn("detection: cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return results, true, nil
	}

	h, err := s.history.GetByPeriod(ctx, orgID, start, end)
	if err != nil {
		return nil, false, fmt.Errorf("read detection history: %w", err)
	}
	if h == nil {
		return nil, false, nil
	}
	if err := s.cache.Set(ctx, key, h.Results, s.cfg.CacheTTL); err != nil {
		log.Warn("detection: cache write failed", zap.String("key", key), zap.Error(err))
	}
	return h.Results, true, nil
}

func (s *Scorer) compute(ctx context.Context, orgID string, start, end time.Time, key string) (domain.Results, error) {
	log := logger.Get().With(zap.String("organization_id", orgID), zap.Time("start", start), zap.Time("end", end))

	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	if org == nil {
		return nil, ErrOrganizationNotFound
	}
	emailDomain := org.EmailDomain
	if emailDomain == "" {
		emailDomain = s.cfg.EmailDomainFallback
	}

	employees, err := s.employees.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	rel := features.NewRelationshipTable(employees)

	raw, err := s.loader.Load(ctx, start, end)
	if err != nil {
		return nil, err
	}
	raw = restrictToEmployees(raw, rel)
	if len(raw) == 0 {
		log.Info("detection: no activity in window")
		metrics.DetectionRuns.WithLabelValues("empty").Inc()
		return domain.Results{}, nil
	}

	standardized, err := s.standardizer.Standardize(ctx, raw)
	if err != nil {
		return nil, err
	}
	rows, err := s.encoder.Encode(standardized, rel, emailDomain)
	if err != nil {
		return nil, err
	}
	vectors, err := s.aggregator.Aggregate(ctx, rows, rel)
	if err != nil {
		return nil, err
	}

	if s.classifier == nil {
		return nil, fmt.Errorf("%w: no classifier configured", ErrClassifierUnavailable)
	}
	model, err := s.classifier.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}
	if err := checkSchema(model); err != nil {
		log.Error("detection: classifier schema mismatch",
			zap.String("model", model.Name),
			zap.String("model_version", model.Version),
			zap.String("schema_version", features.SchemaVersion()),
			zap.Error(err))
		return nil, err
	}

	matrix := make([][]float64, len(vectors))
	for i := range vectors {
		matrix[i] = vectors[i].ClassifierRow()
	}
	pred, err := s.classifier.Predict(ctx, matrix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}
	if len(pred.Classes) != len(vectors) || len(pred.Probabilities) != len(vectors) {
		return nil, fmt.Errorf("%w: %d predictions for %d rows", ErrClassifierUnavailable, len(pred.Classes), len(vectors))
	}

	perUser := make(map[string]domain.Result, len(vectors))
	for i := range vectors {
		v := &vectors[i]
		r := domain.NewResult(pred.Classes[i], model.Classes, pred.Probabilities[i])
		log.Info("detection: score",
			zap.String("user_id", v.UserID),
			zap.Time("week_start", v.WeekStart),
			zap.Int("pred_class", r.PredClass),
			zap.Float64("p_top", r.PTop),
			zap.Float64("p_anomaly", r.PAnomaly))
		if prev, ok := perUser[v.UserID]; !ok || worse(r, prev) {
			perUser[v.UserID] = r
		}
	}

	results := make(domain.Results)
	flags := make(map[string]bool, len(perUser))
	for user, r := range perUser {
		flags[user] = r.Anomalous()
		if r.Anomalous() {
			results[user] = r
		}
	}

	history := &domain.History{
		OrganizationID: orgID,
		StartDate:      start,
		EndDate:        end,
		RunTimestamp:   time.Now().UTC(),
		Results:        results,
	}
	if err := s.history.Create(ctx, history); err != nil {
		log.Error("detection: persist history failed", zap.Error(err))
	}
	if err := s.cache.Set(ctx, key, results, s.cfg.CacheTTL); err != nil {
		log.Warn("detection: cache write failed", zap.String("key", key), zap.Error(err))
	}
	if err := s.employees.SetAnomalyFlags(ctx, orgID, flags); err != nil {
		log.Error("detection: anomaly flag write-back failed", zap.Error(err))
	}

	metrics.DetectionRuns.WithLabelValues("computed").Inc()
	metrics.AnomalousUsers.Add(float64(len(results)))
	telemetry.EmitAsync(ctx, s.emitter, teldomain.NewEvent(orgID, teldomain.EventDetectionRun, map[string]any{
		"start":           start.UTC(),
		"end":             end.UTC(),
		"events":          len(raw),
		"vectors":         len(vectors),
		"anomalous_users": len(results),
		"model_version":   model.Version,
	}))
	log.Info("detection: run complete",
		zap.Int("events", len(raw)),
		zap.Int("vectors", len(vectors)),
		zap.Int("anomalous_users", len(results)))
	return results, nil
}

// worse reports whether a should replace b as a user's result across several weeks: anomalous
// beats normal, then higher anomaly probability wins.
func worse(a, b domain.Result) bool {
	if a.Anomalous() != b.Anomalous() {
		return a.Anomalous()
	}
	return a.PAnomaly > b.PAnomaly
}

func restrictToEmployees(events []*evdomain.RawEvent, rel features.RelationshipTable) []*evdomain.RawEvent {
	out := events[:0:0]
	for _, ev := range events {
		if _, ok := rel[ev.UserID]; ok {
			out = append(out, ev)
		}
	}
	return out
}

func checkSchema(model *classifier.Model) error {
	want := features.ClassifierColumns()
	if !slices.Equal(model.FeatureNames, want) {
		return fmt.Errorf("%w: model %s expects %d columns, pipeline produces %d (schema %s)",
			ErrSchemaMismatch, model.Name, len(model.FeatureNames), len(want), features.SchemaVersion())
	}
	if !slices.Contains(model.Classes, domain.NormalClass) {
		return fmt.Errorf("%w: model %s has no normal class", ErrSchemaMismatch, model.Name)
	}
	return nil
}
