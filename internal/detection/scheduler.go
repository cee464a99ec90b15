package detection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"insiderwatch/backend/internal/detection/domain"
	"insiderwatch/backend/internal/features"
	"insiderwatch/backend/internal/logger"
	orgdomain "insiderwatch/backend/internal/organization/domain"
)

// Runner runs detection for one organization and window.
type Runner interface {
	Run(ctx context.Context, orgID string, start, end time.Time) (domain.Results, error)
}

// OrganizationLister lists every organization.
type OrganizationLister interface {
	List(ctx context.Context) ([]*orgdomain.Organization, error)
}

// Scheduler periodically scores every organization's previous full week so anomaly flags stay fresh.
type Scheduler struct {
	runner   Runner
	orgs     OrganizationLister
	interval time.Duration
	loc      *time.Location
	nowF     func() time.Time
}

// NewScheduler returns a scheduler ticking every interval. loc decides week boundaries.
func NewScheduler(runner Runner, orgs OrganizationLister, interval time.Duration, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{runner: runner, orgs: orgs, interval: interval, loc: loc, nowF: time.Now}
}

// PreviousWeek returns the Sunday-to-Sunday week before the one containing now.
func PreviousWeek(now time.Time, loc *time.Location) (time.Time, time.Time) {
	end := features.WeekStart(now, loc)
	return end.AddDate(0, 0, -7), end
}

// Start runs RunOnce immediately and then on every tick until ctx is done. A non-positive interval
// disables the scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	log := logger.Get()
	log.Info("detection scheduler started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			log.Warn("detection scheduler: run finished with errors", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			log.Info("detection scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce scores the previous week of every organization. One organization's failure does not
// stop the others; all failures are joined into the returned error.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	orgs, err := s.orgs.List(ctx)
	if err != nil {
		return fmt.Errorf("list organizations: %w", err)
	}
	start, end := PreviousWeek(s.nowF(), s.loc)
	var errs []error
	for _, org := range orgs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		results, err := s.runner.Run(ctx, org.ID, start, end)
		if err != nil {
			errs = append(errs, fmt.Errorf("organization %s: %w", org.ID, err))
			continue
		}
		logger.Get().Info("detection scheduler: organization scored",
			zap.String("organization_id", org.ID),
			zap.Time("start", start),
			zap.Int("anomalous_users", len(results)))
	}
	return errors.Join(errs...)
}
