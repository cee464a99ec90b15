package features

import (
	"context"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// WeeklyFeatureVector is one user's activity profile for one Sunday-to-Sunday week.
type WeeklyFeatureVector struct {
	UserID    string
	WeekStart time.Time
	WeekEnd   time.Time
	ITAdmin   bool
	// Features follows FeatureNames.
	Features []float64
}

// ClassifierRow returns the vector in ClassifierColumns order.
func (v *WeeklyFeatureVector) ClassifierRow() []float64 {
	out := make([]float64, 0, 3+len(v.Features))
	itAdmin := 0.0
	if v.ITAdmin {
		itAdmin = 1
	}
	out = append(out, float64(v.WeekStart.Unix()), float64(v.WeekEnd.Unix()), itAdmin)
	return append(out, v.Features...)
}

// Aggregator groups encoded rows into weekly vectors.
type Aggregator struct {
	loc     *time.Location
	workers int
}

// NewAggregator returns an Aggregator that computes week boundaries in loc (UTC when nil).
func NewAggregator(loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{loc: loc, workers: runtime.GOMAXPROCS(0)}
}

// WeekStart returns local midnight of the Sunday on or before t.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return day.AddDate(0, 0, -int(local.Weekday()))
}

// Aggregate returns one vector per (user, week) that has at least one row, ordered by week then user.
// Groups are computed concurrently.
func (a *Aggregator) Aggregate(ctx context.Context, rows []EncodedRow, rel RelationshipTable) ([]WeeklyFeatureVector, error) {
	type key struct {
		user  string
		start int64
	}
	groups := make(map[key][]*EncodedRow)
	starts := make(map[key]time.Time)
	for i := range rows {
		start := WeekStart(rows[i].Timestamp, a.loc)
		k := key{rows[i].User, start.Unix()}
		groups[k] = append(groups[k], &rows[i])
		starts[k] = start
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].start != keys[j].start {
			return keys[i].start < keys[j].start
		}
		return keys[i].user < keys[j].user
	})

	out := make([]WeeklyFeatureVector, len(keys))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, k := range keys {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			values, _ := computeFeatures(groups[k])
			start := starts[k]
			out[i] = WeeklyFeatureVector{
				UserID:    k.user,
				WeekStart: start,
				WeekEnd:   start.AddDate(0, 0, 7),
				ITAdmin:   rel[k.user].ITAdmin,
				Features:  values,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
