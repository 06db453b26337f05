package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"readiness/internal/activity"
	"readiness/internal/analysis"
	"readiness/internal/athlete"
	"readiness/internal/day"
	"readiness/internal/wellness"
)

// ActivityReader lists stored unified activities in [from, to)
type ActivityReader interface {
	ListActivities(ctx context.Context, from, to time.Time) ([]activity.Unified, error)
}

// Inputs assembles calculator input bundles. Baselines are recomputed from
// stored samples on every call; concurrent training-load requests for the
// same day share one computation.
type Inputs struct {
	wellness     wellness.Provider
	activities   ActivityReader
	profile      athlete.Provider
	trends       *Trends
	baselineDays int
	loc          *time.Location
	loadTimeout  time.Duration

	loads singleflight.Group
}

// NewInputs creates an input assembler
func NewInputs(w wellness.Provider, activities ActivityReader, profile athlete.Provider, trends *Trends, baselineDays int, loc *time.Location) *Inputs {
	if loc == nil {
		loc = time.Local
	}
	return &Inputs{
		wellness:     w,
		activities:   activities,
		profile:      profile,
		trends:       trends,
		baselineDays: baselineDays,
		loc:          loc,
		loadTimeout:  DefaultLoadTimeout,
	}
}

// WithLoadTimeout bounds a shared training-load computation. Zero or less
// keeps the default.
func (in *Inputs) WithLoadTimeout(d time.Duration) *Inputs {
	if d > 0 {
		in.loadTimeout = d
	}
	return in
}

// Location returns the calendar location used for day keys
func (in *Inputs) Location() *time.Location {
	return in.loc
}

// Personalized reports whether the physiological adapter is authorized
func (in *Inputs) Personalized(ctx context.Context) bool {
	return in.wellness.IsAuthorized(ctx)
}

// Profile returns the current athlete profile
func (in *Inputs) Profile(ctx context.Context) (athlete.Profile, error) {
	p, err := in.profile.Profile(ctx)
	if err != nil {
		return athlete.Profile{}, fmt.Errorf("loading athlete profile: %w", err)
	}
	return p, nil
}

// Wellness returns the day's sample, nil when none was reported, and the
// trailing baseline. The sample and the history are fetched concurrently.
func (in *Inputs) Wellness(ctx context.Context, dayKey string) (*wellness.DailySample, wellness.Baseline, error) {
	var (
		sample  *wellness.DailySample
		history []wellness.DailySample
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := in.wellness.FetchDailyMetrics(gctx, dayKey)
		if err != nil {
			return fmt.Errorf("fetching metrics for %s: %w", dayKey, err)
		}
		sample = s
		return nil
	})
	g.Go(func() error {
		h, err := in.wellness.FetchHistoricalMetrics(gctx, day.Add(dayKey, -1), in.baselineDays)
		if err != nil {
			return fmt.Errorf("fetching metric history: %w", err)
		}
		history = h
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, wellness.Baseline{}, err
	}
	return sample, wellness.ComputeBaselines(history, dayKey, in.baselineDays, in.loc), nil
}

// TrainingLoad returns the trend over the engine window ending on dayKey
func (in *Inputs) TrainingLoad(ctx context.Context, dayKey string) (analysis.Trend, error) {
	ch := in.loads.DoChan(dayKey, func() (interface{}, error) {
		// Detached so one caller giving up does not fail the others
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), in.loadTimeout)
		defer cancel()
		return in.computeLoad(lctx, dayKey)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return analysis.Trend{}, res.Err
		}
		return res.Val.(analysis.Trend), nil
	case <-ctx.Done():
		return analysis.Trend{}, ctx.Err()
	}
}

func (in *Inputs) computeLoad(ctx context.Context, dayKey string) (analysis.Trend, error) {
	end, err := day.Parse(dayKey, in.loc)
	if err != nil {
		return analysis.Trend{}, err
	}
	loaded, err := in.trends.Load(ctx, end)
	if err != nil {
		return analysis.Trend{}, err
	}
	return loaded.Trend, nil
}

// Activities returns the unified activities starting on dayKey
func (in *Inputs) Activities(ctx context.Context, dayKey string) ([]activity.Unified, error) {
	start, err := day.Parse(dayKey, in.loc)
	if err != nil {
		return nil, err
	}
	acts, err := in.activities.ListActivities(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("listing activities for %s: %w", dayKey, err)
	}
	return acts, nil
}
