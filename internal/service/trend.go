package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"readiness/internal/activity"
	"readiness/internal/analysis"
	"readiness/internal/day"
	"readiness/internal/store"
)

// TrendStore persists training-load trends and the fingerprint of the
// activity set they were computed from
type TrendStore interface {
	ListActivities(ctx context.Context, from, to time.Time) ([]activity.Unified, error)
	SaveFitnessTrend(ctx context.Context, states []analysis.LoadState, source string, loc *time.Location) error
	GetFitnessTrend(ctx context.Context, from, to string) ([]store.FitnessTrend, error)
	GetSyncState(ctx context.Context, key string) (string, error)
	SetSyncState(ctx context.Context, key, value string) error
}

// TrendResult is a trend with the fingerprint it is valid for
type TrendResult struct {
	Trend       analysis.Trend
	Fingerprint string
	Reused      bool // served from the stored trend
}

// Trends computes the training-load trend over the engine window ending on a
// day. The stored trend is reused while the window's activity set is
// unchanged; any change recomputes and stores it.
type Trends struct {
	store  TrendStore
	engine *analysis.Engine
	loc    *time.Location
	log    *zap.Logger

	mu sync.Mutex // keeps stored rows and fingerprint consistent
}

// NewTrends creates a trend loader
func NewTrends(st TrendStore, engine *analysis.Engine, loc *time.Location, log *zap.Logger) *Trends {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Trends{store: st, engine: engine, loc: loc, log: log.Named("trends")}
}

// Fingerprint identifies the activity set of the window ending on end. The
// window moves every day, so the end day is part of it.
func (t *Trends) Fingerprint(end time.Time, acts []activity.Unified) string {
	return day.Key(end, t.loc) + ":" + activity.Fingerprint(acts)
}

// Load returns the trend for the window ending on end
func (t *Trends) Load(ctx context.Context, end time.Time) (TrendResult, error) {
	start, end := t.engine.Window(end)
	acts, err := t.store.ListActivities(ctx, start, end.AddDate(0, 0, 1))
	if err != nil {
		return TrendResult{}, fmt.Errorf("listing activities: %w", err)
	}
	fingerprint := t.Fingerprint(end, acts)

	stored, ok, err := t.stored(ctx, fingerprint, start, end)
	if err != nil {
		return TrendResult{}, err
	}
	if ok {
		t.log.Debug("activity set unchanged, reusing stored trend", zap.String("end", day.Key(end, t.loc)))
		return TrendResult{Trend: stored, Fingerprint: fingerprint, Reused: true}, nil
	}

	trend, err := t.engine.Compute(ctx, activity.DailyLoads(acts, t.loc), start, end)
	if err != nil {
		return TrendResult{}, fmt.Errorf("computing training load: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.store.SaveFitnessTrend(ctx, trend.States, trend.Source, t.loc); err != nil {
		return TrendResult{}, fmt.Errorf("storing training load: %w", err)
	}
	if err := t.store.SetSyncState(ctx, FingerprintKey, fingerprint); err != nil {
		return TrendResult{}, fmt.Errorf("recording fingerprint: %w", err)
	}
	return TrendResult{Trend: trend, Fingerprint: fingerprint}, nil
}

// stored returns the persisted trend when it was computed from fingerprint
// and covers every day of the window
func (t *Trends) stored(ctx context.Context, fingerprint string, start, end time.Time) (analysis.Trend, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	previous, err := t.store.GetSyncState(ctx, FingerprintKey)
	if err != nil {
		return analysis.Trend{}, false, fmt.Errorf("reading fingerprint: %w", err)
	}
	if previous != fingerprint {
		return analysis.Trend{}, false, nil
	}

	rows, err := t.store.GetFitnessTrend(ctx, day.Key(start, t.loc), day.Key(end, t.loc))
	if err != nil {
		return analysis.Trend{}, false, fmt.Errorf("reading stored trend: %w", err)
	}
	days := int(end.Sub(start).Round(24*time.Hour)/(24*time.Hour)) + 1
	if len(rows) != days {
		return analysis.Trend{}, false, nil
	}

	trend := analysis.Trend{States: make([]analysis.LoadState, 0, len(rows)), Source: rows[len(rows)-1].Source}
	for _, r := range rows {
		date, err := day.Parse(r.Date, t.loc)
		if err != nil {
			return analysis.Trend{}, false, err
		}
		trend.States = append(trend.States, analysis.LoadState{Date: date, CTL: r.CTL, ATL: r.ATL, TSB: r.TSB})
	}
	return trend, true, nil
}
