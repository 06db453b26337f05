// Package analysis computes training load (CTL/ATL/TSB) and activity stress.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"readiness/internal/config"
	"readiness/internal/day"
	"readiness/internal/telemetry"
)

// ErrInconsistentTrainingLoad marks a trend whose final state looks like
// missing or garbled source data. It is logged, never returned.
var ErrInconsistentTrainingLoad = errors.New("inconsistent training load")

// Trend sources
const (
	SourceUnified  = "unified"
	SourceFallback = "fallback"
)

// HistorySource is the authoritative workout history used when the unified
// trend is degenerate. Loads must already carry TSS.
type HistorySource interface {
	Name() string
	FetchDailyLoads(ctx context.Context, start, end time.Time) ([]DailyLoad, error)
}

// Thresholds below which a final state counts as degenerate
type Thresholds struct {
	MinCTL    float64
	MinATL    float64
	MinSpread float64
}

// Degenerate reports whether s trips any threshold
func (t Thresholds) Degenerate(s LoadState) bool {
	return s.CTL < t.MinCTL || s.ATL < t.MinATL || math.Abs(s.CTL-s.ATL) < t.MinSpread
}

// Trend is a computed training-load series
type Trend struct {
	States []LoadState
	Source string
}

// Latest returns the most recent state, or a zero state when empty
func (t Trend) Latest() LoadState {
	if len(t.States) == 0 {
		return LoadState{}
	}
	return t.States[len(t.States)-1]
}

// On returns the state for the given day key
func (t Trend) On(key string, loc *time.Location) (LoadState, bool) {
	for i := len(t.States) - 1; i >= 0; i-- {
		if day.Key(t.States[i].Date, loc) == key {
			return t.States[i], true
		}
	}
	return LoadState{}, false
}

// Engine runs the training-load recurrence with a sanity-check fallback
type Engine struct {
	thresholds Thresholds
	windowDays int
	loc        *time.Location
	history    HistorySource
	log        *zap.Logger
	metrics    *telemetry.Metrics
}

// NewEngine creates a training-load engine. history may be nil, in which
// case degenerate trends are returned as computed.
func NewEngine(cfg config.TrainingLoadConfig, loc *time.Location, history HistorySource, log *zap.Logger, metrics *telemetry.Metrics) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		thresholds: Thresholds{MinCTL: cfg.MinCTL, MinATL: cfg.MinATL, MinSpread: cfg.MinSpread},
		windowDays: cfg.WindowDays,
		loc:        loc,
		history:    history,
		log:        log.Named("training_load"),
		metrics:    metrics,
	}
}

// Window returns the observed window ending on end
func (e *Engine) Window(end time.Time) (time.Time, time.Time) {
	endDay := day.Start(end, e.loc)
	return endDay.AddDate(0, 0, -(e.windowDays - 1)), endDay
}

// Compute runs the recurrence over [start, end]. A degenerate final state is
// recomputed from the history source; a failing fallback keeps the primary.
func (e *Engine) Compute(ctx context.Context, loads []DailyLoad, start, end time.Time) (Trend, error) {
	primary := Trend{
		States: CalculateFitnessTrend(loads, start, end, e.loc),
		Source: SourceUnified,
	}

	latest := primary.Latest()
	if !e.thresholds.Degenerate(latest) || e.history == nil {
		e.metrics.TrainingLoad(primary.Source)
		return primary, nil
	}

	e.log.Warn("degenerate training load, recomputing from history",
		zap.Error(ErrInconsistentTrainingLoad),
		zap.String("history", e.history.Name()),
		zap.Float64("ctl", latest.CTL),
		zap.Float64("atl", latest.ATL))

	select {
	case <-ctx.Done():
		return primary, ctx.Err()
	default:
	}

	history, err := e.history.FetchDailyLoads(ctx, start, end)
	if err != nil {
		if ctx.Err() != nil {
			return primary, ctx.Err()
		}
		e.log.Warn("training load fallback failed, keeping unified trend",
			zap.Error(fmt.Errorf("fetching %s history: %w", e.history.Name(), err)))
		e.metrics.TrainingLoad(primary.Source)
		return primary, nil
	}

	fallback := Trend{
		States: CalculateFitnessTrend(history, start, end, e.loc),
		Source: SourceFallback,
	}
	e.metrics.TrainingLoad(fallback.Source)
	return fallback, nil
}
