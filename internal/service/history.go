package service

import (
	"context"
	"time"

	"readiness/internal/activity"
	"readiness/internal/analysis"
	"readiness/internal/athlete"
)

// RangeFetcher reads raw workouts between two calendar days
type RangeFetcher interface {
	Name() string
	FetchRange(ctx context.Context, oldest, newest time.Time) ([]activity.Raw, error)
}

// History adapts an authoritative workout source to analysis.HistorySource.
// Loads are tagged with the same TSS tiers as the unified stream.
type History struct {
	source  RangeFetcher
	unifier *activity.Unifier
	profile athlete.Provider
	loc     *time.Location
}

// NewHistory creates a training-load history source
func NewHistory(source RangeFetcher, unifier *activity.Unifier, profile athlete.Provider, loc *time.Location) *History {
	if loc == nil {
		loc = time.Local
	}
	return &History{source: source, unifier: unifier, profile: profile, loc: loc}
}

// Name implements analysis.HistorySource
func (h *History) Name() string { return h.source.Name() }

// FetchDailyLoads implements analysis.HistorySource
func (h *History) FetchDailyLoads(ctx context.Context, start, end time.Time) ([]analysis.DailyLoad, error) {
	raws, err := h.source.FetchRange(ctx,
		start.AddDate(0, 0, -HistoryPaddingDays),
		end.AddDate(0, 0, HistoryPaddingDays))
	if err != nil {
		return nil, err
	}
	profile, err := h.profile.Profile(ctx)
	if err != nil {
		return nil, err
	}

	loads := activity.DailyLoads(h.unifier.Unify(raws, profile), h.loc)
	out := loads[:0]
	for _, l := range loads {
		if !l.Date.Before(start) && !l.Date.After(end) {
			out = append(out, l)
		}
	}
	return out, nil
}
