package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"readiness/internal/activity"
	"readiness/internal/analysis"
	"readiness/internal/athlete"
	"readiness/internal/day"
	"readiness/internal/telemetry"
)

// SyncStore is the storage the sync service writes activities to
type SyncStore interface {
	ReplaceActivities(ctx context.Context, since time.Time, acts []activity.Unified) error
	SetSyncState(ctx context.Context, key, value string) error
}

// SyncService pulls activities from every authorized source, unifies them
// and keeps the stored activity window and training-load trend current
type SyncService struct {
	sources  []activity.Source
	unifier  *activity.Unifier
	profile  athlete.Provider
	store    SyncStore
	trends   *Trends
	daysBack int
	loc      *time.Location
	log      *zap.Logger
	metrics  *telemetry.Metrics
	now      func() time.Time

	mu sync.Mutex // one sync at a time
}

// SyncConfig holds the sync service dependencies
type SyncConfig struct {
	Sources  []activity.Source
	Unifier  *activity.Unifier
	Profile  athlete.Provider
	Store    SyncStore
	Trends   *Trends
	DaysBack int
	Location *time.Location
	Logger   *zap.Logger
	Metrics  *telemetry.Metrics
}

// NewSyncService creates a sync service
func NewSyncService(cfg SyncConfig) *SyncService {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	daysBack := cfg.DaysBack
	if daysBack <= 0 {
		daysBack = DefaultSyncDaysBack
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &SyncService{
		sources:  cfg.Sources,
		unifier:  cfg.Unifier,
		profile:  cfg.Profile,
		store:    cfg.Store,
		trends:   cfg.Trends,
		daysBack: daysBack,
		loc:      loc,
		log:      log.Named("sync"),
		metrics:  cfg.Metrics,
		now:      time.Now,
	}
}

// SyncResult contains the results of a sync operation
type SyncResult struct {
	Fetched         map[string]int // raw activities per source
	Skipped         []string       // sources that were not authorized
	Unified         int
	Fingerprint     string
	TrendRecomputed bool
	TrendSource     string
	Latest          analysis.LoadState
	Form            string // description of the latest TSB
}

// Sync fetches all authorized sources concurrently. A failing source aborts
// the sync before anything is written, so the stored window never loses a
// source's activities to a transient error.
func (s *SyncService) Sync(ctx context.Context) (*SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &SyncResult{Fetched: make(map[string]int)}

	var active []activity.Source
	for _, src := range s.sources {
		if src.IsAuthorized(ctx) {
			active = append(active, src)
		} else {
			result.Skipped = append(result.Skipped, src.Name())
		}
	}

	batches := make([][]activity.Raw, len(active))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range active {
		g.Go(func() error {
			raws, err := src.FetchActivities(gctx, s.daysBack)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", src.Name(), err)
			}
			batches[i] = raws
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	var raws []activity.Raw
	for i, src := range active {
		result.Fetched[src.Name()] = len(batches[i])
		raws = append(raws, batches[i]...)
	}

	profile, err := s.profile.Profile(ctx)
	if err != nil {
		return result, fmt.Errorf("loading athlete profile: %w", err)
	}

	now := s.now()
	since := day.Start(now, s.loc).AddDate(0, 0, -s.daysBack)
	var unified []activity.Unified
	for _, u := range s.unifier.Unify(raws, profile) {
		if !u.StartTime.Before(since) {
			unified = append(unified, u)
		}
	}
	result.Unified = len(unified)

	if len(active) > 0 {
		if err := s.store.ReplaceActivities(ctx, since, unified); err != nil {
			return result, fmt.Errorf("storing activities: %w", err)
		}
		s.metrics.SyncedActivities(len(unified))
		if err := s.store.SetSyncState(ctx, LastSyncKey, now.UTC().Format(time.RFC3339)); err != nil {
			return result, fmt.Errorf("recording sync time: %w", err)
		}
	}

	recomputed, err := s.refreshTrend(ctx, now, result)
	if err != nil {
		return result, err
	}
	result.TrendRecomputed = recomputed

	s.log.Info("sync complete",
		zap.Any("fetched", result.Fetched),
		zap.Strings("skipped", result.Skipped),
		zap.Int("unified", result.Unified),
		zap.Bool("trend_recomputed", result.TrendRecomputed),
		zap.String("form", result.Form),
	)
	return result, nil
}

// refreshTrend recomputes and stores the training-load trend when the stored
// activity window changed since the last computation
func (s *SyncService) refreshTrend(ctx context.Context, now time.Time, result *SyncResult) (bool, error) {
	loaded, err := s.trends.Load(ctx, now)
	if err != nil {
		return false, err
	}
	result.Fingerprint = loaded.Fingerprint
	result.TrendSource = loaded.Trend.Source
	result.Latest = loaded.Trend.Latest()
	result.Form = analysis.FormDescription(result.Latest.TSB)
	return !loaded.Reused, nil
}

// SourceNames returns the configured source names, sorted
func (s *SyncService) SourceNames() []string {
	names := make([]string, 0, len(s.sources))
	for _, src := range s.sources {
		names = append(names, src.Name())
	}
	sort.Strings(names)
	return names
}
