package wellness

import (
	"context"
	"fmt"
	"sync/atomic"

	"readiness/internal/day"
)

// SampleStore persists daily samples
type SampleStore interface {
	GetDailyMetrics(ctx context.Context, date string) (*DailySample, error)
	ListDailyMetrics(ctx context.Context, from, to string) ([]DailySample, error)
	UpsertDailyMetrics(ctx context.Context, s DailySample) error
}

// StoreProvider serves samples pushed by an external wearable adapter
type StoreProvider struct {
	store      SampleStore
	authorized atomic.Bool
}

// NewStoreProvider creates a provider over store
func NewStoreProvider(store SampleStore, authorized bool) *StoreProvider {
	p := &StoreProvider{store: store}
	p.authorized.Store(authorized)
	return p
}

// SetAuthorized records the wearable authorization state
func (p *StoreProvider) SetAuthorized(ok bool) {
	p.authorized.Store(ok)
}

// IsAuthorized implements Provider
func (p *StoreProvider) IsAuthorized(context.Context) bool {
	return p.authorized.Load()
}

// Ingest merges s over any sample already stored for its day
func (p *StoreProvider) Ingest(ctx context.Context, s DailySample) (DailySample, error) {
	if _, err := day.Parse(s.Date, nil); err != nil {
		return DailySample{}, fmt.Errorf("ingesting sample: %w", err)
	}
	existing, err := p.store.GetDailyMetrics(ctx, s.Date)
	if err != nil {
		return DailySample{}, fmt.Errorf("loading sample %s: %w", s.Date, err)
	}
	merged := s
	if existing != nil {
		merged = existing.Merge(s)
	}
	if err := p.store.UpsertDailyMetrics(ctx, merged); err != nil {
		return DailySample{}, fmt.Errorf("saving sample %s: %w", s.Date, err)
	}
	return merged, nil
}

// FetchDailyMetrics implements Provider
func (p *StoreProvider) FetchDailyMetrics(ctx context.Context, date string) (*DailySample, error) {
	return p.store.GetDailyMetrics(ctx, date)
}

// FetchHistoricalMetrics implements Provider
func (p *StoreProvider) FetchHistoricalMetrics(ctx context.Context, through string, days int) ([]DailySample, error) {
	if days < 1 {
		return nil, nil
	}
	return p.store.ListDailyMetrics(ctx, day.Add(through, -(days-1)), through)
}
