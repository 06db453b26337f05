package wellness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(f float64) *float64 { return &f }

func durPtr(d time.Duration) *time.Duration { return &d }

func intPtr(i int) *int { return &i }

func TestMerge(t *testing.T) {
	early := DailySample{
		Date:          "2024-05-10",
		HRV:           floatPtr(60),
		RestingHR:     floatPtr(52),
		SleepDuration: durPtr(7 * time.Hour),
	}
	later := DailySample{
		Date:       "2024-05-10",
		HRV:        floatPtr(64),
		WakeEvents: intPtr(2),
	}

	merged := early.Merge(later)
	assert.Equal(t, 64.0, *merged.HRV, "later value overwrites")
	assert.Equal(t, 52.0, *merged.RestingHR, "absent field keeps earlier value")
	assert.Equal(t, 7*time.Hour, *merged.SleepDuration)
	assert.Equal(t, 2, *merged.WakeEvents)
	assert.Nil(t, merged.Steps)

	// Inputs are not modified
	assert.Equal(t, 60.0, *early.HRV)
	assert.Nil(t, early.WakeEvents)
}

func TestClocks(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		bed  float64
		wake float64
	}{
		{"late evening", time.Date(2024, 1, 1, 22, 30, 0, 0, time.UTC), 630, 1350},
		{"after midnight", time.Date(2024, 1, 2, 0, 45, 0, 0, time.UTC), 765, 45},
		{"morning", time.Date(2024, 1, 2, 6, 15, 0, 0, time.UTC), 1095, 375},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.bed, BedClock(tt.at, time.UTC))
			assert.Equal(t, tt.wake, WakeClock(tt.at, time.UTC))
		})
	}
}

func TestComputeBaselines(t *testing.T) {
	bed := time.Date(2024, 5, 8, 23, 0, 0, 0, time.UTC)
	bed2 := time.Date(2024, 5, 10, 1, 0, 0, 0, time.UTC)
	history := []DailySample{
		{Date: "2024-05-02", HRV: floatPtr(200)}, // outside 7-day window
		{Date: "2024-05-04", HRV: floatPtr(50), RestingHR: floatPtr(50)},
		{Date: "2024-05-09", HRV: floatPtr(70), SleepDuration: durPtr(8 * time.Hour), BedTime: &bed},
		{Date: "2024-05-09", RespiratoryRate: floatPtr(15)},
		{Date: "2024-05-10", SleepDuration: durPtr(6 * time.Hour), BedTime: &bed2},
		{Date: "2024-05-11", HRV: floatPtr(999)}, // scored day, excluded
	}

	b := ComputeBaselines(history, "2024-05-11", 7, time.UTC)
	assert.Equal(t, 7, b.Days)
	assert.Equal(t, 4, b.Samples)
	require.NotNil(t, b.HRV)
	assert.Equal(t, 60.0, *b.HRV)
	assert.Equal(t, 50.0, *b.RestingHR)
	assert.Equal(t, 15.0, *b.RespiratoryRate)
	assert.Equal(t, 420.0, *b.SleepMinutes)
	// 23:00 -> 660, 01:00 -> 780 minutes after noon
	assert.Equal(t, 720.0, *b.BedClock)
	assert.Nil(t, b.WakeClock)
}

func TestComputeBaselinesEmpty(t *testing.T) {
	b := ComputeBaselines(nil, "2024-05-11", 7, time.UTC)
	assert.Equal(t, 0, b.Samples)
	assert.Nil(t, b.HRV)
	assert.Nil(t, b.SleepMinutes)
}

type memStore struct {
	samples map[string]DailySample
}

func (m *memStore) GetDailyMetrics(_ context.Context, date string) (*DailySample, error) {
	s, ok := m.samples[date]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memStore) ListDailyMetrics(_ context.Context, from, to string) ([]DailySample, error) {
	var out []DailySample
	for k, s := range m.samples {
		if k >= from && k <= to {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) UpsertDailyMetrics(_ context.Context, s DailySample) error {
	m.samples[s.Date] = s
	return nil
}

func TestStoreProvider(t *testing.T) {
	ctx := context.Background()
	store := &memStore{samples: map[string]DailySample{}}
	p := NewStoreProvider(store, true)
	assert.True(t, p.IsAuthorized(ctx))

	_, err := p.Ingest(ctx, DailySample{Date: "2024-05-10", HRV: floatPtr(60), RestingHR: floatPtr(50)})
	require.NoError(t, err)
	merged, err := p.Ingest(ctx, DailySample{Date: "2024-05-10", HRV: floatPtr(66)})
	require.NoError(t, err)
	assert.Equal(t, 66.0, *merged.HRV)
	assert.Equal(t, 50.0, *merged.RestingHR)

	got, err := p.FetchDailyMetrics(ctx, "2024-05-10")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 66.0, *got.HRV)

	missing, err := p.FetchDailyMetrics(ctx, "2024-05-11")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = p.Ingest(ctx, DailySample{Date: "2024-05-04"})
	require.NoError(t, err)
	_, err = p.Ingest(ctx, DailySample{Date: "2024-05-03"})
	require.NoError(t, err)
	hist, err := p.FetchHistoricalMetrics(ctx, "2024-05-10", 7)
	require.NoError(t, err)
	assert.Len(t, hist, 2, "window covers 05-04 through 05-10")

	_, err = p.Ingest(ctx, DailySample{Date: "not-a-day"})
	assert.Error(t, err)

	p.SetAuthorized(false)
	assert.False(t, p.IsAuthorized(ctx))
}
