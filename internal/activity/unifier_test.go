package activity

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readiness/internal/athlete"
	"readiness/internal/config"
)

func floatPtr(f float64) *float64 {
	return &f
}

func testUnifier() *Unifier {
	return NewUnifier(config.Default().Unifier)
}

func testProfile() athlete.Profile {
	return athlete.Profile{MaxHR: 185, RestingHR: 50, BodyMassKg: 70}
}

func TestUnifyCrossSourceDuplicate(t *testing.T) {
	start := time.Date(2024, 5, 10, 7, 0, 0, 0, time.UTC)
	raws := []Raw{
		{ID: "1", Source: "A", StartTime: start, Duration: 60 * time.Minute, ProviderTSS: floatPtr(80)},
		{ID: "b-9", Source: "B", StartTime: start.Add(30 * time.Second), Duration: 62 * time.Minute},
	}

	unified := testUnifier().Unify(raws, testProfile())
	require.Len(t, unified, 1)
	assert.Equal(t, 80.0, unified[0].TSS)
	assert.Equal(t, Measured, unified[0].Provenance)
	assert.Equal(t, "A", unified[0].Source)
	assert.ElementsMatch(t, []Ref{{"A", "1"}, {"B", "b-9"}}, unified[0].MergedFrom)
}

func TestMatches(t *testing.T) {
	start := time.Date(2024, 5, 10, 7, 0, 0, 0, time.UTC)
	u := testUnifier()

	tests := []struct {
		name string
		a, b Raw
		want bool
	}{
		{
			name: "same source and id",
			a:    Raw{ID: "1", Source: "strava", StartTime: start, Duration: time.Hour},
			b:    Raw{ID: "1", Source: "strava", StartTime: start.Add(5 * time.Hour), Duration: 10 * time.Minute},
			want: true,
		},
		{
			name: "explicit link",
			a:    Raw{ID: "i55", Source: "intervals", StartTime: start, Duration: time.Hour, Links: []Ref{{"strava", "9"}}},
			b:    Raw{ID: "9", Source: "strava", StartTime: start.Add(time.Hour), Duration: 20 * time.Minute},
			want: true,
		},
		{
			name: "shared link",
			a:    Raw{ID: "x", Source: "intervals", StartTime: start, Links: []Ref{{"garmin", "g1"}}},
			b:    Raw{ID: "y", Source: "strava", StartTime: start.Add(3 * time.Hour), Links: []Ref{{"garmin", "g1"}}},
			want: true,
		},
		{
			name: "within start and duration tolerance",
			a:    Raw{ID: "1", Source: "A", StartTime: start, Duration: 100 * time.Minute},
			b:    Raw{ID: "2", Source: "B", StartTime: start.Add(-119 * time.Second), Duration: 96 * time.Minute},
			want: true,
		},
		{
			name: "start too far apart",
			a:    Raw{ID: "1", Source: "A", StartTime: start, Duration: time.Hour},
			b:    Raw{ID: "2", Source: "B", StartTime: start.Add(121 * time.Second), Duration: time.Hour},
			want: false,
		},
		{
			name: "duration differs by more than five percent",
			a:    Raw{ID: "1", Source: "A", StartTime: start, Duration: 100 * time.Minute},
			b:    Raw{ID: "2", Source: "B", StartTime: start, Duration: 94 * time.Minute},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, u.Matches(tt.a, tt.b))
			assert.Equal(t, tt.want, u.Matches(tt.b, tt.a))
		})
	}
}

func TestDeduplicateTransitiveLinks(t *testing.T) {
	start := time.Date(2024, 5, 10, 7, 0, 0, 0, time.UTC)
	raws := []Raw{
		{ID: "s1", Source: "strava", StartTime: start, Duration: time.Hour, AvgHR: floatPtr(140)},
		{ID: "i1", Source: "intervals", StartTime: start.Add(10 * time.Minute), Duration: 30 * time.Minute,
			Links: []Ref{{"strava", "s1"}}, ProviderTSS: floatPtr(55)},
		{ID: "w1", Source: "wearable", StartTime: start.Add(20 * time.Minute), Duration: 45 * time.Minute,
			Links: []Ref{{"intervals", "i1"}}, RPE: floatPtr(7)},
	}

	out := testUnifier().Deduplicate(raws)
	require.Len(t, out, 1)
	merged := out[0]
	assert.Equal(t, "intervals", merged.Source, "richest member is the representative")
	assert.Equal(t, 140.0, *merged.AvgHR, "missing HR filled from other members")
	assert.Equal(t, 7.0, *merged.RPE)
	assert.Contains(t, merged.Links, Ref{"strava", "s1"})
	assert.Contains(t, merged.Links, Ref{"wearable", "w1"})
}

func TestDeduplicateLeavesNoMatchingPairs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	u := testUnifier()
	base := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	sources := []string{"strava", "intervals", "wearable"}

	for iter := 0; iter < 200; iter++ {
		n := 2 + rng.Intn(12)
		raws := make([]Raw, n)
		for i := range raws {
			r := Raw{
				ID:        string(rune('a' + rng.Intn(6))),
				Source:    sources[rng.Intn(len(sources))],
				StartTime: base.Add(time.Duration(rng.Intn(600)) * time.Second),
				Duration:  time.Duration(30+rng.Intn(10)) * time.Minute,
			}
			if rng.Intn(4) == 0 {
				r.Links = []Ref{{sources[rng.Intn(len(sources))], string(rune('a' + rng.Intn(6)))}}
			}
			raws[i] = r
		}

		out := u.Deduplicate(raws)
		for i := 0; i < len(out); i++ {
			for j := i + 1; j < len(out); j++ {
				if u.Matches(out[i], out[j]) {
					t.Fatalf("iteration %d: outputs %d and %d still match: %+v %+v", iter, i, j, out[i], out[j])
				}
			}
		}
		for i := 1; i < len(out); i++ {
			if out[i].StartTime.Before(out[i-1].StartTime) {
				t.Fatalf("iteration %d: output not sorted by start time", iter)
			}
		}
	}
}

func TestAssignTSS(t *testing.T) {
	u := testUnifier()
	profile := testProfile()

	tests := []struct {
		name     string
		raw      Raw
		profile  athlete.Profile
		expected float64
		prov     Provenance
		delta    float64
	}{
		{
			name:     "provider value",
			raw:      Raw{Duration: time.Hour, ProviderTSS: floatPtr(72), AvgHR: floatPtr(150)},
			profile:  profile,
			expected: 72,
			prov:     Measured,
		},
		{
			name: "zero provider value falls through to HR",
			raw:  Raw{Duration: time.Hour, ProviderTSS: floatPtr(0), AvgHR: floatPtr(117.5)},
			// 60 * (117.5-50)/135 = 30
			profile:  profile,
			expected: 30,
			prov:     HRDerived,
			delta:    1e-9,
		},
		{
			name:     "HR above max clamps to one",
			raw:      Raw{Duration: 45 * time.Minute, AvgHR: floatPtr(200)},
			profile:  profile,
			expected: 45,
			prov:     HRDerived,
			delta:    1e-9,
		},
		{
			name:     "HR below resting clamps to zero",
			raw:      Raw{Duration: 45 * time.Minute, AvgHR: floatPtr(40)},
			profile:  profile,
			expected: 0,
			prov:     HRDerived,
		},
		{
			name:     "no HR reserve uses estimate",
			raw:      Raw{Duration: 100 * time.Minute, AvgHR: floatPtr(140)},
			profile:  athlete.Profile{MaxHR: 50, RestingHR: 50},
			expected: 65,
			prov:     Estimated,
			delta:    1e-9,
		},
		{
			name:     "duration only",
			raw:      Raw{Duration: 40 * time.Minute},
			profile:  profile,
			expected: 26,
			prov:     Estimated,
			delta:    1e-9,
		},
		{
			name:     "negative duration never negative",
			raw:      Raw{Duration: -10 * time.Minute},
			profile:  profile,
			expected: 0,
			prov:     Estimated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tss, prov := u.AssignTSS(tt.raw, tt.profile)
			if math.Abs(tss-tt.expected) > tt.delta {
				t.Errorf("AssignTSS() tss = %v, want %v", tss, tt.expected)
			}
			if prov != tt.prov {
				t.Errorf("AssignTSS() provenance = %v, want %v", prov, tt.prov)
			}
			if tss < 0 {
				t.Errorf("AssignTSS() returned negative tss %v", tss)
			}
		})
	}
}

func TestProvenanceConfidence(t *testing.T) {
	assert.Equal(t, 1.0, Measured.Confidence())
	assert.Equal(t, 0.8, HRDerived.Confidence())
	assert.Equal(t, 0.5, Estimated.Confidence())
}

func TestDailyLoadsAndForDay(t *testing.T) {
	loc := time.UTC
	d1 := time.Date(2024, 5, 10, 7, 0, 0, 0, loc)
	unified := []Unified{
		{Raw: Raw{ID: "1", Source: "A", StartTime: d1}, TSS: 40},
		{Raw: Raw{ID: "2", Source: "A", StartTime: d1.Add(10 * time.Hour)}, TSS: 25},
		{Raw: Raw{ID: "3", Source: "A", StartTime: d1.AddDate(0, 0, 2)}, TSS: 60},
	}

	loads := DailyLoads(unified, loc)
	require.Len(t, loads, 2)
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, loc), loads[0].Date)
	assert.Equal(t, 65.0, loads[0].TSS)
	assert.Equal(t, 60.0, loads[1].TSS)

	assert.Len(t, ForDay(unified, "2024-05-10", loc), 2)
	assert.Empty(t, ForDay(unified, "2024-05-11", loc))
}

func TestFingerprint(t *testing.T) {
	start := time.Date(2024, 5, 10, 7, 0, 0, 0, time.UTC)
	a := Unified{Raw: Raw{ID: "1", Source: "A", StartTime: start, Duration: time.Hour}, TSS: 50}
	b := Unified{Raw: Raw{ID: "2", Source: "B", StartTime: start.Add(time.Hour), Duration: time.Hour}, TSS: 30}

	assert.Equal(t, Fingerprint([]Unified{a, b}), Fingerprint([]Unified{b, a}))

	changed := b
	changed.TSS = 31
	assert.NotEqual(t, Fingerprint([]Unified{a, b}), Fingerprint([]Unified{a, changed}))
	assert.NotEmpty(t, Fingerprint(nil))
}
