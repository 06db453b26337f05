package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"readiness/internal/activity"
	"readiness/internal/analysis"
	"readiness/internal/score"
	"readiness/internal/wellness"
)

func floatPtr(f float64) *float64 { return &f }

func TestOpenCreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "readiness.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer s.Close()

	if err := s.SetSyncState(context.Background(), "k", "v"); err != nil {
		t.Fatalf("SetSyncState() error: %v", err)
	}
}

func TestSyncState(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	v, err := s.GetSyncState(ctx, "missing")
	if err != nil || v != "" {
		t.Fatalf("GetSyncState(missing) = %q, %v; want empty", v, err)
	}

	if err := s.SetSyncState(ctx, "last_computed:sleep", "2024-05-01"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSyncState(ctx, "last_computed:sleep", "2024-05-02"); err != nil {
		t.Fatal(err)
	}
	v, _ = s.GetSyncState(ctx, "last_computed:sleep")
	if v != "2024-05-02" {
		t.Errorf("GetSyncState() = %q, want 2024-05-02", v)
	}

	if err := s.DeleteSyncState(ctx, "last_computed:sleep"); err != nil {
		t.Fatal(err)
	}
	v, _ = s.GetSyncState(ctx, "last_computed:sleep")
	if v != "" {
		t.Errorf("GetSyncState() after delete = %q", v)
	}
}

func TestAuth(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	if _, err := s.GetAuth(ctx); !errors.Is(err, ErrNoAuth) {
		t.Fatalf("GetAuth() on empty store = %v, want ErrNoAuth", err)
	}
	if err := s.UpdateTokens(ctx, "a", "r", time.Now()); !errors.Is(err, ErrNoAuth) {
		t.Fatalf("UpdateTokens() on empty store = %v, want ErrNoAuth", err)
	}

	expires := time.Unix(1714560000, 0)
	if err := s.SaveAuth(ctx, &Auth{AthleteID: 7, AccessToken: "a1", RefreshToken: "r1", ExpiresAt: expires}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateTokens(ctx, "a2", "r2", expires.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetAuth(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.AthleteID != 7 || got.AccessToken != "a2" || got.RefreshToken != "r2" {
		t.Errorf("GetAuth() = %+v", got)
	}
	if !got.ExpiresAt.Equal(expires.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v", got.ExpiresAt)
	}

	if err := s.DeleteAuth(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetAuth(ctx); !errors.Is(err, ErrNoAuth) {
		t.Errorf("GetAuth() after delete = %v, want ErrNoAuth", err)
	}
}

func TestScores(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 3, 7, 0, 0, 0, time.UTC)

	r := score.Result{
		Type:             score.Sleep,
		Day:              "2024-05-03",
		Score:            81.7,
		Band:             "good",
		SubScores:        []score.SubScore{{Name: "duration", Value: 90, Max: 100, Weight: 0.3, Available: true}},
		Inputs:           map[string]float64{"sleep_minutes": 432},
		ComputedAt:       at,
		StartedAt:        at,
		Confidence:       score.ConfidenceFull,
		Fidelity:         score.Fresh,
		AlgorithmVersion: 1,
	}

	got, err := s.GetScore(ctx, score.Sleep, "2024-05-03", 1)
	if err != nil || got != nil {
		t.Fatalf("GetScore() before put = %v, %v; want nil, nil", got, err)
	}

	if err := s.PutScore(ctx, r); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetScore(ctx, score.Sleep, "2024-05-03", 1)
	if err != nil || got == nil {
		t.Fatalf("GetScore() = %v, %v", got, err)
	}
	if got.Score != 81.7 || got.Band != "good" || got.Inputs["sleep_minutes"] != 432 || !got.ComputedAt.Equal(at) {
		t.Errorf("GetScore() = %+v", got)
	}

	// Other versions are a separate namespace
	if got, _ := s.GetScore(ctx, score.Sleep, "2024-05-03", 2); got != nil {
		t.Errorf("GetScore(version 2) = %+v, want nil", got)
	}

	// Placeholders are skipped by LatestScore
	ph := score.Placeholder(score.Sleep, "2024-05-04", at.AddDate(0, 0, 1), 1, false)
	if err := s.PutScore(ctx, ph); err != nil {
		t.Fatal(err)
	}
	latest, err := s.LatestScore(ctx, score.Sleep, "2024-05-05", 1)
	if err != nil || latest == nil {
		t.Fatalf("LatestScore() = %v, %v", latest, err)
	}
	if latest.Day != "2024-05-03" {
		t.Errorf("LatestScore().Day = %s, want 2024-05-03", latest.Day)
	}
	if latest, _ := s.LatestScore(ctx, score.Sleep, "2024-05-02", 1); latest != nil {
		t.Errorf("LatestScore(before any) = %+v, want nil", latest)
	}

	// A newer degenerate row does not hide an older trustworthy one
	degenerate := r
	degenerate.Day = "2024-05-05"
	degenerate.Score = 70
	degenerate.SubScores = []score.SubScore{
		{Name: "duration", Value: 70, Max: 100, Weight: 0.5, Available: true},
		{Name: "efficiency", Value: 70, Max: 100, Weight: 0.5, Available: true},
	}
	if err := s.PutScore(ctx, degenerate); err != nil {
		t.Fatal(err)
	}
	latest, err = s.LatestScore(ctx, score.Sleep, "2024-05-06", 1)
	if err != nil || latest == nil {
		t.Fatalf("LatestScore() past degenerate row = %v, %v", latest, err)
	}
	if latest.Day != "2024-05-03" {
		t.Errorf("LatestScore().Day = %s, want 2024-05-03", latest.Day)
	}

	if err := s.DeleteScores(ctx, score.Sleep); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.GetScore(ctx, score.Sleep, "2024-05-03", 1); got != nil {
		t.Errorf("GetScore() after delete = %+v", got)
	}
}

func TestDailyMetrics(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	sleep := 7 * time.Hour
	sample := wellness.DailySample{Date: "2024-05-03", HRV: floatPtr(62), SleepDuration: &sleep}
	if err := s.UpsertDailyMetrics(ctx, sample); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertDailyMetrics(ctx, wellness.DailySample{Date: "2024-05-01", HRV: floatPtr(58)}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetDailyMetrics(ctx, "2024-05-03")
	if err != nil || got == nil {
		t.Fatalf("GetDailyMetrics() = %v, %v", got, err)
	}
	if *got.HRV != 62 || *got.SleepDuration != sleep {
		t.Errorf("GetDailyMetrics() = %+v", got)
	}

	if got, err := s.GetDailyMetrics(ctx, "2024-05-02"); err != nil || got != nil {
		t.Errorf("GetDailyMetrics(missing) = %v, %v", got, err)
	}

	list, err := s.ListDailyMetrics(ctx, "2024-05-01", "2024-05-03")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Date != "2024-05-01" || list[1].Date != "2024-05-03" {
		t.Errorf("ListDailyMetrics() = %+v", list)
	}
}

func TestActivities(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 3, 6, 30, 0, 0, time.UTC)

	acts := []activity.Unified{
		{
			Raw: activity.Raw{
				ID: "11", Source: "strava", StartTime: start, Duration: 45 * time.Minute,
				Type: "Ride", Name: "Morning Ride", AvgHR: floatPtr(142), AvgPower: floatPtr(190),
				Links: []activity.Ref{{Source: "intervals", ID: "i42"}},
			},
			TSS:        55.5,
			Provenance: activity.HRDerived,
			MergedFrom: []activity.Ref{{Source: "strava", ID: "11"}, {Source: "intervals", ID: "i42"}},
		},
		{
			Raw: activity.Raw{
				ID: "12", Source: "strava", StartTime: start.AddDate(0, 0, -1), Duration: 30 * time.Minute, Type: "WeightTraining",
			},
			TSS:        19.5,
			Provenance: activity.Estimated,
		},
	}
	if err := s.ReplaceActivities(ctx, start.AddDate(0, 0, -7), acts); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListActivities(ctx, start.AddDate(0, 0, -7), start.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("ListActivities() returned %d, want 2", len(got))
	}
	if got[0].ID != "12" || got[0].AvgHR != nil || got[0].Provenance != activity.Estimated {
		t.Errorf("first activity = %+v", got[0])
	}
	ride := got[1]
	if *ride.AvgHR != 142 || *ride.AvgPower != 190 || ride.ProviderTSS != nil {
		t.Errorf("ride metrics = %+v", ride.Raw)
	}
	if len(ride.Links) != 1 || len(ride.MergedFrom) != 2 || ride.Duration != 45*time.Minute {
		t.Errorf("ride refs = %+v / %+v", ride.Links, ride.MergedFrom)
	}

	// Replacing the window drops activities no longer reported
	if err := s.ReplaceActivities(ctx, start.AddDate(0, 0, -7), acts[:1]); err != nil {
		t.Fatal(err)
	}
	n, err := s.CountActivities(ctx)
	if err != nil || n != 1 {
		t.Errorf("CountActivities() = %d, %v; want 1", n, err)
	}
}

func TestFitnessTrend(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()
	loc := time.UTC
	d := time.Date(2024, 5, 1, 0, 0, 0, 0, loc)

	states := []analysis.LoadState{
		{Date: d, CTL: 1.2, ATL: 7.1, TSB: -5.9},
		{Date: d.AddDate(0, 0, 1), CTL: 1.17, ATL: 6.09, TSB: -4.92},
	}
	if err := s.SaveFitnessTrend(ctx, states, analysis.SourceUnified, loc); err != nil {
		t.Fatal(err)
	}
	states[1].CTL = 2
	if err := s.SaveFitnessTrend(ctx, states[1:], analysis.SourceFallback, loc); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetFitnessTrend(ctx, "2024-05-01", "2024-05-31")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("GetFitnessTrend() returned %d rows", len(got))
	}
	if got[0].Date != "2024-05-01" || got[0].TSB != -5.9 || got[0].Source != analysis.SourceUnified {
		t.Errorf("row 0 = %+v", got[0])
	}
	if got[1].CTL != 2 || got[1].Source != analysis.SourceFallback {
		t.Errorf("row 1 = %+v", got[1])
	}
}

func TestStoreErrorPaths(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer sqlDB.Close()
	s := New(sqlDB)
	ctx := context.Background()
	boom := errors.New("disk I/O error")

	mock.ExpectQuery("SELECT payload FROM score_records").
		WithArgs("sleep", "2024-05-03", 1).
		WillReturnError(boom)
	if _, err := s.GetScore(ctx, score.Sleep, "2024-05-03", 1); !errors.Is(err, boom) {
		t.Errorf("GetScore() error = %v, want %v", err, boom)
	}

	mock.ExpectQuery("SELECT payload FROM score_records").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow("{not json"))
	if _, err := s.LatestScore(ctx, score.Sleep, "2024-05-03", 1); err == nil {
		t.Error("LatestScore() with corrupt payload should fail")
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM activities").WillReturnError(boom)
	mock.ExpectRollback()
	if err := s.ReplaceActivities(ctx, time.Now(), nil); !errors.Is(err, boom) {
		t.Errorf("ReplaceActivities() error = %v, want %v", err, boom)
	}

	mock.ExpectExec("INSERT INTO sync_state").WillReturnError(boom)
	if err := s.SetSyncState(ctx, "k", "v"); !errors.Is(err, boom) {
		t.Errorf("SetSyncState() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
