package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"readiness/internal/activity"
	"readiness/internal/auth"
	"readiness/internal/config"
	"readiness/internal/store"
)

func testLimiter() *RateLimiter {
	r := NewRateLimiter()
	r.minInterval = 0
	return r
}

func activitiesServer(t *testing.T, total int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/athlete/activities", r.URL.Path)
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		var acts []Activity
		for i := (page - 1) * perPage; i < total && i < page*perPage; i++ {
			acts = append(acts, Activity{
				ID:          int64(i + 1),
				Name:        fmt.Sprintf("Run %d", i+1),
				SportType:   "Run",
				StartDate:   time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC).AddDate(0, 0, i),
				MovingTime:  3600,
				ElapsedTime: 3700,
			})
		}
		w.Header().Set("X-RateLimit-Limit", "100,1000")
		w.Header().Set("X-RateLimit-Usage", fmt.Sprintf("%d,%d", page, page+500))
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(acts))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func staticTokens() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "access", TokenType: "Bearer"})
}

func TestGetAllActivitiesPaginates(t *testing.T) {
	srv := activitiesServer(t, 150)
	c := NewClient(staticTokens(), WithBaseURL(srv.URL), WithRateLimiter(testLimiter()))

	var progress []int
	acts, err := c.GetAllActivities(context.Background(), time.Time{}, func(n int) {
		progress = append(progress, n)
	})
	require.NoError(t, err)
	assert.Len(t, acts, 150)
	assert.Equal(t, []int{100, 150}, progress)

	short, daily := c.RateLimitStatus()
	assert.Equal(t, 98, short)
	assert.Equal(t, 498, daily)
}

func TestClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Authorization Error"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(staticTokens(), WithBaseURL(srv.URL), WithRateLimiter(testLimiter()))
	_, err := c.GetActivities(context.Background(), time.Time{}, 1, 10)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.True(t, apiErr.Unauthorized())
}

func TestRateLimiterWindows(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 3, 0, 0, time.UTC)
	r := testLimiter()
	r.now = func() time.Time { return now }
	r.short = window{limit: 2, resetsAt: nextShort(now)}
	r.daily = window{limit: 1000, resetsAt: nextDaily(now)}

	assert.Equal(t, time.Duration(0), r.reserve())
	assert.Equal(t, time.Duration(0), r.reserve())
	assert.Equal(t, 12*time.Minute, r.reserve(), "short window exhausted until the quarter hour")

	shortUsed, dailyUsed := r.Usage()
	assert.Equal(t, 2, shortUsed)
	assert.Equal(t, 2, dailyUsed)

	now = now.Add(12 * time.Minute)
	assert.Equal(t, time.Duration(0), r.reserve())
	shortUsed, dailyUsed = r.Usage()
	assert.Equal(t, 1, shortUsed)
	assert.Equal(t, 3, dailyUsed)
}

func TestRateLimiterWaitHonorsContext(t *testing.T) {
	r := testLimiter()
	r.short.limit = 0

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := r.Wait(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestUpdateFromHeaders(t *testing.T) {
	r := NewRateLimiter()
	h := http.Header{}
	h.Set("X-RateLimit-Limit", "200, 2000")
	h.Set("X-RateLimit-Usage", "garbage")
	r.UpdateFromHeaders(h)

	short, daily := r.Status()
	assert.Equal(t, 200, short)
	assert.Equal(t, 2000, daily)
}

func TestToRaw(t *testing.T) {
	rpe := 7.0
	a := Activity{
		ID:                42,
		Name:              "Threshold ride",
		Type:              "Ride",
		StartDate:         time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC),
		MovingTime:        3600,
		AverageHeartrate:  150,
		HasHeartrate:      true,
		AverageWatts:      230,
		DeviceWatts:       true,
		PerceivedExertion: &rpe,
		ExternalID:        "garmin_push_123",
	}
	r := ToRaw(a)
	assert.Equal(t, "42", r.ID)
	assert.Equal(t, SourceName, r.Source)
	assert.Equal(t, "Ride", r.Type)
	assert.Equal(t, time.Hour, r.Duration)
	require.NotNil(t, r.AvgHR)
	assert.Equal(t, 150.0, *r.AvgHR)
	require.NotNil(t, r.AvgPower)
	assert.Equal(t, 230.0, *r.AvgPower)
	require.NotNil(t, r.RPE)
	assert.Nil(t, r.ProviderTSS)
	assert.Equal(t, []activity.Ref{{Source: activity.ExternalSource, ID: "garmin_push_123"}}, r.Links)

	a.DeviceWatts = false
	a.HasHeartrate = false
	a.MovingTime = 0
	a.ElapsedTime = 1800
	r = ToRaw(a)
	assert.Nil(t, r.AvgPower, "estimated watts are dropped")
	assert.Nil(t, r.AvgHR)
	assert.Equal(t, 30*time.Minute, r.Duration)
}

func TestSourceFetchActivities(t *testing.T) {
	ctx := context.Background()
	srv := activitiesServer(t, 3)
	st := store.NewTestStore(t)
	oauthCfg := auth.NewOAuthConfig(config.StravaConfig{ClientID: "id", ClientSecret: "secret"})

	src := NewSource(oauthCfg, st, nil, WithBaseURL(srv.URL))
	src.limiter.minInterval = 0
	assert.Equal(t, SourceName, src.Name())
	assert.False(t, src.IsAuthorized(ctx))

	_, err := src.FetchActivities(ctx, 30)
	assert.True(t, errors.Is(err, store.ErrNoAuth))

	require.NoError(t, auth.Save(ctx, st, &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	}))
	assert.True(t, src.IsAuthorized(ctx))

	raws, err := src.FetchActivities(ctx, 30)
	require.NoError(t, err)
	require.Len(t, raws, 3)
	assert.Equal(t, "1", raws[0].ID)
	assert.Equal(t, "Run", raws[0].Type)
}
