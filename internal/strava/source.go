package strava

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"readiness/internal/activity"
	"readiness/internal/auth"
)

// SourceName identifies Strava activities
const SourceName = "strava"

// Source adapts the Strava API to activity.Source. Tokens are loaded from
// the store on every fetch so a later connect or disconnect takes effect
// without rebuilding the source.
type Source struct {
	oauth   *oauth2.Config
	tokens  auth.TokenStore
	limiter *RateLimiter
	opts    []ClientOption
	log     *zap.Logger
	now     func() time.Time
}

// NewSource creates a Strava source over the persisted tokens
func NewSource(oauth *oauth2.Config, tokens auth.TokenStore, log *zap.Logger, opts ...ClientOption) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{
		oauth:   oauth,
		tokens:  tokens,
		limiter: NewRateLimiter(),
		opts:    opts,
		log:     log.Named("strava"),
		now:     time.Now,
	}
}

// Name implements activity.Source
func (s *Source) Name() string { return SourceName }

// IsAuthorized implements activity.Source
func (s *Source) IsAuthorized(ctx context.Context) bool {
	return auth.Connected(ctx, s.tokens)
}

// FetchActivities implements activity.Source
func (s *Source) FetchActivities(ctx context.Context, daysBack int) ([]activity.Raw, error) {
	ts, err := auth.Load(ctx, s.oauth, s.tokens)
	if err != nil {
		return nil, fmt.Errorf("loading strava token: %w", err)
	}

	opts := append([]ClientOption{WithRateLimiter(s.limiter)}, s.opts...)
	client := NewClient(ts, opts...)

	after := s.now().AddDate(0, 0, -daysBack)
	acts, err := client.GetAllActivities(ctx, after, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Unauthorized() {
			s.log.Warn("strava rejected token", zap.Int("status", apiErr.StatusCode))
		}
		return nil, err
	}

	short, daily := client.RateLimitStatus()
	s.log.Debug("fetched activities",
		zap.Int("count", len(acts)),
		zap.Int("short_remaining", short),
		zap.Int("daily_remaining", daily))

	out := make([]activity.Raw, 0, len(acts))
	for _, a := range acts {
		out = append(out, ToRaw(a))
	}
	return out, nil
}

// ToRaw converts a Strava summary to a raw activity. Strava reports no
// training load of its own, so ProviderTSS stays nil.
func ToRaw(a Activity) activity.Raw {
	r := activity.Raw{
		ID:        strconv.FormatInt(a.ID, 10),
		Source:    SourceName,
		StartTime: a.StartDate.UTC(),
		Duration:  a.Duration(),
		Type:      a.ActivityType(),
		Name:      a.Name,
	}
	if a.HasHeartrate && a.AverageHeartrate > 0 {
		hr := a.AverageHeartrate
		r.AvgHR = &hr
	}
	// Estimated watts are not measurements
	if a.DeviceWatts && a.AverageWatts > 0 {
		w := a.AverageWatts
		r.AvgPower = &w
	}
	if a.PerceivedExertion != nil && *a.PerceivedExertion > 0 {
		rpe := *a.PerceivedExertion
		r.RPE = &rpe
	}
	if a.ExternalID != "" {
		r.Links = []activity.Ref{{Source: activity.ExternalSource, ID: a.ExternalID}}
	}
	return r
}
