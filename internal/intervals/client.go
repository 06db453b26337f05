// Package intervals reads workout history from Intervals.icu. Its
// icu_training_load values make it the authoritative history for the
// training-load fallback.
package intervals

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"readiness/internal/activity"
	"readiness/internal/config"
)

// SourceName identifies Intervals.icu activities
const SourceName = "intervals"

// ErrUnauthorized is returned after the API rejected the key
var ErrUnauthorized = errors.New("intervals.icu rejected the api key")

// Activity is the subset of an Intervals.icu activity the engine reads
type Activity struct {
	ID                string   `json:"id"`
	StartDate         string   `json:"start_date"` // RFC3339 UTC
	Type              string   `json:"type"`
	Name              string   `json:"name"`
	MovingTime        int      `json:"moving_time"`
	ElapsedTime       int      `json:"elapsed_time"`
	AverageHeartrate  *float64 `json:"average_heartrate"`
	AverageWatts      *float64 `json:"icu_average_watts"`
	TrainingLoad      *float64 `json:"icu_training_load"`
	PerceivedExertion *float64 `json:"perceived_exertion"`
	StravaID          string   `json:"strava_id"`
	ExternalID        string   `json:"external_id"`
}

// Client is an Intervals.icu API client implementing activity.Source
type Client struct {
	http       *resty.Client
	athleteID  string
	authorized atomic.Bool
	log        *zap.Logger
	now        func() time.Time
}

// New creates a client from config. The source starts authorized when a
// key is configured and turns unauthorized on a 401 or 403.
func New(cfg config.IntervalsConfig, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetBasicAuth("API_KEY", cfg.APIKey).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})

	c := &Client{
		http:      httpClient,
		athleteID: cfg.AthleteID,
		log:       log.Named("intervals"),
		now:       time.Now,
	}
	c.authorized.Store(cfg.Enabled())
	return c
}

// Name implements activity.Source
func (c *Client) Name() string { return SourceName }

// IsAuthorized implements activity.Source
func (c *Client) IsAuthorized(context.Context) bool {
	return c.authorized.Load()
}

// FetchActivities implements activity.Source
func (c *Client) FetchActivities(ctx context.Context, daysBack int) ([]activity.Raw, error) {
	end := c.now()
	return c.FetchRange(ctx, end.AddDate(0, 0, -daysBack), end)
}

// FetchRange returns the activities started between oldest and newest, both
// inclusive calendar days
func (c *Client) FetchRange(ctx context.Context, oldest, newest time.Time) ([]activity.Raw, error) {
	if !c.authorized.Load() {
		return nil, ErrUnauthorized
	}

	var acts []Activity
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("athlete", c.athleteID).
		SetQueryParam("oldest", oldest.Format("2006-01-02")).
		SetQueryParam("newest", newest.Format("2006-01-02")).
		SetResult(&acts).
		ForceContentType("application/json").
		Get("/api/v1/athlete/{athlete}/activities")
	if err != nil {
		return nil, fmt.Errorf("fetching intervals.icu activities: %w", err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		c.authorized.Store(false)
		c.log.Warn("intervals.icu rejected the api key", zap.Int("status", code))
		return nil, ErrUnauthorized
	case code != http.StatusOK:
		return nil, fmt.Errorf("intervals.icu API error %d: %s", code, resp.String())
	}

	out := make([]activity.Raw, 0, len(acts))
	for _, a := range acts {
		r, err := ToRaw(a)
		if err != nil {
			c.log.Debug("skipping activity", zap.String("id", a.ID), zap.Error(err))
			continue
		}
		out = append(out, r)
	}
	c.log.Debug("fetched activities", zap.Int("count", len(out)))
	return out, nil
}

// ToRaw converts an Intervals.icu activity. The Strava ID and the upload
// file ID become explicit links for deduplication.
func ToRaw(a Activity) (activity.Raw, error) {
	start, err := time.Parse(time.RFC3339, a.StartDate)
	if err != nil {
		return activity.Raw{}, fmt.Errorf("parsing start_date %q: %w", a.StartDate, err)
	}
	secs := a.MovingTime
	if secs <= 0 {
		secs = a.ElapsedTime
	}

	r := activity.Raw{
		ID:          a.ID,
		Source:      SourceName,
		StartTime:   start.UTC(),
		Duration:    time.Duration(secs) * time.Second,
		Type:        a.Type,
		Name:        a.Name,
		AvgHR:       positive(a.AverageHeartrate),
		AvgPower:    positive(a.AverageWatts),
		ProviderTSS: positive(a.TrainingLoad),
		RPE:         positive(a.PerceivedExertion),
	}
	if a.StravaID != "" {
		r.Links = append(r.Links, activity.Ref{Source: "strava", ID: a.StravaID})
	}
	if a.ExternalID != "" {
		r.Links = append(r.Links, activity.Ref{Source: activity.ExternalSource, ID: a.ExternalID})
	}
	return r, nil
}

func positive(v *float64) *float64 {
	if v == nil || *v <= 0 {
		return nil
	}
	out := *v
	return &out
}
