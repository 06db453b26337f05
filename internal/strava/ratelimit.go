package strava

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Strava rate limits:
// - 100 requests per 15 minutes
// - 1000 requests per day

const (
	shortWindow = 15 * time.Minute
	dailyWindow = 24 * time.Hour
)

// window is one fixed rate limit window
type window struct {
	limit    int
	usage    int
	resetsAt time.Time
}

func (w *window) roll(now time.Time, next func(time.Time) time.Time) {
	if !now.Before(w.resetsAt) {
		w.usage = 0
		w.resetsAt = next(now)
	}
}

func (w *window) exhausted() bool {
	return w.usage >= w.limit
}

func nextShort(now time.Time) time.Time {
	return now.Truncate(shortWindow).Add(shortWindow)
}

func nextDaily(now time.Time) time.Time {
	return now.UTC().Truncate(dailyWindow).Add(dailyWindow)
}

// RateLimiter manages Strava API rate limits
type RateLimiter struct {
	mu sync.Mutex

	short window
	daily window

	// Minimum interval between requests
	minInterval time.Duration
	lastRequest time.Time

	now func() time.Time
}

// NewRateLimiter creates a new rate limiter with Strava's limits
func NewRateLimiter() *RateLimiter {
	now := time.Now()
	return &RateLimiter{
		short:       window{limit: 100, resetsAt: nextShort(now)},
		daily:       window{limit: 1000, resetsAt: nextDaily(now)},
		minInterval: 150 * time.Millisecond, // ~6.6 req/s max
		now:         time.Now,
	}
}

// reserve claims a request slot or reports how long to wait for one
func (r *RateLimiter) reserve() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.short.roll(now, nextShort)
	r.daily.roll(now, nextDaily)

	switch {
	case r.daily.exhausted():
		return r.daily.resetsAt.Sub(now)
	case r.short.exhausted():
		return r.short.resetsAt.Sub(now)
	}
	if elapsed := now.Sub(r.lastRequest); elapsed < r.minInterval {
		return r.minInterval - elapsed
	}

	r.short.usage++
	r.daily.usage++
	r.lastRequest = now
	return 0
}

// Wait blocks until a request can be made without exceeding rate limits
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait := r.reserve()
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// UpdateFromHeaders updates rate limit state from Strava response headers
func (r *RateLimiter) UpdateFromHeaders(h http.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Strava returns: X-RateLimit-Limit: "100,1000" and X-RateLimit-Usage: "34,512"
	if short, daily, ok := parsePair(h.Get("X-RateLimit-Usage")); ok {
		r.short.usage = short
		r.daily.usage = daily
	}
	if short, daily, ok := parsePair(h.Get("X-RateLimit-Limit")); ok {
		r.short.limit = short
		r.daily.limit = daily
	}
}

func parsePair(v string) (int, int, bool) {
	parts := strings.Split(v, ",")
	if len(parts) < 2 {
		return 0, 0, false
	}
	a, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	b, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, false
	}
	return a, b, true
}

// Status returns current rate limit status
func (r *RateLimiter) Status() (shortRemaining, dailyRemaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.short.limit - r.short.usage, r.daily.limit - r.daily.usage
}

// Usage returns current usage counts
func (r *RateLimiter) Usage() (shortUsage, dailyUsage int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.short.usage, r.daily.usage
}
