package cache

import (
	"time"

	"go.uber.org/zap"

	"readiness/internal/telemetry"
)

// Option configures a Coordinator
type Option func(*Coordinator)

// WithTTL sets how long a Tier 1 entry is served as fresh
func WithTTL(ttl time.Duration) Option {
	return func(c *Coordinator) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(c *Coordinator) {
		c.log = log
	}
}

// WithMetrics records hit/miss counts per tier
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}
