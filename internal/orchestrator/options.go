package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"readiness/internal/telemetry"
)

// DefaultTimeout applies when no per-type deadline is configured
const DefaultTimeout = 10 * time.Second

// AuthCheck reports whether the type's data source is authorized
type AuthCheck func(ctx context.Context) bool

// RecordStore persists the last-computed day per type
type RecordStore interface {
	GetSyncState(ctx context.Context, key string) (string, error)
	SetSyncState(ctx context.Context, key, value string) error
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithTimeout sets the per-computation deadline, dependency wait included
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithAuthorization installs the authorization guard
func WithAuthorization(check AuthCheck) Option {
	return func(o *Orchestrator) {
		o.auth = check
	}
}

// WithRecords persists computation records in rs
func WithRecords(rs RecordStore) Option {
	return func(o *Orchestrator) {
		o.records = rs
	}
}

// WithRegistry publishes updates through r
func WithRegistry(r *Registry) Option {
	return func(o *Orchestrator) {
		o.registry = r
	}
}

// WithDependency makes computations wait for upstream, polling with
// exponential backoff capped at maxBackoff, for at most maxWait.
func WithDependency(upstream *Orchestrator, maxWait, initialBackoff, maxBackoff time.Duration) Option {
	return func(o *Orchestrator) {
		o.dep = &dependency{
			upstream: upstream,
			maxWait:  maxWait,
			initial:  initialBackoff,
			max:      maxBackoff,
		}
	}
}

// WithVersion sets the algorithm version stamped on placeholders
func WithVersion(v int) Option {
	return func(o *Orchestrator) {
		o.version = v
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.log = log
	}
}

// WithMetrics records computation outcomes
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer overrides the global engine tracer
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}
