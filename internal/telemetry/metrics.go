package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	computations        *prometheus.CounterVec
	computationDuration *prometheus.HistogramVec
	cacheLookups        *prometheus.CounterVec
	trainingLoadSource  *prometheus.CounterVec
	dependencyWaits     *prometheus.CounterVec
	publishErrors       *prometheus.CounterVec
	syncedActivities    prometheus.Counter
}

// NewMetrics creates a metrics manager registered on the configured registry.
func NewMetrics(opts ...Option) *Metrics {
	m := &Metrics{
		namespace:        "readiness",
		subsystem:        "engine",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initialize()
	return m
}

func (m *Metrics) initialize() {
	auto := promauto.With(m.registry)

	m.computations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "computations_total",
		Help:      "Score computations by type and terminal state",
	}, []string{"type", "state"})

	m.computationDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "computation_duration_seconds",
		Help:      "Wall time of score computations including dependency waits",
		Buckets:   m.histogramBuckets,
	}, []string{"type"})

	m.cacheLookups = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_lookups_total",
		Help:      "Score cache lookups by tier and result",
	}, []string{"tier", "result"})

	m.trainingLoadSource = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "training_load_computations_total",
		Help:      "Training load computations by the source that produced the final trend",
	}, []string{"source"})

	m.dependencyWaits = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dependency_waits_total",
		Help:      "Upstream score waits by outcome",
	}, []string{"outcome"})

	m.publishErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "publish_errors_total",
		Help:      "Failed score publications by subscriber",
	}, []string{"subscriber"})

	m.syncedActivities = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "synced_activities_total",
		Help:      "Unified activities written by activity sync",
	})
}

// ObserveComputation records one terminal computation.
func (m *Metrics) ObserveComputation(scoreType, state string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.computations.WithLabelValues(scoreType, state).Inc()
	m.computationDuration.WithLabelValues(scoreType).Observe(elapsed.Seconds())
}

// CacheLookup records a cache lookup; tier is "memory" or "durable".
func (m *Metrics) CacheLookup(tier string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(tier, result).Inc()
}

// TrainingLoad records which source produced a training-load trend.
func (m *Metrics) TrainingLoad(source string) {
	if m == nil {
		return
	}
	m.trainingLoadSource.WithLabelValues(source).Inc()
}

// DependencyWait records how an upstream wait ended.
func (m *Metrics) DependencyWait(outcome string) {
	if m == nil {
		return
	}
	m.dependencyWaits.WithLabelValues(outcome).Inc()
}

// PublishError records a failed publication.
func (m *Metrics) PublishError(subscriber string) {
	if m == nil {
		return
	}
	m.publishErrors.WithLabelValues(subscriber).Inc()
}

// SyncedActivities adds n stored activities.
func (m *Metrics) SyncedActivities(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.syncedActivities.Add(float64(n))
}
