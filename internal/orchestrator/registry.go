package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"readiness/internal/score"
	"readiness/internal/telemetry"
)

// Update is pushed to subscribers after every terminal transition. Result is
// nil for NoData.
type Update struct {
	Type      score.Type    `json:"type"`
	Day       string        `json:"day"`
	State     State         `json:"state"`
	Result    *score.Result `json:"result,omitempty"`
	Retryable bool          `json:"retryable"`
	At        time.Time     `json:"at"`
}

// Subscriber consumes score updates
type Subscriber interface {
	Name() string
	OnScore(ctx context.Context, u Update) error
}

// SubscriberFunc adapts a function to Subscriber
type SubscriberFunc struct {
	ID string
	Fn func(ctx context.Context, u Update) error
}

// Name implements Subscriber
func (s SubscriberFunc) Name() string { return s.ID }

// OnScore implements Subscriber
func (s SubscriberFunc) OnScore(ctx context.Context, u Update) error { return s.Fn(ctx, u) }

type subscription struct {
	seq int
	sub Subscriber
}

// Registry fans updates out to subscribers and keeps the latest update per
// type for polling consumers
type Registry struct {
	mu     sync.RWMutex
	subs   map[string]subscription
	seq    int
	latest map[score.Type]Update

	log     *zap.Logger
	metrics *telemetry.Metrics
}

// NewRegistry creates an empty registry
func NewRegistry(log *zap.Logger, metrics *telemetry.Metrics) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		subs:    make(map[string]subscription),
		latest:  make(map[score.Type]Update),
		log:     log.Named("registry"),
		metrics: metrics,
	}
}

// Subscribe registers s and returns a function that removes it
func (r *Registry) Subscribe(s Subscriber) (unsubscribe func()) {
	id := uuid.NewString()

	r.mu.Lock()
	r.seq++
	r.subs[id] = subscription{seq: r.seq, sub: s}
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// Latest returns the last update published for t
func (r *Registry) Latest(t score.Type) (Update, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.latest[t]
	return u, ok
}

// Publish records u as the latest for its type and delivers it to every
// subscriber in subscription order. Subscriber errors are logged.
func (r *Registry) Publish(ctx context.Context, u Update) {
	r.mu.Lock()
	r.latest[u.Type] = u
	subs := make([]subscription, 0, len(r.subs))
	for _, s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].seq < subs[j].seq })

	for _, s := range subs {
		if err := s.sub.OnScore(ctx, u); err != nil {
			r.metrics.PublishError(s.sub.Name())
			r.log.Warn("subscriber failed",
				zap.String("subscriber", s.sub.Name()),
				zap.String("type", string(u.Type)),
				zap.Error(err),
			)
		}
	}
}
