// Package cache is the two-tier score cache: a TTL-bounded in-memory map in
// front of the durable store, which stays the system of record on cold start.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"readiness/internal/score"
	"readiness/internal/telemetry"
)

// DefaultTTL bounds Tier 1 freshness
const DefaultTTL = 24 * time.Hour

// ErrMiss is returned when neither tier holds the key
var ErrMiss = errors.New("cache miss")

// Key identifies a cached result. The algorithm version namespaces keys so a
// version bump never hits old entries.
type Key struct {
	Type    score.Type
	Day     string
	Version int
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:v%d", k.Type, k.Day, k.Version)
}

// Durable is the Tier 2 store
type Durable interface {
	GetScore(ctx context.Context, t score.Type, day string, version int) (*score.Result, error)
	PutScore(ctx context.Context, r score.Result) error
	LatestScore(ctx context.Context, t score.Type, day string, version int) (*score.Result, error)
	DeleteScores(ctx context.Context, t score.Type) error
}

type entry struct {
	result   score.Result
	storedAt time.Time
}

// Coordinator reads through Tier 1 then Tier 2 and writes through both
type Coordinator struct {
	mu      sync.RWMutex
	entries map[Key]entry

	durable Durable
	version int
	ttl     time.Duration
	now     func() time.Time
	log     *zap.Logger
	metrics *telemetry.Metrics
}

// New creates a Coordinator for results of the given algorithm version.
// durable may be nil for a memory-only cache.
func New(durable Durable, version int, opts ...Option) *Coordinator {
	c := &Coordinator{
		entries: make(map[Key]entry),
		durable: durable,
		version: version,
		ttl:     DefaultTTL,
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the key of (t, day) at the current algorithm version
func (c *Coordinator) Key(t score.Type, day string) Key {
	return Key{Type: t, Day: day, Version: c.version}
}

// Get returns a fresh Tier 1 entry, else a Tier 2 record promoted into Tier 1
// and marked reconstructed, else ErrMiss.
func (c *Coordinator) Get(ctx context.Context, t score.Type, day string) (score.Result, error) {
	key := c.Key(t, day)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.fresh(e) {
		c.metrics.CacheLookup("memory", true)
		return e.result, nil
	}
	c.metrics.CacheLookup("memory", false)

	if c.durable == nil {
		return score.Result{}, ErrMiss
	}
	if err := ctx.Err(); err != nil {
		return score.Result{}, err
	}

	stored, err := c.durable.GetScore(ctx, t, day, c.version)
	if err != nil {
		return score.Result{}, fmt.Errorf("reading %s from durable tier: %w", key, err)
	}
	if stored == nil {
		c.metrics.CacheLookup("durable", false)
		return score.Result{}, ErrMiss
	}
	c.metrics.CacheLookup("durable", true)

	r := *stored
	r.Fidelity = score.Reconstructed
	c.store(key, r)
	c.log.Debug("promoted durable result", zap.Stringer("key", key))
	return r, nil
}

// Put writes r through Tier 2 then Tier 1. Tier 1 is updated even when the
// durable write fails; the error is returned for the caller to log.
func (c *Coordinator) Put(ctx context.Context, r score.Result) error {
	key := c.Key(r.Type, r.Day)
	r.AlgorithmVersion = c.version

	var err error
	if c.durable != nil {
		if perr := c.durable.PutScore(ctx, r); perr != nil {
			err = fmt.Errorf("writing %s to durable tier: %w", key, perr)
		}
	}
	c.store(key, r)
	return err
}

// Invalidate drops key from Tier 1 only
func (c *Coordinator) Invalidate(key Key) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// LastGood is the explicit degraded read: the newest trustworthy result of
// type t on or before day, from Tier 1 (expired entries included) or Tier 2,
// flagged stale.
func (c *Coordinator) LastGood(ctx context.Context, t score.Type, day string) (score.Result, bool) {
	var best score.Result
	found := false

	c.mu.RLock()
	for k, e := range c.entries {
		if k.Type != t || k.Version != c.version || k.Day > day || !e.result.Trustworthy() {
			continue
		}
		if !found || k.Day > best.Day {
			best = e.result
			found = true
		}
	}
	c.mu.RUnlock()

	if c.durable != nil && ctx.Err() == nil {
		stored, err := c.durable.LatestScore(ctx, t, day, c.version)
		switch {
		case err != nil:
			c.log.Warn("durable last-good lookup failed", zap.String("type", string(t)), zap.Error(err))
		case stored != nil && stored.Trustworthy() && (!found || stored.Day > best.Day):
			best = *stored
			found = true
		}
	}

	if !found {
		return score.Result{}, false
	}
	best.Fidelity = score.Stale
	return best, true
}

// Clear removes every result of type t from both tiers
func (c *Coordinator) Clear(ctx context.Context, t score.Type) error {
	c.mu.Lock()
	for k := range c.entries {
		if k.Type == t {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()

	if c.durable == nil {
		return nil
	}
	if err := c.durable.DeleteScores(ctx, t); err != nil {
		return fmt.Errorf("clearing %s from durable tier: %w", t, err)
	}
	return nil
}

// Len returns the number of Tier 1 entries, expired ones included
func (c *Coordinator) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Coordinator) store(key Key, r score.Result) {
	c.mu.Lock()
	c.entries[key] = entry{result: r, storedAt: c.now()}
	c.mu.Unlock()
}

func (c *Coordinator) fresh(e entry) bool {
	return c.now().Sub(e.storedAt) < c.ttl
}
