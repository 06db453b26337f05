// Package orchestrator runs one score type's computations: single-flight,
// daily throttle, cache read path, deadline race, upstream dependency waits,
// authorization guard and publication of terminal updates.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"readiness/internal/cache"
	"readiness/internal/score"
	"readiness/internal/telemetry"
)

// Request is the input of one computation
type Request struct {
	Day       string
	StartedAt time.Time
	Upstream  *score.Result // nil when there is no dependency or it did not resolve
}

// Computer produces one score for a day. Implementations must honor ctx.
type Computer interface {
	Compute(ctx context.Context, req Request) (score.Result, error)
}

// ComputerFunc adapts a function to Computer
type ComputerFunc func(ctx context.Context, req Request) (score.Result, error)

// Compute implements Computer
func (f ComputerFunc) Compute(ctx context.Context, req Request) (score.Result, error) {
	return f(ctx, req)
}

// Cache is the tiered result cache
type Cache interface {
	Get(ctx context.Context, t score.Type, day string) (score.Result, error)
	Put(ctx context.Context, r score.Result) error
	LastGood(ctx context.Context, t score.Type, day string) (score.Result, bool)
	Clear(ctx context.Context, t score.Type) error
}

type flight struct {
	id      string
	day     string
	created time.Time
	cancel  context.CancelFunc
	done    chan struct{}
	outcome Outcome
	next    *flight // same-day flight that superseded this one
	revoked bool    // cancelled by an authorization revoke
}

// Orchestrator owns the computations of one score type
type Orchestrator struct {
	typ      score.Type
	computer Computer
	cache    Cache
	records  RecordStore
	auth     AuthCheck
	registry *Registry
	dep      *dependency
	timeout  time.Duration
	version  int
	now      func() time.Time
	log      *zap.Logger
	metrics  *telemetry.Metrics
	tracer   trace.Tracer

	mu            sync.Mutex
	state         State
	flight        *flight
	last          *Outcome
	lastDay       string
	lastDayLoaded bool
}

// New creates an orchestrator for t
func New(t score.Type, computer Computer, c Cache, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		typ:      t,
		computer: computer,
		cache:    c,
		timeout:  DefaultTimeout,
		version:  1,
		now:      time.Now,
		log:      zap.NewNop(),
		state:    Idle,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = telemetry.Tracer()
	}
	o.log = o.log.Named(string(t))
	return o
}

// Type returns the score type
func (o *Orchestrator) Type() score.Type {
	return o.typ
}

// State returns the live state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Last returns the outcome of the most recent completed flight
func (o *Orchestrator) Last() (Outcome, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return Outcome{}, false
	}
	return *o.last, true
}

// Calculate returns the score for day. A non-forced call joins an in-flight
// computation of the same day and is served by the daily throttle or the
// cache when possible. A forced call cancels any in-flight computation and
// starts anew.
func (o *Orchestrator) Calculate(ctx context.Context, day string, force bool) Outcome {
	if err := ctx.Err(); err != nil {
		return o.abandoned(day, err)
	}
	if !o.authorized(ctx) {
		return o.revoke(ctx, day)
	}

	if !force {
		if out, ok := o.fromCache(ctx, day); ok {
			return out
		}
	}

	f, err := o.begin(ctx, day, force)
	if err != nil {
		return o.abandoned(day, err)
	}
	return o.await(ctx, f)
}

// abandoned is the outcome of a call that gave up before a result existed
func (o *Orchestrator) abandoned(day string, err error) Outcome {
	return Outcome{
		Result:    score.Placeholder(o.typ, day, o.now(), o.version, true),
		State:     Failed,
		Err:       err,
		Retryable: true,
	}
}

func (o *Orchestrator) denied(day string) Outcome {
	return Outcome{
		Result: score.Placeholder(o.typ, day, o.now(), o.version, false),
		State:  NoData,
		Err:    ErrAuthorizationDenied,
	}
}

func (o *Orchestrator) authorized(ctx context.Context) bool {
	return o.auth == nil || o.auth(ctx)
}

// revoke clears every cached result of the type and publishes NoData
func (o *Orchestrator) revoke(ctx context.Context, day string) Outcome {
	o.mu.Lock()
	if o.flight != nil {
		o.flight.revoked = true
		o.flight.cancel()
		o.flight = nil
	}
	o.state = NoData
	o.last = nil
	o.lastDay = ""
	o.lastDayLoaded = true
	o.mu.Unlock()

	if err := o.cache.Clear(ctx, o.typ); err != nil {
		o.log.Error("clearing cached scores", zap.Error(err))
	}
	if o.records != nil {
		if err := o.records.SetSyncState(ctx, recordKey(o.typ), ""); err != nil {
			o.log.Error("clearing computation record", zap.Error(err))
		}
	}

	out := o.denied(day)
	o.log.Info("source not authorized, cleared scores", zap.String("day", day))
	o.publish(ctx, out)
	o.metrics.ObserveComputation(string(o.typ), string(NoData), 0)
	return out
}

// fromCache serves non-forced calls from the throttle record and the cache
func (o *Orchestrator) fromCache(ctx context.Context, day string) (Outcome, bool) {
	r, err := o.cache.Get(ctx, o.typ, day)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			o.log.Warn("cache read failed", zap.String("day", day), zap.Error(err))
		}
		return Outcome{}, false
	}
	if !r.Trustworthy() {
		o.log.Debug("ignoring untrustworthy cached result", zap.String("day", day))
		return Outcome{}, false
	}
	return Outcome{
		Result:    r,
		State:     Succeeded,
		FromCache: true,
		Throttled: o.record(ctx) == day,
		StartedAt: r.StartedAt,
	}, true
}

// begin joins, supersedes or launches a flight
func (o *Orchestrator) begin(ctx context.Context, day string, force bool) (*flight, error) {
	for {
		o.mu.Lock()
		cur := o.flight
		switch {
		case cur == nil:
			if !force && o.lastDay == day && o.last != nil && o.last.OK() && o.last.Result.Day == day {
				f := o.completed(day, *o.last)
				o.mu.Unlock()
				return f, nil
			}
			f := o.launch(ctx, day)
			o.mu.Unlock()
			return f, nil

		case !force && cur.day == day:
			o.mu.Unlock()
			return cur, nil

		case force:
			f := o.launch(ctx, day)
			if cur.day == day {
				cur.next = f
			}
			cur.cancel()
			o.mu.Unlock()
			o.log.Debug("forced refresh superseded in-flight computation", zap.String("flight", cur.id))
			return f, nil

		default:
			// Another day is in flight; wait for it and retry.
			done := cur.done
			o.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
}

// completed returns an already finished flight carrying a throttled outcome.
// Must be called with o.mu held.
func (o *Orchestrator) completed(day string, last Outcome) *flight {
	last.FromCache = true
	last.Throttled = true
	f := &flight{day: day, done: make(chan struct{}), outcome: last, cancel: func() {}}
	close(f.done)
	return f
}

// launch starts a flight. Must be called with o.mu held.
func (o *Orchestrator) launch(ctx context.Context, day string) *flight {
	fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f := &flight{
		id:      uuid.NewString(),
		day:     day,
		created: o.now(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	o.flight = f
	o.state = Computing
	go o.run(fctx, f)
	return f
}

// await waits for f, following superseding flights
func (o *Orchestrator) await(ctx context.Context, f *flight) Outcome {
	for {
		select {
		case <-f.done:
			o.mu.Lock()
			next := f.next
			o.mu.Unlock()
			if next == nil {
				return f.outcome
			}
			f = next
		case <-ctx.Done():
			out := o.abandoned(f.day, ctx.Err())
			out.StartedAt = f.created
			return out
		}
	}
}

func (o *Orchestrator) run(ctx context.Context, f *flight) {
	defer f.cancel()

	ctx, span := o.tracer.Start(ctx, "orchestrator.calculate", trace.WithAttributes(
		attribute.String("score.type", string(o.typ)),
		attribute.String("score.day", f.day),
		attribute.String("flight.id", f.id),
	))
	defer span.End()

	res, err := Race(ctx, o.timeout, func(ctx context.Context) (score.Result, error) {
		upstream := o.resolveDependency(ctx, f.day)
		if err := ctx.Err(); err != nil {
			return score.Result{}, err
		}
		startedAt := o.now()
		upstream = o.dropNewer(upstream, startedAt)

		r, err := o.computer.Compute(ctx, Request{Day: f.day, StartedAt: startedAt, Upstream: upstream})
		if err != nil {
			return score.Result{}, err
		}
		r.StartedAt = startedAt
		return r, nil
	})

	out, current := o.settle(ctx, f, res, err)
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, string(out.State))
	}
	span.SetAttributes(attribute.String("score.state", string(out.State)))

	o.finish(f, out)
	if current {
		o.publish(ctx, out)
		o.metrics.ObserveComputation(string(o.typ), string(out.State), o.now().Sub(f.created))
	}
}

// settle classifies a computation result. current is false when the flight
// was superseded or revoked, in which case nothing is written or published.
func (o *Orchestrator) settle(ctx context.Context, f *flight, res score.Result, err error) (Outcome, bool) {
	o.mu.Lock()
	current := o.flight == f
	revoked := f.revoked
	o.mu.Unlock()
	if !current {
		out := o.abandoned(f.day, context.Canceled)
		if revoked {
			out = o.denied(f.day)
		}
		out.StartedAt = f.created
		return out, false
	}

	switch {
	case err == nil && !res.Placeholder:
		if perr := o.cache.Put(ctx, res); perr != nil {
			o.log.Error("caching result", zap.String("day", f.day), zap.Error(perr))
		}
		o.setRecord(ctx, f.day)
		o.log.Info("computed score",
			zap.String("day", f.day),
			zap.Float64("score", res.Score),
			zap.String("band", res.Band),
			zap.String("confidence", string(res.Confidence)),
		)
		return Outcome{Result: res, State: Succeeded, StartedAt: res.StartedAt}, true

	case err == nil:
		o.log.Info("inputs unavailable, placeholder result", zap.String("day", f.day))
		return Outcome{
			Result:    res,
			State:     Failed,
			Err:       ErrDataUnavailable,
			Retryable: true,
			StartedAt: res.StartedAt,
		}, true

	case errors.Is(err, ErrComputationTimeout):
		o.log.Warn("computation timed out", zap.String("day", f.day), zap.Duration("timeout", o.timeout))
		out := o.fallback(ctx, f)
		out.State = TimedOut
		out.Err = err
		return out, true

	default:
		o.log.Error("computation failed", zap.String("day", f.day), zap.Error(err))
		out := o.fallback(ctx, f)
		out.State = Failed
		out.Err = fmt.Errorf("computing %s for %s: %w", o.typ, f.day, err)
		return out, true
	}
}

// fallback returns the last good cached result, else a placeholder
func (o *Orchestrator) fallback(ctx context.Context, f *flight) Outcome {
	if r, ok := o.cache.LastGood(ctx, o.typ, f.day); ok {
		return Outcome{Result: r, FromCache: true, Retryable: true, StartedAt: f.created}
	}
	return Outcome{
		Result:    score.Placeholder(o.typ, f.day, o.now(), o.version, true),
		Retryable: true,
		StartedAt: f.created,
	}
}

func (o *Orchestrator) finish(f *flight, out Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f.outcome = out
	if o.flight == f {
		o.flight = nil
		o.state = Idle
		last := out
		o.last = &last
	}
	close(f.done)
}

func (o *Orchestrator) publish(ctx context.Context, out Outcome) {
	if o.registry == nil {
		return
	}
	u := Update{
		Type:      o.typ,
		Day:       out.Result.Day,
		State:     out.State,
		Retryable: out.Retryable,
		At:        o.now(),
	}
	if out.State != NoData {
		r := out.Result
		u.Result = &r
	}
	o.registry.Publish(ctx, u)
}

func recordKey(t score.Type) string {
	return "last_computed:" + string(t)
}

// record returns the persisted last-computed day, loading it once
func (o *Orchestrator) record(ctx context.Context) string {
	o.mu.Lock()
	if o.lastDayLoaded || o.records == nil {
		d := o.lastDay
		o.mu.Unlock()
		return d
	}
	o.mu.Unlock()

	d, err := o.records.GetSyncState(ctx, recordKey(o.typ))
	if err != nil {
		o.log.Warn("reading computation record", zap.Error(err))
		return ""
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.lastDayLoaded {
		o.lastDay = d
		o.lastDayLoaded = true
	}
	return o.lastDay
}

func (o *Orchestrator) setRecord(ctx context.Context, day string) {
	o.mu.Lock()
	o.lastDay = day
	o.lastDayLoaded = true
	o.mu.Unlock()

	if o.records == nil {
		return
	}
	if err := o.records.SetSyncState(ctx, recordKey(o.typ), day); err != nil {
		o.log.Error("writing computation record", zap.String("day", day), zap.Error(err))
	}
}
