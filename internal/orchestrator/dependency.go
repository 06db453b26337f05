package orchestrator

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"readiness/internal/score"
)

type dependency struct {
	upstream *Orchestrator
	maxWait  time.Duration
	initial  time.Duration
	max      time.Duration
}

// resolveDependency returns the upstream result for day, or nil when there is
// no dependency or it did not resolve within maxWait. An upstream computing
// the same day is polled; otherwise it is triggered for day and awaited
// inline, queueing behind a flight for another day.
func (o *Orchestrator) resolveDependency(ctx context.Context, day string) *score.Result {
	d := o.dep
	if d == nil {
		return nil
	}
	up := d.upstream

	var out Outcome
	if computing, ok := up.computingDay(); ok && computing == day {
		if !d.poll(ctx) {
			o.unresolved(ctx, "upstream still computing")
			return nil
		}
		last, ok := up.Last()
		if !ok || last.Result.Day != day {
			o.unresolved(ctx, "upstream finished without a result for the day")
			return nil
		}
		out = last
	} else {
		wctx, cancel := context.WithTimeout(ctx, d.maxWait)
		out = up.Calculate(wctx, day, false)
		cancel()
	}

	if !out.OK() || out.Result.Day != day {
		o.unresolved(ctx, "upstream has no trustworthy result")
		return nil
	}
	o.metrics.DependencyWait("resolved")
	r := out.Result
	return &r
}

// poll waits until upstream leaves Computing or maxWait elapses
func (d *dependency) poll(ctx context.Context) bool {
	bo := backoff.NewExponentialBackOff()
	if d.initial > 0 {
		bo.InitialInterval = d.initial
	}
	if d.max > 0 {
		bo.MaxInterval = d.max
	}
	bo.Reset()

	deadline := time.NewTimer(d.maxWait)
	defer deadline.Stop()

	for d.upstream.State() == Computing {
		wait := time.NewTimer(bo.NextBackOff())
		select {
		case <-ctx.Done():
			wait.Stop()
			return false
		case <-deadline.C:
			wait.Stop()
			return d.upstream.State() != Computing
		case <-wait.C:
		}
	}
	return true
}

// computingDay returns the day of the in-flight computation
func (o *Orchestrator) computingDay() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.flight == nil {
		return "", false
	}
	return o.flight.day, true
}

func (o *Orchestrator) unresolved(ctx context.Context, reason string) {
	o.metrics.DependencyWait("unresolved")
	o.log.Warn("computing without upstream score",
		zap.String("upstream", string(o.dep.upstream.Type())),
		zap.String("reason", reason),
		zap.Error(ErrDependencyUnresolved),
		zap.Bool("cancelled", ctx.Err() != nil),
	)
}

// dropNewer discards an upstream result that started after the dependent
// computation did
func (o *Orchestrator) dropNewer(upstream *score.Result, startedAt time.Time) *score.Result {
	if upstream == nil || !upstream.StartedAt.After(startedAt) {
		return upstream
	}
	o.metrics.DependencyWait("dropped")
	o.log.Warn("dropping upstream result newer than this computation",
		zap.String("upstream", string(upstream.Type)),
		zap.Time("upstream_started_at", upstream.StartedAt),
		zap.Time("started_at", startedAt),
	)
	return nil
}
