package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Race runs fn under a deadline of timeout. When the deadline wins, fn's
// context is cancelled and Race returns ErrComputationTimeout without waiting
// for fn to return. Cancellation of ctx is returned as ctx.Err().
func Race[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %v: %v", ErrComputationTimeout, timeout, r.err)
		}
		return r.v, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %v", ErrComputationTimeout, timeout)
		}
		return zero, ctx.Err()
	}
}
