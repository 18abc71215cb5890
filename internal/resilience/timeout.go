package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithTimeout runs fn and fails with a TIMEOUT error if it has not returned
// within d.
//
// fn receives a context that is cancelled when the deadline passes, but
// operations that ignore their context (plain os calls) keep running in the
// background. Their eventual result is dropped.
func WithTimeout[T any](ctx context.Context, d time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if d <= 0 {
		return fn(ctx)
	}

	opCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		val T
		err error
	}
	// Buffered so a late result never blocks the goroutine.
	done := make(chan result, 1)
	go func() {
		v, err := fn(opCtx)
		done <- result{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-opCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if !errors.Is(opCtx.Err(), context.DeadlineExceeded) {
			return zero, opCtx.Err()
		}
		return zero, NewError(CodeTimeout, op,
			fmt.Sprintf("%s timed out after %s", op, d), nil,
			map[string]any{"timeout": d.String(), "operation": op})
	}
}
