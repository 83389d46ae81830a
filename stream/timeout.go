package stream

import (
	"context"
	"time"

	"inlinecomplete/types"
)

type firstValueTimeout[T any] struct {
	s       Stream[T]
	after   time.Duration
	abort   context.CancelCauseFunc
	started bool
	expired bool
}

// WithFirstValueTimeout fails s with a *types.TimeoutError when its first
// value takes longer than d, cancelling the branch through abort. Once a
// value has arrived no further bound is applied. A d <= 0 disables the bound.
func WithFirstValueTimeout[T any](s Stream[T], d time.Duration, abort context.CancelCauseFunc) Stream[T] {
	return &firstValueTimeout[T]{s: s, after: d, abort: abort}
}

func (t *firstValueTimeout[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if t.expired {
		return zero, Done
	}
	if t.started || t.after <= 0 {
		return t.s.Next(ctx)
	}

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := t.s.Next(ctx)
		ch <- result{v, err}
	}()

	timer := time.NewTimer(t.after)
	defer timer.Stop()

	select {
	case r := <-ch:
		t.started = true
		return r.v, r.err
	case <-timer.C:
		t.expired = true
		err := &types.TimeoutError{After: t.after}
		if t.abort != nil {
			t.abort(err)
		}
		return zero, err
	}
}
