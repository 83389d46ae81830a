package stream

import (
	"context"
	"errors"
)

// Done is returned by Next once a stream has no more values
var Done = errors.New("stream done")

// Stream is a pull-based sequence of values. Next blocks until a value is
// available, the stream ends (Done) or fails.
type Stream[T any] interface {
	Next(ctx context.Context) (T, error)
}

// Func adapts a function to a Stream
type Func[T any] func(ctx context.Context) (T, error)

func (f Func[T]) Next(ctx context.Context) (T, error) { return f(ctx) }

// Item is one value or failure sent over a channel-backed stream
type Item[T any] struct {
	Value T
	Err   error
}

// FromSlice returns a stream yielding items in order
func FromSlice[T any](items []T) Stream[T] {
	i := 0
	return Func[T](func(ctx context.Context) (T, error) {
		var zero T
		if i >= len(items) {
			return zero, Done
		}
		i++
		return items[i-1], nil
	})
}

// Collect drains s and returns every value it produced
func Collect[T any](ctx context.Context, s Stream[T]) ([]T, error) {
	var out []T
	for {
		v, err := s.Next(ctx)
		if errors.Is(err, Done) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}

// Fork derives a branch context from parent. Cancelling parent cancels the
// branch; cancelling the branch leaves parent and sibling branches alone.
// The cause passed to cancel is reported by context.Cause on the branch.
func Fork(parent context.Context) (context.Context, context.CancelCauseFunc) {
	return context.WithCancelCause(parent)
}
