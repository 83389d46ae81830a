package stream

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Batch is one tick of a zipped fan-in. Values[i] is nil when branch i has
// finished, and Errs[i] is set on the tick where branch i failed.
type Batch[T any] struct {
	Values []*T
	Errs   []error
}

type zip[T any] struct {
	branches []Stream[T]
	finished []bool
}

// Zip merges branches into tick-aligned batches. Every tick polls each live
// branch exactly once, concurrently, and is only emitted after all of them
// answered. A failed branch is treated as finished after reporting its error.
// The zipped stream ends once every branch has finished; when all branches
// are empty it ends without producing a batch.
func Zip[T any](branches ...Stream[T]) Stream[Batch[T]] {
	return &zip[T]{
		branches: branches,
		finished: make([]bool, len(branches)),
	}
}

func (z *zip[T]) Next(ctx context.Context) (Batch[T], error) {
	batch := Batch[T]{
		Values: make([]*T, len(z.branches)),
		Errs:   make([]error, len(z.branches)),
	}

	var g errgroup.Group
	polled := false
	for i, branch := range z.branches {
		if z.finished[i] {
			continue
		}
		polled = true
		g.Go(func() error {
			v, err := branch.Next(ctx)
			switch {
			case errors.Is(err, Done):
				z.finished[i] = true
			case err != nil:
				z.finished[i] = true
				batch.Errs[i] = err
			default:
				batch.Values[i] = &v
			}
			return nil
		})
	}
	if !polled {
		return Batch[T]{}, Done
	}
	_ = g.Wait()

	for i := range z.branches {
		if batch.Values[i] != nil || batch.Errs[i] != nil {
			return batch, nil
		}
	}
	// every branch polled in this tick just finished
	return Batch[T]{}, Done
}
