// Package executor runs an operation over a collection with a bounded
// number of workers and collects the results in input order.
package executor

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the pool width used when none is given
const DefaultWorkers = 10

// RunAll applies op to every item with at most maxWorkers in flight and
// returns one result per item, in input order regardless of completion
// order. Failures belong in R; op must not panic. Items not yet started
// when ctx is cancelled are still passed to op, which observes ctx itself.
func RunAll[T, R any](ctx context.Context, op func(context.Context, T) R, items []T, maxWorkers int) []R {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results
	}
	if maxWorkers <= 0 {
		maxWorkers = DefaultWorkers
	}

	var g errgroup.Group
	g.SetLimit(maxWorkers)

	for i, item := range items {
		g.Go(func() error {
			results[i] = op(ctx, item)
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// Result pairs a value with the error that produced it, for operations that
// have no natural way to fold failures into their return value.
type Result[R any] struct {
	Value R
	Err   error
}

// RunAllErr is RunAll for operations returning (R, error)
func RunAllErr[T, R any](ctx context.Context, op func(context.Context, T) (R, error), items []T, maxWorkers int) []Result[R] {
	return RunAll(ctx, func(ctx context.Context, item T) Result[R] {
		v, err := op(ctx, item)
		return Result[R]{Value: v, Err: err}
	}, items, maxWorkers)
}
