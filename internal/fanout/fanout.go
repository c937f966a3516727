// Package fanout runs independent tasks with a fixed worker budget.
package fanout

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one item. Err is set instead of Value when the
// item's task failed or panicked.
type Result[R any] struct {
	Value R
	Err   error
}

// Map calls fn for every item using at most limit concurrent workers and
// returns one Result per item in input order. A failing item never stops the
// others. Items not yet started when ctx is done get ctx.Err().
func Map[T, R any](
	ctx context.Context,
	items []T,
	limit int,
	fn func(ctx context.Context, idx int, item T) (R, error),
) []Result[R] {
	results := make([]Result[R], len(items))
	if len(items) == 0 {
		return results
	}
	workers := max(1, min(limit, len(items)))

	var cursor atomic.Int64
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				idx := int(cursor.Add(1) - 1)
				if idx >= len(items) {
					return nil
				}
				if err := ctx.Err(); err != nil {
					results[idx] = Result[R]{Err: err}
					continue
				}
				results[idx] = run(ctx, idx, items[idx], fn)
			}
		})
	}
	_ = g.Wait() // workers never return an error
	return results
}

func run[T, R any](
	ctx context.Context,
	idx int,
	item T,
	fn func(ctx context.Context, idx int, item T) (R, error),
) (res Result[R]) {
	defer func() {
		if rec := recover(); rec != nil {
			res = Result[R]{Err: fmt.Errorf("item %d panicked: %v", idx, rec)}
		}
	}()
	v, err := fn(ctx, idx, item)
	if err != nil {
		return Result[R]{Err: err}
	}
	return Result[R]{Value: v}
}
