package speech

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Result carries one work item's outcome back from the dispatcher. Index
// is the item's position in the input sequence; it is the only ordering
// information that survives concurrent execution.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// Failed reports whether the item produced no usable value.
func (r Result[T]) Failed() bool { return r.Err != nil }

// WorkFunc executes one item. The context carries the per-item deadline;
// implementations return an error instead of panicking or blocking past it.
type WorkFunc[I, T any] func(ctx context.Context, index int, item I) (T, error)

// Dispatch runs fn over items with at most maxWorkers calls in flight.
// Results arrive in completion order, each tagged with its input index, and
// every input index appears in the output exactly once. An item that fails
// or times out becomes a failed Result without disturbing its siblings.
func Dispatch[I, T any](ctx context.Context, items []I, maxWorkers int, itemTimeout time.Duration, fn WorkFunc[I, T]) []Result[T] {
	if len(items) == 0 {
		return nil
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if maxWorkers > len(items) {
		maxWorkers = len(items)
	}

	var (
		wg      sync.WaitGroup
		sem     = make(chan struct{}, maxWorkers)
		results = make(chan Result[T], len(items))
	)
	for i, item := range items {
		wg.Add(1)
		go func(index int, item I) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			itemCtx := ctx
			if itemTimeout > 0 {
				var cancel context.CancelFunc
				itemCtx, cancel = context.WithTimeout(ctx, itemTimeout)
				defer cancel()
			}

			value, err := runOne(itemCtx, index, item, fn)
			results <- Result[T]{Index: index, Value: value, Err: err}
		}(i, item)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]Result[T], 0, len(items))
	for r := range results {
		out = append(out, r)
	}
	return out
}

// runOne guards the worker boundary: a panicking provider SDK becomes a
// failed result for that item only.
func runOne[I, T any](ctx context.Context, index int, item I, fn WorkFunc[I, T]) (value T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("worker panic on item %d: %v", index, rec)
		}
	}()
	if err := ctx.Err(); err != nil {
		return value, err
	}
	return fn(ctx, index, item)
}
