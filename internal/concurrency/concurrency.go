package concurrency

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// NewPool returns a bounded pool whose tasks respect context cancellation.
// Wait() cancels outstanding tasks on the first error and returns it.
func NewPool(ctx context.Context, maxGoroutines int) *pool.ContextPool {
	return pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(maxGoroutines)
}

// NewBestEffortPool returns a bounded pool that keeps running remaining
// tasks when one fails. Wait() returns the collected errors joined.
func NewBestEffortPool(ctx context.Context, maxGoroutines int) *pool.ContextPool {
	return pool.New().
		WithContext(ctx).
		WithMaxGoroutines(maxGoroutines)
}
