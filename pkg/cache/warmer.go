package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/evansims/fgacache/internal/concurrency"
	"github.com/evansims/fgacache/pkg/logger"
	"github.com/evansims/fgacache/pkg/tuple"
)

const defaultWarmConcurrency = 10

// ErrNoActivityTracker is returned by WarmFromActivity when the
// read-through cache records no activity.
var ErrNoActivityTracker = errors.New("no activity tracker configured")

// Warmer pre-populates the read-through cache by issuing checks that fill
// it on miss.
type Warmer struct {
	readCache   *ReadThroughCache
	concurrency int
	logger      logger.Logger
}

// WarmerOpt defines an option that can be used to change the behavior of a
// Warmer instance.
type WarmerOpt func(*Warmer)

// WithWarmConcurrency bounds how many checks a warming call runs at once.
func WithWarmConcurrency(n int) WarmerOpt {
	return func(w *Warmer) {
		w.concurrency = n
	}
}

// WithWarmerLogger sets the logger for the warmer.
func WithWarmerLogger(logger logger.Logger) WarmerOpt {
	return func(w *Warmer) {
		w.logger = logger
	}
}

func NewWarmer(readCache *ReadThroughCache, opts ...WarmerOpt) *Warmer {
	w := &Warmer{
		readCache:   readCache,
		concurrency: defaultWarmConcurrency,
		logger:      logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// WarmBatch checks the full cross product of users, relations and objects,
// so every combination ends up cached. It is synchronous and can be slow
// for large cross products; callers are expected to chunk. Returns how many
// combinations are now cached; failed checks are skipped and reported in
// the joined error.
func (w *Warmer) WarmBatch(ctx context.Context, users, relations, objects []string) (int, error) {
	tuples := make([]tuple.TupleKey, 0, len(users)*len(relations)*len(objects))
	for _, user := range users {
		for _, relation := range relations {
			for _, object := range objects {
				tuples = append(tuples, tuple.NewTupleKey(user, relation, object))
			}
		}
	}

	return w.warm(ctx, tuples)
}

// WarmFromActivity warms the tuples the activity tracker ranks as most
// worth caching, bounded by limit.
func (w *Warmer) WarmFromActivity(ctx context.Context, limit int) (int, error) {
	if w.readCache.tracker == nil {
		return 0, ErrNoActivityTracker
	}

	tuples, err := w.readCache.tracker.TopTuples(ctx, w.readCache.Connection(), limit)
	if err != nil {
		return 0, fmt.Errorf("ranking recent activity: %w", err)
	}

	return w.warm(ctx, tuples)
}

// WarmObjects discovers every object of objectType on which user has
// relation, then warms the check result for each.
func (w *Warmer) WarmObjects(ctx context.Context, user, relation, objectType string) (int, error) {
	objects, err := w.readCache.client.ListObjects(ctx, user, relation, objectType)
	if err != nil {
		return 0, fmt.Errorf("listing objects to warm: %w", err)
	}

	tuples := make([]tuple.TupleKey, 0, len(objects))
	for _, object := range objects {
		tuples = append(tuples, tuple.NewTupleKey(user, relation, object))
	}

	return w.warm(ctx, tuples)
}

func (w *Warmer) warm(ctx context.Context, tuples []tuple.TupleKey) (int, error) {
	if len(tuples) == 0 {
		return 0, nil
	}

	var warmed atomic.Int64

	p := concurrency.NewBestEffortPool(ctx, w.concurrency)
	for _, t := range tuples {
		p.Go(func(ctx context.Context) error {
			if _, err := w.readCache.Check(ctx, CheckRequest{Tuple: t}); err != nil {
				return fmt.Errorf("warm %s: %w", t, err)
			}

			warmed.Add(1)
			return nil
		})
	}
	err := p.Wait()

	w.logger.Debug("cache warmed",
		zap.Int("requested", len(tuples)),
		zap.Int64("warmed", warmed.Load()),
	)

	return int(warmed.Load()), err
}
