package cache

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/evansims/fgacache/internal/activity"
	"github.com/evansims/fgacache/internal/build"
	"github.com/evansims/fgacache/internal/keys"
	"github.com/evansims/fgacache/pkg/client"
	"github.com/evansims/fgacache/pkg/logger"
	"github.com/evansims/fgacache/pkg/tuple"
)

var (
	checkTotalCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "check_total_count",
		Help:      "The total number of calls to Check.",
	})

	checkHitCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "check_hit_count",
		Help:      "The total number of Check calls answered from cache.",
	})

	deduplicatedChecksCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "deduplicated_checks_count",
		Help:      "The total number of remote check calls avoided by collapsing concurrent misses.",
	})

	invalidatedEntriesCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "invalidated_entries_count",
		Help:      "The total number of cache entries removed by invalidation.",
	})
)

// CheckRequest carries one permission check through the cache.
type CheckRequest struct {
	Tuple            tuple.TupleKey
	ContextualTuples []tuple.TupleKey
	Context          map[string]any
}

// CheckResult is the answer to a check plus whether it was served from
// cache.
type CheckResult struct {
	Allowed bool `json:"allowed"`
	Cached  bool `json:"cached"`
}

// ReadThroughCache answers checks from a local store and falls through to
// the remote authorization service on miss, caching the fresh answer under
// a TTL. Failed remote checks are never cached.
type ReadThroughCache struct {
	connection string
	client     client.AuthorizationClient
	store      Store
	stats      *StatsRegistry
	tracker    activity.Tracker
	ttl        time.Duration
	logger     logger.Logger
	group      singleflight.Group
}

// ReadThroughCacheOpt defines an option that can be used to change the
// behavior of a ReadThroughCache instance.
type ReadThroughCacheOpt func(*ReadThroughCache)

// WithTTL sets how long a cached check result may be served.
func WithTTL(ttl time.Duration) ReadThroughCacheOpt {
	return func(c *ReadThroughCache) {
		c.ttl = ttl
	}
}

// WithLogger sets the logger for the read-through cache.
func WithLogger(logger logger.Logger) ReadThroughCacheOpt {
	return func(c *ReadThroughCache) {
		c.logger = logger
	}
}

// WithActivityTracker records every check with the tracker, feeding
// activity-based warming.
func WithActivityTracker(tracker activity.Tracker) ReadThroughCacheOpt {
	return func(c *ReadThroughCache) {
		c.tracker = tracker
	}
}

// WithStatsRegistry sets the registry the cache counts into. Useful when
// several caches should aggregate into one set of counters.
func WithStatsRegistry(stats *StatsRegistry) ReadThroughCacheOpt {
	return func(c *ReadThroughCache) {
		c.stats = stats
	}
}

// NewReadThroughCache builds a cache for one named connection on top of the
// given store. The store stays owned by the caller.
func NewReadThroughCache(connection string, remote client.AuthorizationClient, store Store, opts ...ReadThroughCacheOpt) *ReadThroughCache {
	c := &ReadThroughCache{
		connection: connection,
		client:     remote,
		store:      store,
		stats:      NewStatsRegistry(),
		ttl:        DefaultTTL,
		logger:     logger.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Connection returns the connection name the cache serves.
func (c *ReadThroughCache) Connection() string {
	return c.connection
}

// TTL returns the configured entry lifetime.
func (c *ReadThroughCache) TTL() time.Duration {
	return c.ttl
}

// Check returns whether the tuple holds. On a hit the cached answer is
// returned without contacting the remote service. On a miss the remote
// answer is cached under the TTL; concurrent misses for the same key are
// collapsed into a single remote call. Remote errors propagate uncached.
func (c *ReadThroughCache) Check(ctx context.Context, req CheckRequest) (CheckResult, error) {
	checkTotalCounter.Inc()

	if err := req.Tuple.Validate(); err != nil {
		return CheckResult{}, err
	}

	hash, err := keys.ContextHash(req.ContextualTuples, req.Context)
	if err != nil {
		return CheckResult{}, err
	}
	key := keys.NewCheckKey(c.connection, req.Tuple, hash)

	c.recordCheck(ctx, req.Tuple)

	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache lookup failed, falling through to the remote service",
			zap.Error(err),
			zap.String("key", key.String()),
		)
	}
	if ok {
		c.stats.RecordHit()
		checkHitCounter.Inc()
		return CheckResult{Allowed: entry.Allowed, Cached: true}, nil
	}

	c.stats.RecordMiss()

	allowed, err, shared := c.group.Do(key.String(), func() (interface{}, error) {
		return c.fetch(ctx, key, req)
	})
	if err != nil {
		return CheckResult{}, err
	}
	if shared {
		deduplicatedChecksCounter.Inc()
	}

	return CheckResult{Allowed: allowed.(bool)}, nil
}

// fetch performs the remote check and stores the answer. A store failure
// does not fail the check; the fresh remote answer is still correct.
func (c *ReadThroughCache) fetch(ctx context.Context, key keys.CheckKey, req CheckRequest) (bool, error) {
	allowed, err := c.client.Check(ctx, client.CheckRequest{
		Tuple:            req.Tuple,
		ContextualTuples: req.ContextualTuples,
		Context:          req.Context,
	})
	if err != nil {
		return false, err
	}

	entry := Entry{
		Key:      key,
		Allowed:  allowed,
		CachedAt: time.Now().UTC(),
	}
	if err := c.store.Set(ctx, key, entry, c.ttl); err != nil {
		c.logger.Warn("failed to store check result",
			zap.Error(err),
			zap.String("key", key.String()),
		)
	}

	return allowed, nil
}

// Invalidate removes every cached entry matching the selector and returns
// how many were removed.
func (c *ReadThroughCache) Invalidate(ctx context.Context, selector keys.Selector) (int, error) {
	removed, err := c.store.DeleteMatch(ctx, c.connection, selector)
	invalidatedEntriesCounter.Add(float64(removed))
	return removed, err
}

// Stats returns a snapshot of the cache counters.
func (c *ReadThroughCache) Stats() Stats {
	return c.stats.Snapshot()
}

// ResetStats zeroes the cache counters.
func (c *ReadThroughCache) ResetStats() {
	c.stats.Reset()
}

func (c *ReadThroughCache) recordCheck(ctx context.Context, t tuple.TupleKey) {
	if c.tracker == nil {
		return
	}

	if err := c.tracker.RecordCheck(ctx, c.connection, t, time.Now().UTC()); err != nil {
		c.logger.Debug("failed to record check activity",
			zap.Error(err),
			zap.String("tuple", t.String()),
		)
	}
}
