package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/evansims/fgacache/internal/activity"
	"github.com/evansims/fgacache/internal/keys"
	"github.com/evansims/fgacache/pkg/cache"
	"github.com/evansims/fgacache/pkg/client"
	"github.com/evansims/fgacache/pkg/config"
	"github.com/evansims/fgacache/pkg/events"
	"github.com/evansims/fgacache/pkg/logger"
	"github.com/evansims/fgacache/pkg/tuple"
)

// recentOperationsLimit bounds the pending-operation list shown on the
// status surface.
const recentOperationsLimit = 25

// Connection is the fully wired cache core for one remote authorization
// service: client, stores, read-through cache, write buffer, invalidator,
// warmer, activity tracker and notifier.
type Connection struct {
	name        string
	cfg         config.ConnectionConfig
	client      client.AuthorizationClient
	store       cache.Store
	readCache   *cache.ReadThroughCache
	writeBehind *cache.WriteBehindCache
	invalidator *cache.Invalidator
	warmer      *cache.Warmer
	tracker     activity.Tracker
	notifier    events.Notifier
	logger      logger.Logger
}

func newConnection(name string, cfg config.ConnectionConfig, log logger.Logger) (*Connection, error) {
	remote, err := newAuthorizationClient(cfg.Remote)
	if err != nil {
		return nil, err
	}

	store, err := newStore(cfg.Cache)
	if err != nil {
		_ = remote.Close()
		return nil, err
	}

	tracker, err := newTracker(cfg.Activity)
	if err != nil {
		store.Stop()
		_ = remote.Close()
		return nil, err
	}

	notifier, err := newNotifier(cfg.Events)
	if err != nil {
		if tracker != nil {
			_ = tracker.Close()
		}
		store.Stop()
		_ = remote.Close()
		return nil, err
	}

	readOpts := []cache.ReadThroughCacheOpt{
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithLogger(log),
	}
	if tracker != nil {
		readOpts = append(readOpts, cache.WithActivityTracker(tracker))
	}
	readCache := cache.NewReadThroughCache(name, remote, store, readOpts...)

	writeBehind := cache.NewWriteBehindCache(remote, readCache,
		cache.WithEnabled(cfg.WriteBehind.Enabled),
		cache.WithBatchSize(cfg.WriteBehind.BatchSize),
		cache.WithFlushInterval(cfg.WriteBehind.FlushInterval),
		cache.WithFlushOnStop(cfg.WriteBehind.FlushOnStop),
		cache.WithNotifier(notifier),
		cache.WithWriteBehindLogger(log),
	)

	warmConcurrency := cfg.Warm.Concurrency
	if warmConcurrency <= 0 {
		warmConcurrency = config.DefaultWarmConcurrency
	}

	return &Connection{
		name:        name,
		cfg:         cfg,
		client:      remote,
		store:       store,
		readCache:   readCache,
		writeBehind: writeBehind,
		invalidator: cache.NewInvalidator(readCache),
		warmer: cache.NewWarmer(readCache,
			cache.WithWarmConcurrency(warmConcurrency),
			cache.WithWarmerLogger(log),
		),
		tracker:  tracker,
		notifier: notifier,
		logger:   log,
	}, nil
}

// Name returns the connection's configured name.
func (c *Connection) Name() string {
	return c.name
}

// Check answers a permission check through the read-through cache.
func (c *Connection) Check(ctx context.Context, req cache.CheckRequest) (cache.CheckResult, error) {
	return c.readCache.Check(ctx, req)
}

// Grant adds the relationship. With write-behind enabled the grant is
// buffered and flushed later; otherwise it is written through synchronously
// and the cached results for the tuple are invalidated before returning.
func (c *Connection) Grant(ctx context.Context, t tuple.TupleKey) error {
	if c.cfg.WriteBehind.Enabled {
		return c.writeBehind.Grant(t)
	}

	return c.writeThrough(ctx, t, c.client.WriteTuples)
}

// Revoke removes the relationship, buffered or synchronous like Grant.
func (c *Connection) Revoke(ctx context.Context, t tuple.TupleKey) error {
	if c.cfg.WriteBehind.Enabled {
		return c.writeBehind.Revoke(t)
	}

	return c.writeThrough(ctx, t, c.client.DeleteTuples)
}

func (c *Connection) writeThrough(ctx context.Context, t tuple.TupleKey, send func(context.Context, []tuple.TupleKey) error) error {
	if err := t.Validate(); err != nil {
		return err
	}

	if err := send(ctx, []tuple.TupleKey{t}); err != nil {
		return err
	}

	if _, err := c.readCache.Invalidate(ctx, keys.ForTuple(t)); err != nil {
		c.logger.Warn("failed to invalidate cached results after write",
			zap.Error(err),
			zap.String("tuple", t.String()),
		)
	}

	return nil
}

// Flush synchronously drains the write buffer.
func (c *Connection) Flush(ctx context.Context) (cache.FlushResult, error) {
	return c.writeBehind.Flush(ctx)
}

// Clear discards every pending operation without flushing. Destructive;
// callers own confirming first.
func (c *Connection) Clear(ctx context.Context) (int, error) {
	return c.writeBehind.Clear(ctx)
}

// Invalidate evicts cached check results matching the selector and reports
// the eviction to the notifier.
func (c *Connection) Invalidate(ctx context.Context, selector keys.Selector) (int, error) {
	removed, err := c.invalidator.Invalidate(ctx, selector)
	if err != nil {
		return removed, err
	}

	if removed > 0 {
		c.publish(ctx, events.InvalidateEvent{
			Connection: c.name,
			Removed:    removed,
			OccurredAt: time.Now().UTC(),
		})
	}

	return removed, nil
}

// WarmBatch primes the cache with the cross product of users, relations and
// objects.
func (c *Connection) WarmBatch(ctx context.Context, users, relations, objects []string) (int, error) {
	return c.finishWarm(ctx)(c.warmer.WarmBatch(ctx, users, relations, objects))
}

// WarmFromActivity primes the cache with the most-checked tuples on record.
func (c *Connection) WarmFromActivity(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = c.cfg.Warm.Limit
	}

	return c.finishWarm(ctx)(c.warmer.WarmFromActivity(ctx, limit))
}

// WarmObjects discovers the objects of objectType on which user has
// relation and primes their check results.
func (c *Connection) WarmObjects(ctx context.Context, user, relation, objectType string) (int, error) {
	return c.finishWarm(ctx)(c.warmer.WarmObjects(ctx, user, relation, objectType))
}

func (c *Connection) finishWarm(ctx context.Context) func(int, error) (int, error) {
	return func(warmed int, err error) (int, error) {
		if warmed > 0 {
			c.publish(ctx, events.WarmEvent{
				Connection: c.name,
				Warmed:     warmed,
				OccurredAt: time.Now().UTC(),
			})
		}
		return warmed, err
	}
}

// Stats returns the connection's cache counters.
func (c *Connection) Stats() cache.Stats {
	return c.readCache.Stats()
}

// ResetStats zeroes the connection's cache counters.
func (c *Connection) ResetStats() {
	c.readCache.ResetStats()
}

// Status is the operator-facing snapshot of the write buffer.
type Status struct {
	Connection     string                   `json:"connection"`
	State          cache.State              `json:"state"`
	Pending        cache.Counts             `json:"pending"`
	BatchSize      int                      `json:"batch_size"`
	FlushInterval  time.Duration            `json:"flush_interval"`
	RecentWrites   []cache.PendingOperation `json:"recent_writes"`
	RecentDeletes  []cache.PendingOperation `json:"recent_deletes"`
	CacheTTL       time.Duration            `json:"cache_ttl"`
	ActivityStore  string                   `json:"activity_store"`
	RemoteAPIURL   string                   `json:"remote_api_url"`
	RemoteStoreID  string                   `json:"remote_store_id"`
	WriteBehindOn  bool                     `json:"write_behind_enabled"`
	FlushOnStopOn  bool                     `json:"flush_on_stop"`
	CacheStoreKind string                   `json:"cache_store"`
}

// Status returns the operator snapshot for the status surface.
func (c *Connection) Status() Status {
	writes, deletes := c.writeBehind.PendingOperations(recentOperationsLimit)

	return Status{
		Connection:     c.name,
		State:          c.writeBehind.State(),
		Pending:        c.writeBehind.PendingCounts(),
		BatchSize:      c.writeBehind.BatchSize(),
		FlushInterval:  c.writeBehind.FlushInterval(),
		RecentWrites:   writes,
		RecentDeletes:  deletes,
		CacheTTL:       c.readCache.TTL(),
		ActivityStore:  c.cfg.Activity.Tracker,
		RemoteAPIURL:   c.cfg.Remote.APIURL,
		RemoteStoreID:  c.cfg.Remote.StoreID,
		WriteBehindOn:  c.cfg.WriteBehind.Enabled,
		FlushOnStopOn:  c.cfg.WriteBehind.FlushOnStop,
		CacheStoreKind: c.cfg.Cache.Store,
	}
}

// WarmSchedule returns the connection's cron expression for scheduled
// warming, empty when none is configured.
func (c *Connection) WarmSchedule() string {
	return c.cfg.Warm.Schedule
}

func (c *Connection) publish(ctx context.Context, event events.Event) {
	if err := c.notifier.Publish(ctx, event); err != nil {
		c.logger.Warn("failed to publish cache event",
			zap.Error(err),
			zap.String("event_type", event.EventType()),
		)
	}
}

func (c *Connection) close() error {
	var errs []error

	c.writeBehind.Stop()
	c.store.Stop()

	if c.tracker != nil {
		if err := c.tracker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close activity tracker: %w", err))
		}
	}
	if err := c.notifier.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close notifier: %w", err))
	}
	if err := c.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close client: %w", err))
	}

	return errors.Join(errs...)
}
