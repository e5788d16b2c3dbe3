package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/evansims/fgacache/internal/build"
	"github.com/evansims/fgacache/internal/keys"
	"github.com/evansims/fgacache/pkg/client"
	"github.com/evansims/fgacache/pkg/events"
	"github.com/evansims/fgacache/pkg/logger"
	"github.com/evansims/fgacache/pkg/tuple"
)

const (
	// DefaultBatchSize is the number of pending operations that triggers a
	// flush, and the upper bound per batch sent to the remote store.
	DefaultBatchSize = 100

	// DefaultFlushInterval is how often the background loop attempts a
	// flush.
	DefaultFlushInterval = 5 * time.Second
)

// ErrWriteBehindDisabled is returned when a write-behind operation is
// invoked while the feature is disabled.
var ErrWriteBehindDisabled = errors.New("write-behind cache is disabled")

// Labeled per connection: several write-behind caches report side by side.
var (
	pendingOperationsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: build.ProjectName,
		Name:      "pending_operations",
		Help:      "The number of buffered operations waiting to be flushed.",
	}, []string{"connection"})

	flushedWritesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "flushed_writes_count",
		Help:      "The total number of buffered writes confirmed by the remote store.",
	}, []string{"connection"})

	flushedDeletesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "flushed_deletes_count",
		Help:      "The total number of buffered deletes confirmed by the remote store.",
	}, []string{"connection"})

	flushErrorsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "flush_errors_count",
		Help:      "The total number of batches dropped because the remote store rejected them.",
	}, []string{"connection"})
)

// State names the write-behind lifecycle phase.
type State string

const (
	StateDisabled State = "disabled"
	StateIdle     State = "idle"
	StateFlushing State = "flushing"
)

// FlushResult reports what one flush cycle actually delivered to the remote
// store.
type FlushResult struct {
	Writes  int `json:"writes"`
	Deletes int `json:"deletes"`
}

// WriteBehindCache buffers grants and revokes in memory and flushes them to
// the remote store in batches, driven by a recurring timer, the pending
// count reaching the batch size, or an explicit Flush. After a batch is
// confirmed it invalidates the matching read-through entries so no stale
// answer survives a write.
//
// Exactly one WriteBehindCache must own a given connection's buffer; two
// independent flush loops over the same backend can reorder writes.
type WriteBehindCache struct {
	remote    client.AuthorizationClient
	readCache *ReadThroughCache
	queue     *PendingOperationQueue
	stats     *StatsRegistry
	notifier  events.Notifier
	logger    logger.Logger

	pendingGauge   prometheus.Gauge
	flushedWrites  prometheus.Counter
	flushedDeletes prometheus.Counter
	flushErrors    prometheus.Counter

	enabled       bool
	batchSize     int
	flushInterval time.Duration
	flushOnStop   bool

	flushing atomic.Bool
	flushCh  chan struct{}
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// WriteBehindCacheOpt defines an option that can be used to change the
// behavior of a WriteBehindCache instance.
type WriteBehindCacheOpt func(*WriteBehindCache)

// WithBatchSize sets the pending count that triggers a flush and the upper
// bound of operations per batch.
func WithBatchSize(n int) WriteBehindCacheOpt {
	return func(w *WriteBehindCache) {
		w.batchSize = n
	}
}

// WithFlushInterval sets how often the background loop attempts a flush.
func WithFlushInterval(interval time.Duration) WriteBehindCacheOpt {
	return func(w *WriteBehindCache) {
		w.flushInterval = interval
	}
}

// WithEnabled turns the write-behind feature on or off. A disabled cache
// rejects Grant, Revoke, Flush and Clear with ErrWriteBehindDisabled and
// runs no background loop.
func WithEnabled(enabled bool) WriteBehindCacheOpt {
	return func(w *WriteBehindCache) {
		w.enabled = enabled
	}
}

// WithFlushOnStop controls whether Stop attempts one final drain before
// returning. Enabled unless turned off.
func WithFlushOnStop(flush bool) WriteBehindCacheOpt {
	return func(w *WriteBehindCache) {
		w.flushOnStop = flush
	}
}

// WithNotifier publishes flush and clear outcomes to the notifier.
func WithNotifier(notifier events.Notifier) WriteBehindCacheOpt {
	return func(w *WriteBehindCache) {
		w.notifier = notifier
	}
}

// WithWriteBehindLogger sets the logger for the write-behind cache.
func WithWriteBehindLogger(logger logger.Logger) WriteBehindCacheOpt {
	return func(w *WriteBehindCache) {
		w.logger = logger
	}
}

// NewWriteBehindCache builds the write buffer in front of the remote store,
// wired to the read-through cache it must invalidate after confirmed
// writes. The background flush loop starts immediately unless the cache is
// disabled; callers own calling Stop.
func NewWriteBehindCache(remote client.AuthorizationClient, readCache *ReadThroughCache, opts ...WriteBehindCacheOpt) *WriteBehindCache {
	w := &WriteBehindCache{
		remote:        remote,
		readCache:     readCache,
		queue:         NewPendingOperationQueue(),
		stats:         readCache.stats,
		notifier:      events.NewNoopNotifier(),
		logger:        logger.NewNoopLogger(),
		enabled:       true,
		batchSize:     DefaultBatchSize,
		flushInterval: DefaultFlushInterval,
		flushOnStop:   true,
		flushCh:       make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	connection := readCache.Connection()
	w.pendingGauge = pendingOperationsGauge.WithLabelValues(connection)
	w.flushedWrites = flushedWritesCounter.WithLabelValues(connection)
	w.flushedDeletes = flushedDeletesCounter.WithLabelValues(connection)
	w.flushErrors = flushErrorsCounter.WithLabelValues(connection)

	if w.enabled {
		go w.run()
	} else {
		close(w.done)
	}

	return w
}

// Grant buffers a write of the tuple and returns without any network call.
func (w *WriteBehindCache) Grant(t tuple.TupleKey) error {
	return w.enqueue(OperationWrite, t)
}

// Revoke buffers a delete of the tuple and returns without any network
// call.
func (w *WriteBehindCache) Revoke(t tuple.TupleKey) error {
	return w.enqueue(OperationDelete, t)
}

func (w *WriteBehindCache) enqueue(kind OperationKind, t tuple.TupleKey) error {
	if !w.enabled {
		return ErrWriteBehindDisabled
	}
	if err := t.Validate(); err != nil {
		return err
	}

	w.queue.Enqueue(NewPendingOperation(kind, t))

	counts := w.queue.Counts()
	w.pendingGauge.Set(float64(counts.Total))

	if counts.Total >= w.batchSize {
		w.signalFlush()
	}

	return nil
}

// Flush synchronously drains the queue in batches of at most the configured
// batch size, looping until the queue is empty or a batch fails. Writes are
// sent before deletes within each batch, and cached results for a batch's
// tuples are invalidated only after the remote store confirms it. A Flush
// arriving while another flush is in flight is coalesced and returns a zero
// result: the in-flight flush picks up everything enqueued so far.
//
// A failed batch is dropped, not requeued; its operations must be re-issued
// by the application if still wanted.
func (w *WriteBehindCache) Flush(ctx context.Context) (FlushResult, error) {
	if !w.enabled {
		return FlushResult{}, ErrWriteBehindDisabled
	}

	if !w.flushing.CompareAndSwap(false, true) {
		return FlushResult{}, nil
	}
	defer w.flushing.Store(false)

	res, err := w.flushCycle(ctx)

	if res.Writes+res.Deletes > 0 || err != nil {
		w.publish(ctx, events.FlushEvent{
			Connection: w.readCache.Connection(),
			Writes:     res.Writes,
			Deletes:    res.Deletes,
			Failed:     err != nil,
			OccurredAt: time.Now().UTC(),
		})
	}

	return res, err
}

func (w *WriteBehindCache) flushCycle(ctx context.Context) (FlushResult, error) {
	var res FlushResult

	for {
		writes, deletes, _ := w.queue.DrainBatch(w.batchSize)
		w.pendingGauge.Set(float64(w.queue.Counts().Total))

		if len(writes)+len(deletes) == 0 {
			return res, nil
		}

		written, deleted, err := w.sendBatch(ctx, writes, deletes)
		res.Writes += written
		res.Deletes += deleted

		if err != nil {
			w.stats.RecordFlushError()
			w.flushErrors.Inc()
			return res, fmt.Errorf("flush aborted: %w", err)
		}
	}
}

// sendBatch delivers one drained batch, writes first, then invalidates the
// cached results of every confirmed tuple. On failure the batch's
// unconfirmed operations are dropped and the error names how many.
func (w *WriteBehindCache) sendBatch(ctx context.Context, writes, deletes []tuple.TupleKey) (int, int, error) {
	if len(writes) > 0 {
		if err := w.remote.WriteTuples(ctx, writes); err != nil {
			return 0, 0, fmt.Errorf("batch failed, %d writes and %d deletes dropped: %w", len(writes), len(deletes), err)
		}

		w.stats.RecordFlushedWrites(len(writes))
		w.flushedWrites.Add(float64(len(writes)))
		w.invalidate(ctx, writes)
	}

	if len(deletes) > 0 {
		if err := w.remote.DeleteTuples(ctx, deletes); err != nil {
			return len(writes), 0, fmt.Errorf("batch failed, %d deletes dropped: %w", len(deletes), err)
		}

		w.stats.RecordFlushedDeletes(len(deletes))
		w.flushedDeletes.Add(float64(len(deletes)))
		w.invalidate(ctx, deletes)
	}

	return len(writes), len(deletes), nil
}

// invalidate evicts the cached results of confirmed tuples, best effort.
// An eviction failure leaves a stale entry until its TTL; it never fails
// the flush that already reached the remote store.
func (w *WriteBehindCache) invalidate(ctx context.Context, tuples []tuple.TupleKey) {
	for _, t := range tuples {
		if _, err := w.readCache.Invalidate(ctx, keys.ForTuple(t)); err != nil {
			w.logger.Warn("failed to invalidate cached results after flush",
				zap.Error(err),
				zap.String("tuple", t.String()),
			)
		}
	}
}

// Clear discards every pending operation without flushing and returns how
// many were dropped. Destructive: confirmation is the caller's
// responsibility.
func (w *WriteBehindCache) Clear(ctx context.Context) (int, error) {
	if !w.enabled {
		return 0, ErrWriteBehindDisabled
	}

	discarded := w.queue.Clear()
	w.pendingGauge.Set(0)

	if discarded > 0 {
		w.publish(ctx, events.ClearEvent{
			Connection: w.readCache.Connection(),
			Discarded:  discarded,
			OccurredAt: time.Now().UTC(),
		})
	}

	return discarded, nil
}

// PendingCounts returns the buffered operation counts by kind.
func (w *WriteBehindCache) PendingCounts() Counts {
	return w.queue.Counts()
}

// PendingOperations returns up to limit of the most recently buffered
// operations for diagnostics, oldest first, split by kind.
func (w *WriteBehindCache) PendingOperations(limit int) (writes []PendingOperation, deletes []PendingOperation) {
	return w.queue.PendingOperations(limit)
}

// State reports the current lifecycle phase.
func (w *WriteBehindCache) State() State {
	if !w.enabled {
		return StateDisabled
	}
	if w.flushing.Load() {
		return StateFlushing
	}
	return StateIdle
}

// BatchSize returns the configured batch size.
func (w *WriteBehindCache) BatchSize() int {
	return w.batchSize
}

// FlushInterval returns the configured background flush interval.
func (w *WriteBehindCache) FlushInterval() time.Duration {
	return w.flushInterval
}

// Stats returns a snapshot of the shared cache counters.
func (w *WriteBehindCache) Stats() Stats {
	return w.stats.Snapshot()
}

// Stop halts the background flush loop and joins it. When flush-on-stop is
// enabled one final drain is attempted before returning.
func (w *WriteBehindCache) Stop() {
	w.stopOnce.Do(func() {
		if w.enabled {
			close(w.stopCh)
		}
		<-w.done

		if w.enabled && w.flushOnStop {
			if _, err := w.Flush(context.Background()); err != nil {
				w.logger.Error("final flush on shutdown failed", zap.Error(err))
			}
		}
	})
}

func (w *WriteBehindCache) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.backgroundFlush()
		case <-w.flushCh:
			w.backgroundFlush()
		case <-w.stopCh:
			return
		}
	}
}

func (w *WriteBehindCache) backgroundFlush() {
	if w.queue.Counts().Total == 0 {
		return
	}

	if _, err := w.Flush(context.Background()); err != nil {
		w.logger.Error("background flush failed", zap.Error(err))
	}
}

// signalFlush nudges the background loop without blocking the caller; a
// signal arriving while one is already buffered is coalesced.
func (w *WriteBehindCache) signalFlush() {
	select {
	case w.flushCh <- struct{}{}:
	default:
	}
}

func (w *WriteBehindCache) publish(ctx context.Context, event events.Event) {
	if err := w.notifier.Publish(ctx, event); err != nil {
		w.logger.Warn("failed to publish cache event",
			zap.Error(err),
			zap.String("event_type", event.EventType()),
		)
	}
}
