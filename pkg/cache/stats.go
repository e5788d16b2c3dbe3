package cache

import "sync/atomic"

// Stats is a point-in-time snapshot of the cache counters. All counters are
// monotonically increasing except across an explicit Reset.
type Stats struct {
	Hits           uint64 `json:"hits"`
	Misses         uint64 `json:"misses"`
	FlushedWrites  uint64 `json:"flushed_writes"`
	FlushedDeletes uint64 `json:"flushed_deletes"`
	FlushErrors    uint64 `json:"flush_errors"`
}

// HitRate is the fraction of lookups answered from cache, or zero before the
// first lookup.
func (s Stats) HitRate() float64 {
	lookups := s.Hits + s.Misses
	if lookups == 0 {
		return 0
	}
	return float64(s.Hits) / float64(lookups)
}

// StatsRegistry aggregates the cache counters. It is safe for concurrent use
// and is shared between the read-through and write-behind caches of one
// connection.
type StatsRegistry struct {
	hits           atomic.Uint64
	misses         atomic.Uint64
	flushedWrites  atomic.Uint64
	flushedDeletes atomic.Uint64
	flushErrors    atomic.Uint64
}

func NewStatsRegistry() *StatsRegistry {
	return &StatsRegistry{}
}

func (r *StatsRegistry) RecordHit() {
	r.hits.Add(1)
}

func (r *StatsRegistry) RecordMiss() {
	r.misses.Add(1)
}

func (r *StatsRegistry) RecordFlushedWrites(n int) {
	r.flushedWrites.Add(uint64(n))
}

func (r *StatsRegistry) RecordFlushedDeletes(n int) {
	r.flushedDeletes.Add(uint64(n))
}

func (r *StatsRegistry) RecordFlushError() {
	r.flushErrors.Add(1)
}

// Snapshot returns the current counter values.
func (r *StatsRegistry) Snapshot() Stats {
	return Stats{
		Hits:           r.hits.Load(),
		Misses:         r.misses.Load(),
		FlushedWrites:  r.flushedWrites.Load(),
		FlushedDeletes: r.flushedDeletes.Load(),
		FlushErrors:    r.flushErrors.Load(),
	}
}

// Reset zeroes every counter.
func (r *StatsRegistry) Reset() {
	r.hits.Store(0)
	r.misses.Store(0)
	r.flushedWrites.Store(0)
	r.flushedDeletes.Store(0)
	r.flushErrors.Store(0)
}
