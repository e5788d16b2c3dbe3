package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHitRate(t *testing.T) {
	tests := []struct {
		name string
		s    Stats
		want float64
	}{
		{name: "no_lookups", s: Stats{}, want: 0},
		{name: "all_hits", s: Stats{Hits: 10}, want: 1},
		{name: "all_misses", s: Stats{Misses: 10}, want: 0},
		{name: "mixed", s: Stats{Hits: 3, Misses: 1}, want: 0.75},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.InDelta(t, test.want, test.s.HitRate(), 1e-9)
		})
	}
}

func TestStatsRegistrySnapshotAndReset(t *testing.T) {
	r := NewStatsRegistry()

	r.RecordHit()
	r.RecordHit()
	r.RecordMiss()
	r.RecordFlushedWrites(5)
	r.RecordFlushedDeletes(2)
	r.RecordFlushError()

	require.Equal(t, Stats{
		Hits:           2,
		Misses:         1,
		FlushedWrites:  5,
		FlushedDeletes: 2,
		FlushErrors:    1,
	}, r.Snapshot())

	r.Reset()
	require.Equal(t, Stats{}, r.Snapshot())
}

func TestStatsRegistryConcurrentCounting(t *testing.T) {
	r := NewStatsRegistry()

	const goroutines = 16
	const perGoroutine = 1000

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				r.RecordHit()
				r.RecordMiss()
			}
		}()
	}
	wg.Wait()

	snapshot := r.Snapshot()
	require.Equal(t, uint64(goroutines*perGoroutine), snapshot.Hits)
	require.Equal(t, uint64(goroutines*perGoroutine), snapshot.Misses)
}
