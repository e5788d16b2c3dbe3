package activity

import (
	"context"
	"sync"
	"time"

	"github.com/evansims/fgacache/internal/ranking"
	"github.com/evansims/fgacache/pkg/tuple"
)

type memoryRow struct {
	checks    int64
	lastCheck time.Time
}

// MemoryTracker keeps check activity in process memory. Activity is lost on
// restart, which only costs one round of cold-cache warming.
type MemoryTracker struct {
	mu   sync.Mutex
	rows map[string]map[tuple.TupleKey]*memoryRow
}

var _ Tracker = (*MemoryTracker)(nil)

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		rows: make(map[string]map[tuple.TupleKey]*memoryRow),
	}
}

func (t *MemoryTracker) RecordCheck(_ context.Context, connection string, k tuple.TupleKey, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	conn, ok := t.rows[connection]
	if !ok {
		conn = make(map[tuple.TupleKey]*memoryRow)
		t.rows[connection] = conn
	}

	row, ok := conn[k]
	if !ok {
		row = &memoryRow{}
		conn[k] = row
	}

	row.checks++
	if at.After(row.lastCheck) {
		row.lastCheck = at
	}

	return nil
}

func (t *MemoryTracker) TopTuples(_ context.Context, connection string, limit int) ([]tuple.TupleKey, error) {
	t.mu.Lock()
	candidates := make([]ranking.Candidate, 0, len(t.rows[connection]))
	for k, row := range t.rows[connection] {
		candidates = append(candidates, ranking.Candidate{
			Tuple:     k,
			Checks:    row.checks,
			LastCheck: row.lastCheck,
		})
	}
	t.mu.Unlock()

	return ranking.Rank(candidates, time.Now().UTC(), limit), nil
}

func (t *MemoryTracker) Close() error { return nil }
