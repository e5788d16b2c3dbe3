package cache

import (
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/oklog/ulid/v2"

	"github.com/evansims/fgacache/pkg/tuple"
)

// OperationKind distinguishes pending writes from pending deletes.
type OperationKind string

const (
	OperationWrite  OperationKind = "write"
	OperationDelete OperationKind = "delete"
)

// PendingOperation is a buffered grant or revoke waiting to be flushed.
// Operations are never mutated in place; superseding an operation replaces
// it wholesale.
type PendingOperation struct {
	ID         string         `json:"id"`
	Kind       OperationKind  `json:"kind"`
	Tuple      tuple.TupleKey `json:"tuple"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// NewPendingOperation stamps a fresh operation for the tuple.
func NewPendingOperation(kind OperationKind, t tuple.TupleKey) PendingOperation {
	return PendingOperation{
		ID:         ulid.Make().String(),
		Kind:       kind,
		Tuple:      t,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Counts is a point-in-time snapshot of the queue size by kind.
type Counts struct {
	Writes  int `json:"writes"`
	Deletes int `json:"deletes"`
	Total   int `json:"total"`
}

// PendingOperationQueue buffers pending operations in enqueue order, holding
// at most one live operation per tuple: enqueueing a tuple that is already
// pending supersedes the earlier operation, so a grant followed by a revoke
// of the same tuple flushes only the revoke.
type PendingOperationQueue struct {
	mu      sync.Mutex
	ops     *linkedhashmap.Map // tuple.TupleKey -> PendingOperation
	writes  int
	deletes int
}

func NewPendingOperationQueue() *PendingOperationQueue {
	return &PendingOperationQueue{
		ops: linkedhashmap.New(),
	}
}

// Enqueue records op under its tuple, dropping any earlier pending
// operation for the same tuple.
func (q *PendingOperationQueue) Enqueue(op PendingOperation) {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Put keeps the original position for existing keys, so supersede by
	// remove-then-put to move the operation to the back of the queue.
	if prev, ok := q.ops.Get(op.Tuple); ok {
		q.ops.Remove(op.Tuple)
		q.add(prev.(PendingOperation).Kind, -1)
	}

	q.ops.Put(op.Tuple, op)
	q.add(op.Kind, 1)
}

// DrainBatch atomically removes up to maxSize operations in enqueue order
// and returns their tuples split by kind, plus how many operations remain
// queued. Operations enqueued while a drain is running are never part of
// that drain's result.
func (q *PendingOperationQueue) DrainBatch(maxSize int) (writes []tuple.TupleKey, deletes []tuple.TupleKey, remaining int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if maxSize <= 0 {
		return nil, nil, q.ops.Size()
	}

	drained := make([]PendingOperation, 0, min(maxSize, q.ops.Size()))
	it := q.ops.Iterator()
	for it.Next() && len(drained) < maxSize {
		drained = append(drained, it.Value().(PendingOperation))
	}

	for _, op := range drained {
		q.ops.Remove(op.Tuple)
		q.add(op.Kind, -1)

		switch op.Kind {
		case OperationWrite:
			writes = append(writes, op.Tuple)
		case OperationDelete:
			deletes = append(deletes, op.Tuple)
		}
	}

	return writes, deletes, q.ops.Size()
}

// Counts returns the queue size by kind. Safe to call concurrently with
// enqueues and drains.
func (q *PendingOperationQueue) Counts() Counts {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Counts{
		Writes:  q.writes,
		Deletes: q.deletes,
		Total:   q.writes + q.deletes,
	}
}

// Clear empties the queue without flushing and returns how many operations
// were discarded.
func (q *PendingOperationQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	discarded := q.ops.Size()
	q.ops.Clear()
	q.writes = 0
	q.deletes = 0

	return discarded
}

// PendingOperations returns up to limit of the most recently enqueued
// operations, oldest first, split by kind. A non-positive limit returns
// everything.
func (q *PendingOperationQueue) PendingOperations(limit int) (writes []PendingOperation, deletes []PendingOperation) {
	q.mu.Lock()
	defer q.mu.Unlock()

	all := make([]PendingOperation, 0, q.ops.Size())
	it := q.ops.Iterator()
	for it.Next() {
		all = append(all, it.Value().(PendingOperation))
	}

	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}

	for _, op := range all {
		switch op.Kind {
		case OperationWrite:
			writes = append(writes, op)
		case OperationDelete:
			deletes = append(deletes, op)
		}
	}

	return writes, deletes
}

func (q *PendingOperationQueue) add(kind OperationKind, delta int) {
	switch kind {
	case OperationWrite:
		q.writes += delta
	case OperationDelete:
		q.deletes += delta
	}
}
