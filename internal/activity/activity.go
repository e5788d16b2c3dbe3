//go:generate mockgen -source activity.go -destination ../mocks/mock_tracker.go -package mocks activity

// Package activity records observed check traffic and ranks it, so the
// cache warmer can re-prime the tuples that are actually being asked about.
package activity

import (
	"context"
	"time"

	"github.com/evansims/fgacache/pkg/tuple"
)

// TupleActivity is the aggregated check history of one tuple.
type TupleActivity struct {
	Tuple     tuple.TupleKey
	Checks    int64
	LastCheck time.Time
}

// Tracker stores check activity per connection.
type Tracker interface {

	// RecordCheck notes that the tuple was checked at the given time.
	RecordCheck(ctx context.Context, connection string, t tuple.TupleKey, at time.Time) error

	// TopTuples returns up to limit tuples ranked most-worth-warming first.
	TopTuples(ctx context.Context, connection string, limit int) ([]tuple.TupleKey, error)

	// Close releases the tracker's resources.
	Close() error
}
