// Package cache implements the caching core that sits between application
// code and the remote authorization service: a read-through cache for
// permission checks and a write-behind cache that buffers grants and revokes
// and flushes them in batches.
package cache

import (
	"context"
	"time"

	"github.com/evansims/fgacache/internal/keys"
)

const (
	// DefaultTTL bounds how long a check result may be served from cache.
	DefaultTTL = 300 * time.Second

	// DefaultMaxEntries caps the in-memory store before LRU eviction starts.
	DefaultMaxEntries = 10000
)

// Entry is a single cached check result. Entries are immutable once stored
// and are overwritten wholesale on re-fetch, never partially updated.
type Entry struct {
	Key      keys.CheckKey `json:"-"`
	Allowed  bool          `json:"allowed"`
	CachedAt time.Time     `json:"cached_at"`
}

// Store is the physical storage behind the read-through cache.
type Store interface {

	// Get returns the entry stored under key. The boolean reports whether a
	// live entry was found; expired entries count as absent.
	Get(ctx context.Context, key keys.CheckKey) (Entry, bool, error)

	// Set stores the entry under key for at most ttl.
	Set(ctx context.Context, key keys.CheckKey, entry Entry, ttl time.Duration) error

	// DeleteMatch removes every entry on the connection whose key satisfies
	// the selector and returns how many entries were removed.
	DeleteMatch(ctx context.Context, connection string, selector keys.Selector) (int, error)

	// Stop cleans resources.
	Stop()
}
