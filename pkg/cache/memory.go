package cache

import (
	"context"
	"sync"
	"time"

	"github.com/karlseguin/ccache/v3"

	"github.com/evansims/fgacache/internal/keys"
)

// MemoryStore keeps cached check results in process memory with LRU
// eviction once the configured size is reached.
type MemoryStore struct {
	cache      *ccache.Cache[Entry]
	maxEntries int64
	stopOnce   *sync.Once
}

var _ Store = (*MemoryStore)(nil)

// MemoryStoreOpt defines an option that can be used to change the behavior
// of a MemoryStore instance.
type MemoryStoreOpt func(*MemoryStore)

// WithMaxEntries sets the maximum number of entries held before the LRU
// policy starts evicting.
func WithMaxEntries(n int64) MemoryStoreOpt {
	return func(s *MemoryStore) {
		s.maxEntries = n
	}
}

func NewMemoryStore(opts ...MemoryStoreOpt) *MemoryStore {
	s := &MemoryStore{
		maxEntries: DefaultMaxEntries,
		stopOnce:   &sync.Once{},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.cache = ccache.New(ccache.Configure[Entry]().MaxSize(s.maxEntries))

	return s
}

func (s *MemoryStore) Get(_ context.Context, key keys.CheckKey) (Entry, bool, error) {
	item := s.cache.Get(key.String())
	if item == nil {
		return Entry{}, false, nil
	}

	if item.Expired() {
		s.cache.Delete(key.String())
		return Entry{}, false, nil
	}

	return item.Value(), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key keys.CheckKey, entry Entry, ttl time.Duration) error {
	s.cache.Set(key.String(), entry, ttl)
	return nil
}

func (s *MemoryStore) DeleteMatch(_ context.Context, connection string, selector keys.Selector) (int, error) {
	// Collect first: Delete inside ForEachFunc would deadlock on the bucket lock.
	var matched []string
	s.cache.ForEachFunc(func(key string, item *ccache.Item[Entry]) bool {
		entry := item.Value()
		if entry.Key.Connection == connection && selector.Matches(entry.Key) {
			matched = append(matched, key)
		}
		return true
	})

	deleted := 0
	for _, key := range matched {
		if s.cache.Delete(key) {
			deleted++
		}
	}

	return deleted, nil
}

func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() {
		s.cache.Stop()
	})
}
