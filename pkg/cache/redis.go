package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evansims/fgacache/internal/keys"
)

const defaultScanCount = 500

// RedisStore keeps cached check results in Redis so several processes can
// share one cache. Expiry is delegated to Redis TTLs.
type RedisStore struct {
	client    redis.UniversalClient
	scanCount int64
}

var _ Store = (*RedisStore)(nil)

// RedisStoreOpt defines an option that can be used to change the behavior
// of a RedisStore instance.
type RedisStoreOpt func(*RedisStore)

// WithScanCount sets the page size hint passed to SCAN during DeleteMatch.
func WithScanCount(n int64) RedisStoreOpt {
	return func(s *RedisStore) {
		s.scanCount = n
	}
}

// NewRedisStore wraps the provided client. The client stays owned by the
// caller and is not closed by Stop.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOpt) *RedisStore {
	s := &RedisStore{
		client:    client,
		scanCount: defaultScanCount,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *RedisStore) Get(ctx context.Context, key keys.CheckKey) (Entry, bool, error) {
	payload, err := s.client.Get(ctx, key.String()).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		return Entry{}, false, fmt.Errorf("decode cached entry: %w", err)
	}
	entry.Key = key

	return entry, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key keys.CheckKey, entry Entry, ttl time.Duration) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	if err := s.client.Set(ctx, key.String(), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

func (s *RedisStore) DeleteMatch(ctx context.Context, connection string, selector keys.Selector) (int, error) {
	pattern := selector.Pattern(connection)

	deleted := 0
	var cursor uint64
	for {
		matched, next, err := s.client.Scan(ctx, cursor, pattern, s.scanCount).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis scan: %w", err)
		}

		if len(matched) > 0 {
			n, err := s.client.Del(ctx, matched...).Result()
			deleted += int(n)
			if err != nil {
				return deleted, fmt.Errorf("redis del: %w", err)
			}
		}

		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// Stop is a no-op: the redis client may still be used by others and closing
// it is up to the caller.
func (s *RedisStore) Stop() {}
