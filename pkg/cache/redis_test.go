package cache

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/evansims/fgacache/internal/keys"
	"github.com/evansims/fgacache/pkg/testfixtures/storage"
	"github.com/evansims/fgacache/pkg/tuple"
)

func newRedisTestStore(t *testing.T) *RedisStore {
	t.Helper()

	if testing.Short() {
		t.Skip("requires docker")
	}

	container := storage.NewRedisTestContainer().RunRedisTestContainer(t)

	opts, err := goredis.ParseURL(container.GetConnectionURI())
	require.NoError(t, err)

	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client)
}

func TestRedisStoreSetGetRoundTrip(t *testing.T) {
	store := newRedisTestStore(t)

	ctx := context.Background()
	key, entry := memoryEntry("default", tuple.NewTupleKey("user:anne", "viewer", "document:1"), true)

	_, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, key, entry, time.Minute))

	got, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.Allowed)
	require.Equal(t, key, got.Key)
}

func TestRedisStoreExpiredEntryIsGone(t *testing.T) {
	store := newRedisTestStore(t)

	ctx := context.Background()
	key, entry := memoryEntry("default", tuple.NewTupleKey("user:anne", "viewer", "document:1"), true)

	require.NoError(t, store.Set(ctx, key, entry, 100*time.Millisecond))

	require.Eventually(t, func() bool {
		_, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		return !ok
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRedisStoreDeleteMatch(t *testing.T) {
	store := newRedisTestStore(t)

	ctx := context.Background()
	seed := []tuple.TupleKey{
		tuple.NewTupleKey("user:anne", "viewer", "document:1"),
		tuple.NewTupleKey("user:anne", "editor", "document:1"),
		tuple.NewTupleKey("user:bob", "viewer", "document:1"),
		tuple.NewTupleKey("user:anne", "viewer", "document:2"),
	}
	for _, tk := range seed {
		key, entry := memoryEntry("default", tk, true)
		require.NoError(t, store.Set(ctx, key, entry, time.Minute))
	}

	user := "user:anne"
	deleted, err := store.DeleteMatch(ctx, "default", keys.Selector{User: &user})
	require.NoError(t, err)
	require.Equal(t, 3, deleted)

	_, ok, err := store.Get(ctx, keys.NewCheckKey("default", tuple.NewTupleKey("user:bob", "viewer", "document:1"), ""))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisStoreDeleteMatchScopedToConnection(t *testing.T) {
	store := newRedisTestStore(t)

	ctx := context.Background()
	tk := tuple.NewTupleKey("user:anne", "viewer", "document:1")

	for _, connection := range []string{"default", "staging"} {
		key, entry := memoryEntry(connection, tk, true)
		require.NoError(t, store.Set(ctx, key, entry, time.Minute))
	}

	deleted, err := store.DeleteMatch(ctx, "default", keys.ForTuple(tk))
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	_, ok, err := store.Get(ctx, keys.NewCheckKey("staging", tk, ""))
	require.NoError(t, err)
	require.True(t, ok)
}
