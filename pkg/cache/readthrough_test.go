package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/evansims/fgacache/internal/keys"
	"github.com/evansims/fgacache/internal/mocks"
	"github.com/evansims/fgacache/pkg/client"
	"github.com/evansims/fgacache/pkg/tuple"
)

func TestCheckMissThenHit(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mocks.NewMockAuthorizationClient(ctrl)

	store := NewMemoryStore()
	defer store.Stop()
	c := NewReadThroughCache("default", mockClient, store)

	tk := tuple.NewTupleKey("user:anne", "viewer", "document:1")
	ctx := context.Background()

	mockClient.EXPECT().Check(gomock.Any(), client.CheckRequest{Tuple: tk}).Return(true, nil).Times(1)

	res, err := c.Check(ctx, CheckRequest{Tuple: tk})
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.False(t, res.Cached)

	// The second check is answered from cache; the mock would fail on a
	// second remote call.
	res, err = c.Check(ctx, CheckRequest{Tuple: tk})
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.True(t, res.Cached)

	stats := c.Stats()
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)
}

func TestCheckCachesDeniedAnswers(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mocks.NewMockAuthorizationClient(ctrl)

	store := NewMemoryStore()
	defer store.Stop()
	c := NewReadThroughCache("default", mockClient, store)

	tk := tuple.NewTupleKey("user:anne", "viewer", "document:1")

	mockClient.EXPECT().Check(gomock.Any(), gomock.Any()).Return(false, nil).Times(1)

	res, err := c.Check(context.Background(), CheckRequest{Tuple: tk})
	require.NoError(t, err)
	require.False(t, res.Allowed)

	res, err = c.Check(context.Background(), CheckRequest{Tuple: tk})
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.True(t, res.Cached)
}

func TestCheckRejectsInvalidTuple(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mocks.NewMockAuthorizationClient(ctrl)

	store := NewMemoryStore()
	defer store.Stop()
	c := NewReadThroughCache("default", mockClient, store)

	_, err := c.Check(context.Background(), CheckRequest{
		Tuple: tuple.TupleKey{User: "user:anne", Object: "document:1"},
	})
	require.Error(t, err)
}

func TestCheckNeverCachesErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mocks.NewMockAuthorizationClient(ctrl)

	store := NewMemoryStore()
	defer store.Stop()
	c := NewReadThroughCache("default", mockClient, store)

	tk := tuple.NewTupleKey("user:anne", "viewer", "document:1")

	gomock.InOrder(
		mockClient.EXPECT().Check(gomock.Any(), gomock.Any()).Return(false, client.ErrRemoteUnavailable),
		mockClient.EXPECT().Check(gomock.Any(), gomock.Any()).Return(true, nil),
	)

	_, err := c.Check(context.Background(), CheckRequest{Tuple: tk})
	require.ErrorIs(t, err, client.ErrRemoteUnavailable)

	// The failure must not have been cached; the next check reaches the
	// remote service again and succeeds.
	res, err := c.Check(context.Background(), CheckRequest{Tuple: tk})
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.False(t, res.Cached)
}

func TestExpiredEntryIsAMiss(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mocks.NewMockAuthorizationClient(ctrl)

	store := NewMemoryStore()
	defer store.Stop()
	c := NewReadThroughCache("default", mockClient, store, WithTTL(10*time.Millisecond))

	tk := tuple.NewTupleKey("user:anne", "viewer", "document:1")

	mockClient.EXPECT().Check(gomock.Any(), gomock.Any()).Return(true, nil).Times(2)

	_, err := c.Check(context.Background(), CheckRequest{Tuple: tk})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	res, err := c.Check(context.Background(), CheckRequest{Tuple: tk})
	require.NoError(t, err)
	require.False(t, res.Cached)
}

func TestContextualTuplesGetDistinctEntries(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mocks.NewMockAuthorizationClient(ctrl)

	store := NewMemoryStore()
	defer store.Stop()
	c := NewReadThroughCache("default", mockClient, store)

	tk := tuple.NewTupleKey("user:anne", "viewer", "document:1")
	contextual := []tuple.TupleKey{tuple.NewTupleKey("user:anne", "member", "team:eng")}

	// Same tuple, different request context: two remote calls, two entries.
	mockClient.EXPECT().Check(gomock.Any(), gomock.Any()).Return(false, nil)
	mockClient.EXPECT().Check(gomock.Any(), gomock.Any()).Return(true, nil)

	plain, err := c.Check(context.Background(), CheckRequest{Tuple: tk})
	require.NoError(t, err)
	require.False(t, plain.Allowed)

	assisted, err := c.Check(context.Background(), CheckRequest{Tuple: tk, ContextualTuples: contextual})
	require.NoError(t, err)
	require.True(t, assisted.Allowed)

	// Both answers are now served from cache under their own keys.
	plain, err = c.Check(context.Background(), CheckRequest{Tuple: tk})
	require.NoError(t, err)
	require.False(t, plain.Allowed)
	require.True(t, plain.Cached)

	assisted, err = c.Check(context.Background(), CheckRequest{Tuple: tk, ContextualTuples: contextual})
	require.NoError(t, err)
	require.True(t, assisted.Allowed)
	require.True(t, assisted.Cached)
}

func TestConcurrentMissesCollapseIntoOneRemoteCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mocks.NewMockAuthorizationClient(ctrl)

	store := NewMemoryStore()
	defer store.Stop()
	c := NewReadThroughCache("default", mockClient, store)

	tk := tuple.NewTupleKey("user:anne", "viewer", "document:1")

	started := make(chan struct{})
	release := make(chan struct{})
	mockClient.EXPECT().
		Check(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ client.CheckRequest) (bool, error) {
			close(started)
			<-release
			return true, nil
		}).
		Times(1)

	first := make(chan error, 1)
	go func() {
		_, err := c.Check(context.Background(), CheckRequest{Tuple: tk})
		first <- err
	}()

	<-started

	const concurrent = 5
	var wg sync.WaitGroup
	errs := make(chan error, concurrent)
	for i := 0; i < concurrent; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Check(context.Background(), CheckRequest{Tuple: tk})
			if err == nil && !res.Allowed {
				err = errors.New("expected an allowed answer")
			}
			errs <- err
		}()
	}

	// Give the followers time to park on the in-flight call, then let the
	// single remote check finish.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, <-first)
	for i := 0; i < concurrent; i++ {
		require.NoError(t, <-errs)
	}
}

func TestInvalidateRemovesOnlyMatchingEntries(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mocks.NewMockAuthorizationClient(ctrl)

	store := NewMemoryStore()
	defer store.Stop()
	c := NewReadThroughCache("default", mockClient, store)

	anne := tuple.NewTupleKey("user:anne", "viewer", "document:1")
	bob := tuple.NewTupleKey("user:bob", "viewer", "document:1")

	mockClient.EXPECT().Check(gomock.Any(), gomock.Any()).Return(true, nil).Times(2)

	ctx := context.Background()
	_, err := c.Check(ctx, CheckRequest{Tuple: anne})
	require.NoError(t, err)
	_, err = c.Check(ctx, CheckRequest{Tuple: bob})
	require.NoError(t, err)

	removed, err := c.Invalidate(ctx, keys.ForTuple(anne))
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	// Bob's entry survives.
	res, err := c.Check(ctx, CheckRequest{Tuple: bob})
	require.NoError(t, err)
	require.True(t, res.Cached)

	// Anne's is gone.
	mockClient.EXPECT().Check(gomock.Any(), gomock.Any()).Return(true, nil)
	res, err = c.Check(ctx, CheckRequest{Tuple: anne})
	require.NoError(t, err)
	require.False(t, res.Cached)
}

func TestCheckRecordsActivity(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mocks.NewMockAuthorizationClient(ctrl)
	mockTracker := mocks.NewMockTracker(ctrl)

	store := NewMemoryStore()
	defer store.Stop()
	c := NewReadThroughCache("default", mockClient, store, WithActivityTracker(mockTracker))

	tk := tuple.NewTupleKey("user:anne", "viewer", "document:1")

	mockClient.EXPECT().Check(gomock.Any(), gomock.Any()).Return(true, nil)
	mockTracker.EXPECT().RecordCheck(gomock.Any(), "default", tk, gomock.Any()).Return(nil).Times(2)

	ctx := context.Background()
	_, err := c.Check(ctx, CheckRequest{Tuple: tk})
	require.NoError(t, err)

	// Hits are recorded too.
	_, err = c.Check(ctx, CheckRequest{Tuple: tk})
	require.NoError(t, err)
}

func TestResetStatsZeroesCounters(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mocks.NewMockAuthorizationClient(ctrl)

	store := NewMemoryStore()
	defer store.Stop()
	c := NewReadThroughCache("default", mockClient, store)

	mockClient.EXPECT().Check(gomock.Any(), gomock.Any()).Return(true, nil)

	_, err := c.Check(context.Background(), CheckRequest{Tuple: tuple.NewTupleKey("user:anne", "viewer", "document:1")})
	require.NoError(t, err)
	require.Equal(t, uint64(1), c.Stats().Misses)

	c.ResetStats()
	require.Equal(t, Stats{}, c.Stats())
}
