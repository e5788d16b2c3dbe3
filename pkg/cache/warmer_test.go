package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/evansims/fgacache/internal/mocks"
	"github.com/evansims/fgacache/pkg/client"
	"github.com/evansims/fgacache/pkg/tuple"
)

func TestWarmBatchCachesTheCrossProduct(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mocks.NewMockAuthorizationClient(ctrl)

	store := NewMemoryStore()
	defer store.Stop()
	c := NewReadThroughCache("default", mockClient, store)
	w := NewWarmer(c, WithWarmConcurrency(2))

	users := []string{"user:anne", "user:bob"}
	relations := []string{"viewer", "editor"}
	objects := []string{"document:1", "document:2", "document:3"}

	mockClient.EXPECT().Check(gomock.Any(), gomock.Any()).Return(true, nil).Times(12)

	warmed, err := w.WarmBatch(context.Background(), users, relations, objects)
	require.NoError(t, err)
	require.Equal(t, 12, warmed)

	// Every combination is now answered from cache.
	for _, user := range users {
		for _, relation := range relations {
			for _, object := range objects {
				res, err := c.Check(context.Background(), CheckRequest{Tuple: tuple.NewTupleKey(user, relation, object)})
				require.NoError(t, err)
				require.True(t, res.Cached)
			}
		}
	}
}

func TestWarmBatchSkipsFailedChecks(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mocks.NewMockAuthorizationClient(ctrl)

	store := NewMemoryStore()
	defer store.Stop()
	c := NewReadThroughCache("default", mockClient, store)
	w := NewWarmer(c, WithWarmConcurrency(1))

	gomock.InOrder(
		mockClient.EXPECT().Check(gomock.Any(), gomock.Any()).Return(true, nil),
		mockClient.EXPECT().Check(gomock.Any(), gomock.Any()).Return(false, client.ErrRemoteUnavailable),
	)

	warmed, err := w.WarmBatch(context.Background(), []string{"user:anne"}, []string{"viewer"}, []string{"document:1", "document:2"})
	require.Error(t, err)
	require.Equal(t, 1, warmed)
}

func TestWarmBatchEmptyCrossProduct(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mocks.NewMockAuthorizationClient(ctrl)

	store := NewMemoryStore()
	defer store.Stop()
	w := NewWarmer(NewReadThroughCache("default", mockClient, store))

	warmed, err := w.WarmBatch(context.Background(), nil, []string{"viewer"}, []string{"document:1"})
	require.NoError(t, err)
	require.Zero(t, warmed)
}

func TestWarmFromActivityPrimesRankedTuples(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mocks.NewMockAuthorizationClient(ctrl)
	mockTracker := mocks.NewMockTracker(ctrl)

	store := NewMemoryStore()
	defer store.Stop()
	c := NewReadThroughCache("default", mockClient, store, WithActivityTracker(mockTracker))
	w := NewWarmer(c)

	ranked := []tuple.TupleKey{
		tuple.NewTupleKey("user:anne", "viewer", "document:1"),
		tuple.NewTupleKey("user:bob", "viewer", "document:2"),
	}

	mockTracker.EXPECT().TopTuples(gomock.Any(), "default", 2).Return(ranked, nil)
	mockTracker.EXPECT().RecordCheck(gomock.Any(), "default", gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	mockClient.EXPECT().Check(gomock.Any(), gomock.Any()).Return(true, nil).Times(2)

	warmed, err := w.WarmFromActivity(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, 2, warmed)
}

func TestWarmFromActivityWithoutTracker(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mocks.NewMockAuthorizationClient(ctrl)

	store := NewMemoryStore()
	defer store.Stop()
	w := NewWarmer(NewReadThroughCache("default", mockClient, store))

	_, err := w.WarmFromActivity(context.Background(), 10)
	require.ErrorIs(t, err, ErrNoActivityTracker)
}

func TestWarmFromActivityTrackerFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mocks.NewMockAuthorizationClient(ctrl)
	mockTracker := mocks.NewMockTracker(ctrl)

	store := NewMemoryStore()
	defer store.Stop()
	c := NewReadThroughCache("default", mockClient, store, WithActivityTracker(mockTracker))
	w := NewWarmer(c)

	mockTracker.EXPECT().TopTuples(gomock.Any(), "default", 10).Return(nil, errors.New("boom"))

	_, err := w.WarmFromActivity(context.Background(), 10)
	require.Error(t, err)
}

func TestWarmObjectsDiscoversThenChecks(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mocks.NewMockAuthorizationClient(ctrl)

	store := NewMemoryStore()
	defer store.Stop()
	c := NewReadThroughCache("default", mockClient, store)
	w := NewWarmer(c)

	mockClient.EXPECT().
		ListObjects(gomock.Any(), "user:anne", "viewer", "document").
		Return([]string{"document:1", "document:2"}, nil)
	mockClient.EXPECT().Check(gomock.Any(), gomock.Any()).Return(true, nil).Times(2)

	warmed, err := w.WarmObjects(context.Background(), "user:anne", "viewer", "document")
	require.NoError(t, err)
	require.Equal(t, 2, warmed)

	res, err := c.Check(context.Background(), CheckRequest{Tuple: tuple.NewTupleKey("user:anne", "viewer", "document:1")})
	require.NoError(t, err)
	require.True(t, res.Cached)
}

func TestWarmObjectsListFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockClient := mocks.NewMockAuthorizationClient(ctrl)

	store := NewMemoryStore()
	defer store.Stop()
	w := NewWarmer(NewReadThroughCache("default", mockClient, store))

	mockClient.EXPECT().
		ListObjects(gomock.Any(), "user:anne", "viewer", "document").
		Return(nil, client.ErrRemoteUnavailable)

	_, err := w.WarmObjects(context.Background(), "user:anne", "viewer", "document")
	require.ErrorIs(t, err, client.ErrRemoteUnavailable)
}
