package cache

import (
	"context"

	"github.com/evansims/fgacache/internal/keys"
)

// Invalidator evicts cached check results outside any flush, for callers
// that wrote to the remote store directly or need a manual eviction.
type Invalidator struct {
	readCache *ReadThroughCache
}

func NewInvalidator(readCache *ReadThroughCache) *Invalidator {
	return &Invalidator{readCache: readCache}
}

// Invalidate removes every cached entry matching the selector and returns
// how many were removed. An empty selector clears the connection's whole
// cache.
func (i *Invalidator) Invalidate(ctx context.Context, selector keys.Selector) (int, error) {
	return i.readCache.Invalidate(ctx, selector)
}
