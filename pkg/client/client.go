//go:generate mockgen -source client.go -destination ../../internal/mocks/mock_authorization_client.go -package mocks client

// Package client talks to the remote relationship-based authorization
// service. The cache core only depends on the AuthorizationClient interface;
// gRPC and HTTP implementations live alongside it.
package client

import (
	"context"
	"errors"

	"github.com/evansims/fgacache/pkg/tuple"
)

// ErrRemoteUnavailable marks network and availability failures of the remote
// service, as opposed to authorization outcomes or validation errors. Wrap,
// never return bare, so callers keep the underlying cause.
var ErrRemoteUnavailable = errors.New("authorization service unavailable")

// CheckRequest carries one permission check to the remote service.
type CheckRequest struct {
	Tuple            tuple.TupleKey
	ContextualTuples []tuple.TupleKey
	Context          map[string]any
}

// AuthorizationClient is the remote call surface the cache core needs.
type AuthorizationClient interface {

	// Check asks whether user has relation on object.
	Check(ctx context.Context, req CheckRequest) (bool, error)

	// WriteTuples adds relationship tuples to the remote store.
	WriteTuples(ctx context.Context, tuples []tuple.TupleKey) error

	// DeleteTuples removes relationship tuples from the remote store.
	DeleteTuples(ctx context.Context, tuples []tuple.TupleKey) error

	// ListObjects returns every object of objectType on which user has
	// relation.
	ListObjects(ctx context.Context, user, relation, objectType string) ([]string, error)

	// Close tears down the underlying transport.
	Close() error
}
