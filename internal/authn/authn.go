// Package authn authenticates callers of the agent's admin surface.
package authn

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/evansims/fgacache/pkg/authclaims"
)

var (
	ErrUnauthenticated    = status.Error(codes.Unauthenticated, "unauthenticated")
	ErrMissingBearerToken = status.Error(codes.Unauthenticated, "missing bearer token")
)

type Authenticator interface {
	// Authenticate returns a nil error and the AuthClaims info (if available) if the subject is authenticated or a
	// non-nil error with an appropriate error cause otherwise.
	Authenticate(requestContext context.Context) (*authclaims.AuthClaims, error)

	// Close releases the authenticator's resources.
	Close()
}

type NoopAuthenticator struct{}

var _ Authenticator = (*NoopAuthenticator)(nil)

func (n NoopAuthenticator) Authenticate(context.Context) (*authclaims.AuthClaims, error) {
	return &authclaims.AuthClaims{
		Subject: "",
		Scopes:  nil,
	}, nil
}

func (n NoopAuthenticator) Close() {}
