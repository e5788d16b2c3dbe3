// Package presharedkey authenticates admin requests against a static set of
// operator-issued keys.
package presharedkey

import (
	"context"
	"crypto/subtle"
	"errors"

	grpcauth "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"

	"github.com/evansims/fgacache/internal/authn"
	"github.com/evansims/fgacache/pkg/authclaims"
)

type PresharedKeyAuthenticator struct {
	ValidKeys []string
}

var _ authn.Authenticator = (*PresharedKeyAuthenticator)(nil)

func NewPresharedKeyAuthenticator(validKeys []string) (*PresharedKeyAuthenticator, error) {
	if len(validKeys) < 1 {
		return nil, errors.New("invalid auth configuration, please specify at least one key")
	}

	return &PresharedKeyAuthenticator{ValidKeys: validKeys}, nil
}

func (pka *PresharedKeyAuthenticator) Authenticate(ctx context.Context) (*authclaims.AuthClaims, error) {
	authHeader, err := grpcauth.AuthFromMD(ctx, "Bearer")
	if err != nil {
		return nil, authn.ErrMissingBearerToken
	}

	// Constant-time compare over every key so a mismatch costs the same as
	// a match regardless of position.
	matched := false
	for _, key := range pka.ValidKeys {
		if subtle.ConstantTimeCompare([]byte(authHeader), []byte(key)) == 1 {
			matched = true
		}
	}

	if matched {
		return &authclaims.AuthClaims{
			Subject: "", // no user information in this auth method
		}, nil
	}

	return nil, authn.ErrUnauthenticated
}

func (pka *PresharedKeyAuthenticator) Close() {}
