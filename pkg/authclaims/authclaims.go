// Package authclaims carries the identity of an authenticated caller of the
// agent's admin surface through the request context.
package authclaims

import "context"

type ctxKey string

const (
	authClaimsContextKey = ctxKey("auth-claims")
)

// AuthClaims is the identity extracted from an authenticated request.
type AuthClaims struct {
	Subject  string
	Scopes   map[string]bool
	ClientID string
}

// ContextWithAuthClaims injects the provided AuthClaims to the context.
func ContextWithAuthClaims(ctx context.Context, claims *AuthClaims) context.Context {
	return context.WithValue(ctx, authClaimsContextKey, claims)
}

// AuthClaimsFromContext extracts the AuthClaims from the provided ctx (if
// any).
func AuthClaimsFromContext(ctx context.Context) (*AuthClaims, bool) {
	claims, ok := ctx.Value(authClaimsContextKey).(*AuthClaims)
	if !ok {
		return nil, false
	}

	return claims, true
}
