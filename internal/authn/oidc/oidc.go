// Package oidc authenticates admin requests with JWTs issued by a remote
// OIDC provider.
package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	grpcauth "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	"github.com/hashicorp/go-retryablehttp"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/evansims/fgacache/internal/authn"
	"github.com/evansims/fgacache/pkg/authclaims"
)

var (
	jwkRefreshInterval = 48 * time.Hour

	errInvalidAudience = status.Error(codes.Unauthenticated, "invalid audience")
	errInvalidClaims   = status.Error(codes.Unauthenticated, "invalid claims")
	errInvalidIssuer   = status.Error(codes.Unauthenticated, "invalid issuer")
	errInvalidSubject  = status.Error(codes.Unauthenticated, "invalid subject")
	errInvalidToken    = status.Error(codes.Unauthenticated, "invalid bearer token")
)

type RemoteOidcAuthenticator struct {
	IssuerURL string
	Audience  string

	JwksURI string
	JWKs    *keyfunc.JWKS

	httpClient *http.Client
}

var _ authn.Authenticator = (*RemoteOidcAuthenticator)(nil)

// NewRemoteOidcAuthenticator discovers the issuer's JWKS endpoint and keeps
// its keys refreshed in the background.
func NewRemoteOidcAuthenticator(issuerURL, audience string) (*RemoteOidcAuthenticator, error) {
	client := retryablehttp.NewClient()
	client.Logger = nil

	oidc := &RemoteOidcAuthenticator{
		IssuerURL:  issuerURL,
		Audience:   audience,
		httpClient: client.StandardClient(),
	}

	if err := oidc.fetchKeys(); err != nil {
		return nil, err
	}

	return oidc, nil
}

func (oidc *RemoteOidcAuthenticator) fetchKeys() error {
	jwksURI, err := oidc.getKeysEndpointURL()
	if err != nil {
		return fmt.Errorf("error fetching OIDC configuration: %w", err)
	}
	oidc.JwksURI = jwksURI

	jwks, err := keyfunc.Get(jwksURI, keyfunc.Options{
		Client:          oidc.httpClient,
		RefreshInterval: jwkRefreshInterval,
	})
	if err != nil {
		return fmt.Errorf("error fetching OIDC keys: %w", err)
	}
	oidc.JWKs = jwks

	return nil
}

type oidcConfig struct {
	Issuer  string `json:"issuer"`
	JWKsURI string `json:"jwks_uri"`
}

func (oidc *RemoteOidcAuthenticator) getKeysEndpointURL() (string, error) {
	wellKnown := strings.TrimSuffix(oidc.IssuerURL, "/") + "/.well-known/openid-configuration"

	res, err := oidc.httpClient.Get(wellKnown)
	if err != nil {
		return "", fmt.Errorf("error fetching document from %s: %w", wellKnown, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s from %s", res.Status, wellKnown)
	}

	var doc oidcConfig
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("failed parsing document from %s: %w", wellKnown, err)
	}
	if doc.JWKsURI == "" {
		return "", fmt.Errorf("missing jwks_uri in document from %s", wellKnown)
	}

	return doc.JWKsURI, nil
}

func (oidc *RemoteOidcAuthenticator) Authenticate(requestContext context.Context) (*authclaims.AuthClaims, error) {
	authHeader, err := grpcauth.AuthFromMD(requestContext, "Bearer")
	if err != nil {
		return nil, authn.ErrMissingBearerToken
	}

	jwtParser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuedAt(),
	)

	token, err := jwtParser.Parse(authHeader, oidc.JWKs.Keyfunc)
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errInvalidClaims
	}

	issuer, err := claims.GetIssuer()
	if err != nil || issuer != oidc.IssuerURL {
		return nil, errInvalidIssuer
	}

	audience, err := claims.GetAudience()
	if err != nil {
		return nil, errInvalidAudience
	}
	if !audienceContains(audience, oidc.Audience) {
		return nil, errInvalidAudience
	}

	// optional subject
	var subject = ""
	if subjectClaim, ok := claims["sub"]; ok {
		if subject, ok = subjectClaim.(string); !ok {
			return nil, errInvalidSubject
		}
	}

	principal := &authclaims.AuthClaims{
		Subject: subject,
		Scopes:  make(map[string]bool),
	}

	// optional client id
	if clientIDClaim, ok := claims["client_id"]; ok {
		if clientID, ok := clientIDClaim.(string); ok {
			principal.ClientID = clientID
		}
	}

	// optional scopes
	if scopeKey, ok := claims["scope"]; ok {
		if scope, ok := scopeKey.(string); ok {
			for _, s := range strings.Split(scope, " ") {
				principal.Scopes[s] = true
			}
		}
	}

	return principal, nil
}

func audienceContains(audience jwt.ClaimStrings, want string) bool {
	for _, aud := range audience {
		if aud == want {
			return true
		}
	}
	return false
}

func (oidc *RemoteOidcAuthenticator) Close() {
	oidc.JWKs.EndBackground()
}
