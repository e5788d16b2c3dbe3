package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-retryablehttp"
)

// expirySkew refreshes tokens a little before they actually expire so an
// in-flight request never carries a token that dies mid-call.
const expirySkew = 30 * time.Second

// StaticTokenSource returns the same pre-issued API token forever.
type StaticTokenSource struct {
	token string
}

var _ TokenSource = (*StaticTokenSource)(nil)

func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

func (s *StaticTokenSource) Token(context.Context) (string, error) {
	return s.token, nil
}

// ClientCredentialsTokenSource fetches tokens through the OAuth2
// client_credentials flow and caches them until shortly before expiry.
// Token expiry comes from the JWT exp claim when the token parses as one,
// else from the response's expires_in.
type ClientCredentialsTokenSource struct {
	tokenURL     string
	clientID     string
	clientSecret string
	audience     string
	client       *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

var _ TokenSource = (*ClientCredentialsTokenSource)(nil)

// NewClientCredentialsTokenSource builds a token source against the
// issuer's token endpoint. issuer may be a bare hostname, a base URL, or a
// full token endpoint URL.
func NewClientCredentialsTokenSource(issuer, clientID, clientSecret, audience string) (*ClientCredentialsTokenSource, error) {
	tokenURL, err := tokenEndpoint(issuer)
	if err != nil {
		return nil, err
	}

	rc := retryablehttp.NewClient()
	rc.Logger = nil

	return &ClientCredentialsTokenSource{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		audience:     audience,
		client:       rc.StandardClient(),
	}, nil
}

func tokenEndpoint(issuer string) (string, error) {
	if !strings.Contains(issuer, "://") {
		issuer = "https://" + issuer
	}

	u, err := url.Parse(issuer)
	if err != nil {
		return "", fmt.Errorf("parse token issuer: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/oauth/token"
	}

	return u.String(), nil
}

func (s *ClientCredentialsTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expiresAt.Add(-expirySkew)) {
		return s.token, nil
	}

	var token string
	var expiresAt time.Time

	// The remote token endpoint can flake independently of the
	// authorization service; a short exponential retry rides out blips
	// without turning every cache miss into a hard failure.
	operation := func() error {
		var err error
		token, expiresAt, err = s.fetch(ctx)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", fmt.Errorf("fetch access token: %w", err)
	}

	s.token = token
	s.expiresAt = expiresAt

	return s.token, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (s *ClientCredentialsTokenSource) fetch(ctx context.Context) (string, time.Time, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
	}
	if s.audience != "" {
		form.Set("audience", s.audience)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("token endpoint returned %s", resp.Status)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", time.Time{}, fmt.Errorf("decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("token endpoint returned no access token")
	}

	return body.AccessToken, tokenExpiry(body), nil
}

func tokenExpiry(body tokenResponse) time.Time {
	// Not every issuer sends expires_in; the exp claim inside the token is
	// authoritative when it parses as a JWT.
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(body.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}

	if body.ExpiresIn > 0 {
		return time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	}

	// No expiry anywhere: cache briefly rather than forever.
	return time.Now().Add(time.Minute)
}

// PerRPCCredentials adapts a TokenSource to gRPC call credentials.
type PerRPCCredentials struct {
	Source TokenSource

	// Insecure allows attaching credentials over a non-TLS connection, for
	// local development against a plaintext listener.
	Insecure bool
}

func (c PerRPCCredentials) GetRequestMetadata(ctx context.Context, _ ...string) (map[string]string, error) {
	token, err := c.Source.Token(ctx)
	if err != nil {
		return nil, err
	}

	return map[string]string{"authorization": "Bearer " + token}, nil
}

func (c PerRPCCredentials) RequireTransportSecurity() bool {
	return !c.Insecure
}
