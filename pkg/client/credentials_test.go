package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestStaticTokenSource(t *testing.T) {
	s := NewStaticTokenSource("sekrit")

	token, err := s.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sekrit", token)
}

func TestTokenEndpointDerivation(t *testing.T) {
	tests := []struct {
		name   string
		issuer string
		want   string
	}{
		{name: "bare_hostname", issuer: "issuer.example.com", want: "https://issuer.example.com/oauth/token"},
		{name: "base_url", issuer: "https://issuer.example.com", want: "https://issuer.example.com/oauth/token"},
		{name: "trailing_slash", issuer: "https://issuer.example.com/", want: "https://issuer.example.com/oauth/token"},
		{name: "full_endpoint", issuer: "https://issuer.example.com/oauth2/v2/token", want: "https://issuer.example.com/oauth2/v2/token"},
		{name: "plain_http", issuer: "http://localhost:8085", want: "http://localhost:8085/oauth/token"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := tokenEndpoint(test.issuer)
			require.NoError(t, err)
			require.Equal(t, test.want, got)
		})
	}
}

func signedJWT(t *testing.T, expiresAt time.Time) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "client-1",
		"exp": expiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return signed
}

func TestClientCredentialsFetchAndCache(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		require.NoError(t, r.ParseForm())
		require.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		require.Equal(t, "client-1", r.PostForm.Get("client_id"))
		require.Equal(t, "secret-1", r.PostForm.Get("client_secret"))
		require.Equal(t, "fga.example.com", r.PostForm.Get("audience"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": signedJWT(t, time.Now().Add(time.Hour)),
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	s, err := NewClientCredentialsTokenSource(srv.URL, "client-1", "secret-1", "fga.example.com")
	require.NoError(t, err)

	first, err := s.Token(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// Within the expiry window the cached token is reused.
	second, err := s.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.EqualValues(t, 1, calls.Load())
}

func TestClientCredentialsRefreshesExpiredToken(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		// The first token is already inside the refresh skew; the second
		// has a long life.
		exp := time.Now().Add(time.Second)
		if n > 1 {
			exp = time.Now().Add(time.Hour)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": signedJWT(t, exp)})
	}))
	defer srv.Close()

	s, err := NewClientCredentialsTokenSource(srv.URL, "client-1", "secret-1", "")
	require.NoError(t, err)

	_, err = s.Token(context.Background())
	require.NoError(t, err)

	_, err = s.Token(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())
}

func TestClientCredentialsPrefersJWTExpiry(t *testing.T) {
	// The JWT exp says one hour even though expires_in claims one second;
	// the exp claim wins, so the token stays cached.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": signedJWT(t, time.Now().Add(time.Hour)),
			"expires_in":   1,
		})
	}))
	defer srv.Close()

	s, err := NewClientCredentialsTokenSource(srv.URL, "client-1", "secret-1", "")
	require.NoError(t, err)

	_, err = s.Token(context.Background())
	require.NoError(t, err)

	s.mu.Lock()
	expiresAt := s.expiresAt
	s.mu.Unlock()
	require.Greater(t, time.Until(expiresAt), 30*time.Minute)
}

func TestClientCredentialsOpaqueTokenUsesExpiresIn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "opaque-token",
			"expires_in":   600,
		})
	}))
	defer srv.Close()

	s, err := NewClientCredentialsTokenSource(srv.URL, "client-1", "secret-1", "")
	require.NoError(t, err)

	token, err := s.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "opaque-token", token)

	s.mu.Lock()
	expiresAt := s.expiresAt
	s.mu.Unlock()
	require.InDelta(t, 600, time.Until(expiresAt).Seconds(), 30)
}

func TestClientCredentialsRejectsEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": ""})
	}))
	defer srv.Close()

	s, err := NewClientCredentialsTokenSource(srv.URL, "client-1", "secret-1", "")
	require.NoError(t, err)

	_, err = s.Token(context.Background())
	require.Error(t, err)
}

func TestPerRPCCredentials(t *testing.T) {
	creds := PerRPCCredentials{Source: NewStaticTokenSource("sekrit")}

	md, err := creds.GetRequestMetadata(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]string{"authorization": "Bearer sekrit"}, md)

	require.True(t, creds.RequireTransportSecurity())
	require.False(t, PerRPCCredentials{Source: NewStaticTokenSource("x"), Insecure: true}.RequireTransportSecurity())
}
