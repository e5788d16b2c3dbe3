package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/evansims/fgacache/pkg/tuple"
)

func TestHTTPCheck(t *testing.T) {
	var captured string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/stores/store-1/check", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		captured = string(body)

		_ = json.NewEncoder(w).Encode(map[string]any{"allowed": true})
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, "store-1", "model-1")
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close()) }()

	allowed, err := c.Check(context.Background(), CheckRequest{
		Tuple:            tuple.NewTupleKey("user:anne", "viewer", "document:1"),
		ContextualTuples: []tuple.TupleKey{tuple.NewTupleKey("user:anne", "member", "team:eng")},
		Context:          map[string]any{"tz": "UTC"},
	})
	require.NoError(t, err)
	require.True(t, allowed)

	require.Equal(t, "user:anne", gjson.Get(captured, "tuple_key.user").String())
	require.Equal(t, "viewer", gjson.Get(captured, "tuple_key.relation").String())
	require.Equal(t, "document:1", gjson.Get(captured, "tuple_key.object").String())
	require.Equal(t, "model-1", gjson.Get(captured, "authorization_model_id").String())
	require.Equal(t, "team:eng", gjson.Get(captured, "contextual_tuples.tuple_keys.0.object").String())
	require.Equal(t, "UTC", gjson.Get(captured, "context.tz").String())
}

func TestHTTPWriteAndDeleteTuples(t *testing.T) {
	bodies := make(chan string, 2)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/stores/store-1/write", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		bodies <- string(body)

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, "store-1", "")
	require.NoError(t, err)

	tuples := []tuple.TupleKey{tuple.NewTupleKey("user:anne", "viewer", "document:1")}

	require.NoError(t, c.WriteTuples(context.Background(), tuples))
	written := <-bodies
	require.Equal(t, "user:anne", gjson.Get(written, "writes.tuple_keys.0.user").String())
	require.False(t, gjson.Get(written, "deletes").Exists())

	require.NoError(t, c.DeleteTuples(context.Background(), tuples))
	deleted := <-bodies
	require.Equal(t, "user:anne", gjson.Get(deleted, "deletes.tuple_keys.0.user").String())
	require.False(t, gjson.Get(deleted, "writes").Exists())
}

func TestHTTPWriteSkipsEmptyBatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("no request expected for an empty batch")
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, "store-1", "")
	require.NoError(t, err)

	require.NoError(t, c.WriteTuples(context.Background(), nil))
	require.NoError(t, c.DeleteTuples(context.Background(), nil))
}

func TestHTTPListObjects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/stores/store-1/list-objects", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Equal(t, "document", gjson.GetBytes(body, "type").String())
		require.Equal(t, "viewer", gjson.GetBytes(body, "relation").String())
		require.Equal(t, "user:anne", gjson.GetBytes(body, "user").String())

		_ = json.NewEncoder(w).Encode(map[string]any{"objects": []string{"document:1", "document:2"}})
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, "store-1", "")
	require.NoError(t, err)

	objects, err := c.ListObjects(context.Background(), "user:anne", "viewer", "document")
	require.NoError(t, err)
	require.Equal(t, []string{"document:1", "document:2"}, objects)
}

func TestHTTPAttachesBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"allowed": false})
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, "store-1", "", WithTokenSource(NewStaticTokenSource("sekrit")))
	require.NoError(t, err)

	_, err = c.Check(context.Background(), CheckRequest{Tuple: tuple.NewTupleKey("user:anne", "viewer", "document:1")})
	require.NoError(t, err)
}

func TestHTTPErrorMapping(t *testing.T) {
	t.Run("server_errors_mean_unavailable", func(t *testing.T) {
		// 501 is the one 5xx the retrying transport passes through
		// untouched, which keeps this test off the backoff clock.
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "not implemented", http.StatusNotImplemented)
		}))
		defer srv.Close()

		c, err := NewHTTPClient(srv.URL, "store-1", "")
		require.NoError(t, err)

		_, err = c.Check(context.Background(), CheckRequest{Tuple: tuple.NewTupleKey("user:anne", "viewer", "document:1")})
		require.ErrorIs(t, err, ErrRemoteUnavailable)
	})

	t.Run("client_errors_are_not_unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "no such store", http.StatusBadRequest)
		}))
		defer srv.Close()

		c, err := NewHTTPClient(srv.URL, "store-1", "")
		require.NoError(t, err)

		_, err = c.Check(context.Background(), CheckRequest{Tuple: tuple.NewTupleKey("user:anne", "viewer", "document:1")})
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrRemoteUnavailable)
		require.Contains(t, err.Error(), "no such store")
	})
}
