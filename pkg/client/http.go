package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/evansims/fgacache/pkg/tuple"
)

// HTTPClient talks to the remote authorization service over its REST
// surface. JSON field names mirror the protobuf schema so both transports
// are interchangeable.
type HTTPClient struct {
	base    *url.URL
	client  *http.Client
	storeID string
	modelID string
	creds   TokenSource
}

var _ AuthorizationClient = (*HTTPClient)(nil)

// TokenSource supplies the bearer token attached to outgoing requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// HTTPClientOpt defines an option that can be used to change the behavior
// of an HTTPClient instance.
type HTTPClientOpt func(*HTTPClient)

// WithTokenSource attaches bearer credentials to every request.
func WithTokenSource(creds TokenSource) HTTPClientOpt {
	return func(c *HTTPClient) {
		c.creds = creds
	}
}

// NewHTTPClient returns a client for the REST surface rooted at apiURL,
// bound to the given store and authorization model. Transient failures are
// retried by the underlying retryable HTTP client.
func NewHTTPClient(apiURL, storeID, modelID string, opts ...HTTPClientOpt) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimSuffix(apiURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}

	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.HTTPClient.Transport = otelhttp.NewTransport(rc.HTTPClient.Transport)

	c := &HTTPClient{
		base:    base,
		client:  rc.StandardClient(),
		storeID: storeID,
		modelID: modelID,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

type jsonTupleKey struct {
	User     string `json:"user"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

type checkRequestBody struct {
	TupleKey             jsonTupleKey          `json:"tuple_key"`
	AuthorizationModelID string                `json:"authorization_model_id,omitempty"`
	ContextualTuples     *contextualTuplesBody `json:"contextual_tuples,omitempty"`
	Context              map[string]any        `json:"context,omitempty"`
}

type contextualTuplesBody struct {
	TupleKeys []jsonTupleKey `json:"tuple_keys"`
}

type checkResponseBody struct {
	Allowed bool `json:"allowed"`
}

type writeRequestBody struct {
	AuthorizationModelID string         `json:"authorization_model_id,omitempty"`
	Writes               *tupleKeysBody `json:"writes,omitempty"`
	Deletes              *tupleKeysBody `json:"deletes,omitempty"`
}

type tupleKeysBody struct {
	TupleKeys []jsonTupleKey `json:"tuple_keys"`
}

type listObjectsRequestBody struct {
	AuthorizationModelID string `json:"authorization_model_id,omitempty"`
	Type                 string `json:"type"`
	Relation             string `json:"relation"`
	User                 string `json:"user"`
}

type listObjectsResponseBody struct {
	Objects []string `json:"objects"`
}

func (c *HTTPClient) Check(ctx context.Context, req CheckRequest) (bool, error) {
	body := checkRequestBody{
		TupleKey: jsonTupleKey(req.Tuple),

		AuthorizationModelID: c.modelID,
		Context:              req.Context,
	}
	if len(req.ContextualTuples) > 0 {
		body.ContextualTuples = &contextualTuplesBody{TupleKeys: toJSONTupleKeys(req.ContextualTuples)}
	}

	var resp checkResponseBody
	if err := c.post(ctx, "check", body, &resp); err != nil {
		return false, fmt.Errorf("check: %w", err)
	}

	return resp.Allowed, nil
}

func (c *HTTPClient) WriteTuples(ctx context.Context, tuples []tuple.TupleKey) error {
	if len(tuples) == 0 {
		return nil
	}

	body := writeRequestBody{
		AuthorizationModelID: c.modelID,
		Writes:               &tupleKeysBody{TupleKeys: toJSONTupleKeys(tuples)},
	}
	if err := c.post(ctx, "write", body, nil); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}

func (c *HTTPClient) DeleteTuples(ctx context.Context, tuples []tuple.TupleKey) error {
	if len(tuples) == 0 {
		return nil
	}

	body := writeRequestBody{
		AuthorizationModelID: c.modelID,
		Deletes:              &tupleKeysBody{TupleKeys: toJSONTupleKeys(tuples)},
	}
	if err := c.post(ctx, "write", body, nil); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	return nil
}

func (c *HTTPClient) ListObjects(ctx context.Context, user, relation, objectType string) ([]string, error) {
	body := listObjectsRequestBody{
		AuthorizationModelID: c.modelID,
		Type:                 objectType,
		Relation:             relation,
		User:                 user,
	}

	var resp listObjectsResponseBody
	if err := c.post(ctx, "list-objects", body, &resp); err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	return resp.Objects, nil
}

// Close is a no-op: the underlying transport pools connections and closes
// them as they idle out.
func (c *HTTPClient) Close() error { return nil }

func (c *HTTPClient) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	u := fmt.Sprintf("%s/stores/%s/%s", c.base, c.storeID, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.creds != nil {
		token, err := c.creds.Token(ctx)
		if err != nil {
			return fmt.Errorf("fetch credentials: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrRemoteUnavailable, err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s: %s", ErrRemoteUnavailable, resp.Status, strings.TrimSpace(string(raw)))
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func toJSONTupleKeys(tuples []tuple.TupleKey) []jsonTupleKey {
	out := make([]jsonTupleKey, 0, len(tuples))
	for _, t := range tuples {
		out = append(out, jsonTupleKey(t))
	}
	return out
}
