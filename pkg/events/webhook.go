package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// SignatureHeader carries the hex HMAC-SHA256 of the webhook body, keyed by
// the shared secret, so receivers can authenticate deliveries.
const SignatureHeader = "X-Fgacache-Signature"

// envelope is the wire form of every published event.
type envelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       Event     `json:"data"`
}

func newEnvelope(event Event) envelope {
	return envelope{
		ID:         uuid.NewString(),
		Type:       event.EventType(),
		OccurredAt: time.Now().UTC(),
		Data:       event,
	}
}

// WebhookNotifier POSTs each event as signed JSON to a single URL.
type WebhookNotifier struct {
	url    string
	secret []byte
	client *http.Client
}

var _ Notifier = (*WebhookNotifier)(nil)

// NewWebhookNotifier builds a notifier delivering to url. secret may be
// empty, which skips the signature header.
func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 2

	return &WebhookNotifier{
		url:    url,
		secret: []byte(secret),
		client: rc.StandardClient(),
	}
}

func (n *WebhookNotifier) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(newEnvelope(event))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if len(n.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(n.secret, payload))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook receiver returned %s", resp.Status)
	}

	return nil
}

func (n *WebhookNotifier) Close() error { return nil }

// Sign returns the hex HMAC-SHA256 of body under key.
func Sign(key, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
