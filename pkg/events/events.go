//go:generate mockgen -source events.go -destination ../../internal/mocks/mock_notifier.go -package mocks events

// Package events publishes cache lifecycle notifications to interested
// systems, over webhooks or NATS.
package events

import (
	"context"
	"time"
)

// Event is a cache lifecycle notification.
type Event interface {
	EventType() string
}

// FlushEvent reports the outcome of one flush cycle.
type FlushEvent struct {
	Connection string    `json:"connection"`
	Writes     int       `json:"writes"`
	Deletes    int       `json:"deletes"`
	Failed     bool      `json:"failed"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (FlushEvent) EventType() string { return "cache.flush" }

// ClearEvent reports that pending operations were discarded without
// flushing.
type ClearEvent struct {
	Connection string    `json:"connection"`
	Discarded  int       `json:"discarded"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (ClearEvent) EventType() string { return "cache.clear" }

// InvalidateEvent reports a manual cache eviction outside any flush.
type InvalidateEvent struct {
	Connection string    `json:"connection"`
	Removed    int       `json:"removed"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (InvalidateEvent) EventType() string { return "cache.invalidated" }

// WarmEvent reports a completed cache warming run.
type WarmEvent struct {
	Connection string    `json:"connection"`
	Warmed     int       `json:"warmed"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (WarmEvent) EventType() string { return "cache.warmed" }

// Notifier delivers events. Implementations must be safe for concurrent
// use.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoopNotifier discards every event.
type NoopNotifier struct{}

var _ Notifier = (*NoopNotifier)(nil)

func NewNoopNotifier() *NoopNotifier {
	return &NoopNotifier{}
}

func (*NoopNotifier) Publish(context.Context, Event) error { return nil }

func (*NoopNotifier) Close() error { return nil }
