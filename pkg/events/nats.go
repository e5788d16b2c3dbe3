package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSNotifier publishes each event to "<prefix>.<event type>".
type NATSNotifier struct {
	conn   *nats.Conn
	prefix string
}

var _ Notifier = (*NATSNotifier)(nil)

// NewNATSNotifier connects to the NATS server at url. prefix namespaces the
// per-event-type subjects.
func NewNATSNotifier(url, prefix string) (*NATSNotifier, error) {
	conn, err := nats.Connect(url, nats.Name("fgacache"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &NATSNotifier{conn: conn, prefix: prefix}, nil
}

func (n *NATSNotifier) Publish(_ context.Context, event Event) error {
	payload, err := json.Marshal(newEnvelope(event))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	subject := n.prefix + "." + event.EventType()
	if err := n.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	return nil
}

func (n *NATSNotifier) Close() error {
	if err := n.conn.Flush(); err != nil {
		n.conn.Close()
		return fmt.Errorf("flush nats connection: %w", err)
	}

	n.conn.Close()
	return nil
}

// MultiNotifier fans every event out to several notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

var _ Notifier = (*MultiNotifier)(nil)

func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

func (m *MultiNotifier) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrs(errs)
}

func (m *MultiNotifier) Close() error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrs(errs)
}

func joinErrs(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return fmt.Errorf("%d notifiers failed, first: %w", len(errs), errs[0])
	}
}
