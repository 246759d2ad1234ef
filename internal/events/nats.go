package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// subscriptionBuffer is how many messages wait per subscription before
	// NATS flags a slow consumer and drops.
	subscriptionBuffer = 256
	flushTimeout       = 5 * time.Second
)

func connect(url, name string, opts ...nats.Option) (*nats.Conn, error) {
	nc, err := nats.Connect(url, append([]nats.Option{nats.Name(name)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher publishes JSON-encoded events to NATS subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the server at url (VENUESYNC_NATS_URL).
func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := connect(url, "venuesync", opts...)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc}, nil
}

// Publish sends event on topic. Subscribers decode it by topic, so event
// must be the type Message.Decode expects for that topic.
func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}
	if err := p.conn.Publish(topic, data); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close flushes buffered messages and closes the connection.
func (p *NATSPublisher) Close() error {
	defer p.conn.Close()
	if err := p.conn.FlushTimeout(flushTimeout); err != nil && !p.conn.IsClosed() {
		return fmt.Errorf("flushing NATS: %w", err)
	}
	return nil
}

// NATSSubscriber streams events from NATS. Its connection reconnects
// without limit.
type NATSSubscriber struct {
	conn *nats.Conn
}

var _ Subscriber = (*NATSSubscriber)(nil)

// NewNATSSubscriber connects to url. opts are applied after the defaults,
// e.g. disconnect and reconnect handlers.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	defaults := []nats.Option{nats.MaxReconnects(-1), nats.ReconnectWait(time.Second)}
	nc, err := connect(url, "venuesync-watch", append(defaults, opts...)...)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc}, nil
}

func (s *NATSSubscriber) Subscribe(ctx context.Context, topics ...string) (<-chan Message, error) {
	if len(topics) == 0 {
		topics = []string{TopicAll}
	}
	raw := make(chan *nats.Msg, subscriptionBuffer)
	subs := make([]*nats.Subscription, 0, len(topics))
	unsubscribe := func() {
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
	}
	for _, topic := range topics {
		sub, err := s.conn.ChanSubscribe(topic, raw)
		if err != nil {
			unsubscribe()
			return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		subs = append(subs, sub)
	}
	// The server must know the interest before publishers on other
	// connections will route to it.
	if err := s.conn.FlushTimeout(flushTimeout); err != nil {
		unsubscribe()
		return nil, fmt.Errorf("flushing subscription: %w", err)
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-raw:
				select {
				case out <- Message{Topic: msg.Subject, Data: msg.Data}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
