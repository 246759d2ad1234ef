package events

import (
	"context"
	"sync"
)

// NoopPublisher is a Publisher that does nothing (used when NATS is not configured).
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}

// Recording keeps published events in memory for dry runs and tests.
type Recording struct {
	mu     sync.Mutex
	events []Published
}

// Published is one event captured by Recording.
type Published struct {
	Topic string
	Event any
}

func (r *Recording) Publish(_ context.Context, topic string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Published{Topic: topic, Event: event})
	return nil
}

func (r *Recording) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recording) Events() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.events...)
}
