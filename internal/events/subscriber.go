package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownTopic is returned by Message.Decode for subjects outside Topics.
var ErrUnknownTopic = errors.New("unknown event topic")

// Subscriber streams events from the event bus.
type Subscriber interface {
	// Subscribe delivers messages published on topics until ctx is done,
	// then closes the channel. No topics means TopicAll.
	Subscribe(ctx context.Context, topics ...string) (<-chan Message, error)
	Close() error
}

// Message is one event received from the bus.
type Message struct {
	Topic string
	Data  []byte
}

// Decode unmarshals the payload into the event type published on its topic:
// *JobOutcome, *DiscoveryCompleted or *VenueDeleted.
func (m Message) Decode() (any, error) {
	var ev any
	switch m.Topic {
	case TopicJobOutcome:
		ev = &JobOutcome{}
	case TopicDiscoveryCompleted:
		ev = &DiscoveryCompleted{}
	case TopicVenueDeleted:
		ev = &VenueDeleted{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, m.Topic)
	}
	if err := json.Unmarshal(m.Data, ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", m.Topic, err)
	}
	return ev, nil
}
