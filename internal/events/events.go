// Package events publishes pipeline notifications to the event bus.
package events

import (
	"context"

	"github.com/alfredjeanlab/venuesync/internal/model"
)

// Event topic constants
const (
	TopicJobOutcome         = "venuesync.job.outcome"
	TopicDiscoveryCompleted = "venuesync.discovery.completed"
	TopicVenueDeleted       = "venuesync.venue.deleted"

	// TopicAll matches every topic above.
	TopicAll = "venuesync.>"
)

// Topics lists the subjects the pipeline publishes on.
func Topics() []string {
	return []string{TopicJobOutcome, TopicDiscoveryCompleted, TopicVenueDeleted}
}

// Event types

// JobOutcome is published once per finished detail, enrichment or
// discovery attempt.
type JobOutcome struct {
	JobID   string           `json:"job_id"`
	Kind    string           `json:"kind"`
	Source  string           `json:"source,omitempty"`
	Attempt int              `json:"attempt"`
	Outcome model.JobOutcome `json:"outcome"`
}

type DiscoveryCompleted struct {
	Source     string `json:"source"`
	RunID      string `json:"run_id"`
	Discovered int    `json:"discovered"`
	Enqueued   int    `json:"enqueued"`
	Duplicates int    `json:"duplicates"`
}

type VenueDeleted struct {
	VenueID     int64  `json:"venue_id"`
	Slug        string `json:"slug"`
	PhotoErrors int    `json:"photo_errors,omitempty"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
