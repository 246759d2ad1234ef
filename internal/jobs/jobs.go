// Package jobs defines the pipeline's job kinds and the workers that run
// them: discovery, per-venue detail, enrichment follow-up and city
// coordinates.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alfredjeanlab/venuesync/internal/idgen"
	"github.com/alfredjeanlab/venuesync/internal/model"
	"github.com/alfredjeanlab/venuesync/internal/store"
)

// Queue names.
const (
	QueueDiscovery   = "discovery"
	QueueMaintenance = "maintenance"
	QueueDetails     = "details"
	QueueEnrichment  = "enrichment"
)

// Job kinds.
const (
	KindDiscovery       = "discovery"
	KindVenueDetail     = "venue_detail"
	KindVenueEnrichment = "venue_enrichment"
	KindCityCoordinates = "city_coordinates"
)

// Args is a job payload. Kind selects the queue, priority and attempt
// budget.
type Args interface {
	Kind() string
}

// Worker runs jobs of one kind.
type Worker interface {
	Kind() string
	Work(ctx context.Context, job *model.Job) error
}

type kindSpec struct {
	queue       string
	priority    int
	maxAttempts int
}

// Lower priority values are claimed first, so discovery is never starved
// by detail work.
var specs = map[string]kindSpec{
	KindDiscovery:       {queue: QueueDiscovery, priority: 1, maxAttempts: 3},
	KindCityCoordinates: {queue: QueueMaintenance, priority: 2, maxAttempts: 3},
	KindVenueDetail:     {queue: QueueDetails, priority: 3, maxAttempts: 5},
	KindVenueEnrichment: {queue: QueueEnrichment, priority: 4, maxAttempts: 5},
}

// Queues lists every queue in priority order.
func Queues() []string {
	return []string{QueueDiscovery, QueueMaintenance, QueueDetails, QueueEnrichment}
}

// DiscoveryArgs lists one source's venues.
type DiscoveryArgs struct {
	Source string `json:"source"`
	RunID  string `json:"run_id,omitempty"`
}

func (DiscoveryArgs) Kind() string { return KindDiscovery }

// DetailArgs carries one discovered venue into its detail job.
type DetailArgs struct {
	Source string                `json:"source"`
	RunID  string                `json:"run_id,omitempty"`
	Venue  model.DiscoveredVenue `json:"venue"`
}

func (DetailArgs) Kind() string { return KindVenueDetail }

// EnrichmentArgs retries address resolution and photo refresh for a venue.
type EnrichmentArgs struct {
	VenueID int64 `json:"venue_id"`
}

func (EnrichmentArgs) Kind() string { return KindVenueEnrichment }

// CityCoordinatesArgs recomputes every city's centre.
type CityCoordinatesArgs struct{}

func (CityCoordinatesArgs) Kind() string { return KindCityCoordinates }

// InsertOpts are per-job insert settings.
type InsertOpts struct {
	ScheduledAt time.Time
	UniqueKey   string
}

// NewJob builds an available job for args.
func NewJob(args Args, opts InsertOpts) (*model.Job, error) {
	spec, ok := specs[args.Kind()]
	if !ok {
		return nil, fmt.Errorf("unknown job kind %q", args.Kind())
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s args: %w", args.Kind(), err)
	}
	id, err := idgen.JobID()
	if err != nil {
		return nil, err
	}
	at := opts.ScheduledAt
	if at.IsZero() {
		at = time.Now()
	}
	return &model.Job{
		ID:          id,
		Kind:        args.Kind(),
		Queue:       spec.queue,
		Args:        data,
		UniqueKey:   opts.UniqueKey,
		State:       model.JobAvailable,
		Priority:    spec.priority,
		MaxAttempts: spec.maxAttempts,
		ScheduledAt: at.UTC(),
	}, nil
}

// Insert builds and stores a job for args.
func Insert(ctx context.Context, s store.Store, args Args, opts InsertOpts) (*model.Job, error) {
	job, err := NewJob(args, opts)
	if err != nil {
		return nil, err
	}
	if err := s.InsertJob(ctx, job); err != nil {
		return nil, fmt.Errorf("insert %s job: %w", job.Kind, err)
	}
	return job, nil
}

// InsertUnique inserts args unless a job with opts.UniqueKey is active at now
// or completed at or after since. A running job whose lease expired does not
// count. It reports whether a job was inserted.
func InsertUnique(ctx context.Context, s store.Store, args Args, opts InsertOpts, since, now time.Time) (*model.Job, bool, error) {
	if opts.UniqueKey != "" {
		dup, err := s.HasActiveJob(ctx, opts.UniqueKey, since, now)
		if err != nil {
			return nil, false, fmt.Errorf("check %s: %w", opts.UniqueKey, err)
		}
		if dup {
			return nil, false, nil
		}
	}
	job, err := Insert(ctx, s, args, opts)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// decode unmarshals a job's args. Undecodable args never succeed on retry.
func decode(job *model.Job, out Args) error {
	if err := json.Unmarshal(job.Args, out); err != nil {
		return Permanent(fmt.Errorf("decode %s args: %w", job.Kind, err))
	}
	return nil
}
