package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/alfredjeanlab/venuesync/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// Store defines the persistence interface for the ingestion pipeline.
type Store interface {
	// Sources
	EnsureSource(ctx context.Context, src *model.Source) error
	GetSourceBySlug(ctx context.Context, slug string) (*model.Source, error)

	// Geography
	FindOrCreateCountry(ctx context.Context, name, code string) (*model.Country, error)
	FindOrCreateCity(ctx context.Context, countryID int64, name string) (*model.City, error)
	RefreshCityCoordinates(ctx context.Context) (int64, error)

	// Venues
	FindVenue(ctx context.Context, name, address string) (*model.Venue, error)
	GetVenue(ctx context.Context, id int64) (*model.Venue, error)
	GetVenueBySlug(ctx context.Context, slug string) (*model.Venue, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	CreateVenue(ctx context.Context, v *model.Venue) error
	UpdateVenue(ctx context.Context, v *model.Venue) error
	UpdateVenuePhotos(ctx context.Context, venueID int64, images []model.PlaceImage, refreshedAt time.Time) error
	DeleteVenue(ctx context.Context, id int64) error

	// Events. GetEventForUpdate locks the row inside a transaction.
	GetEventForUpdate(ctx context.Context, venueID int64, dayOfWeek int) (*model.Event, error)
	InsertEvent(ctx context.Context, e *model.Event) (bool, error) // false when (venue, day) already exists
	UpdateEvent(ctx context.Context, e *model.Event) error
	ListVenueEvents(ctx context.Context, venueID int64) ([]*model.Event, error)
	UpsertEventSource(ctx context.Context, es *model.EventSource) error
	GetEventSource(ctx context.Context, eventID, sourceID int64) (*model.EventSource, error)

	// Jobs
	InsertJob(ctx context.Context, job *model.Job) error
	// HasActiveJob reports whether a job with uniqueKey is waiting, running on
	// a lease still valid at now, or completed at or after completedSince.
	HasActiveJob(ctx context.Context, uniqueKey string, completedSince, now time.Time) (bool, error)
	// ClaimJob leases the next job on queue until leaseUntil: an available or
	// retryable job scheduled at or before due, or a running job whose lease
	// expired before now. ErrNotFound when there is none.
	ClaimJob(ctx context.Context, queue string, now, due, leaseUntil time.Time) (*model.Job, error)
	CompleteJob(ctx context.Context, id string, finishedAt time.Time) error
	RetryJob(ctx context.Context, id string, scheduledAt time.Time, lastError string) error
	DiscardJob(ctx context.Context, id string, finishedAt time.Time, lastError string) error
	SetJobOutcome(ctx context.Context, id string, outcome json.RawMessage) error

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
