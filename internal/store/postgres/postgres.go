// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/venuesync/internal/model"
	"github.com/alfredjeanlab/venuesync/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewFromDB wraps an already-open database handle without migrating it.
func NewFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) EnsureSource(ctx context.Context, src *model.Source) error {
	return queryEnsureSource(ctx, s.db, src)
}

func (s *PostgresStore) GetSourceBySlug(ctx context.Context, slug string) (*model.Source, error) {
	return queryGetSourceBySlug(ctx, s.db, slug)
}

func (s *PostgresStore) FindOrCreateCountry(ctx context.Context, name, code string) (*model.Country, error) {
	return queryFindOrCreateCountry(ctx, s.db, name, code)
}

func (s *PostgresStore) FindOrCreateCity(ctx context.Context, countryID int64, name string) (*model.City, error) {
	return queryFindOrCreateCity(ctx, s.db, countryID, name)
}

func (s *PostgresStore) RefreshCityCoordinates(ctx context.Context) (int64, error) {
	return queryRefreshCityCoordinates(ctx, s.db)
}

func (s *PostgresStore) FindVenue(ctx context.Context, name, address string) (*model.Venue, error) {
	return queryFindVenue(ctx, s.db, name, address)
}

func (s *PostgresStore) GetVenue(ctx context.Context, id int64) (*model.Venue, error) {
	return queryGetVenue(ctx, s.db, id)
}

func (s *PostgresStore) GetVenueBySlug(ctx context.Context, slug string) (*model.Venue, error) {
	return queryGetVenueBySlug(ctx, s.db, slug)
}

func (s *PostgresStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	return querySlugExists(ctx, s.db, slug)
}

func (s *PostgresStore) CreateVenue(ctx context.Context, v *model.Venue) error {
	return queryCreateVenue(ctx, s.db, v)
}

func (s *PostgresStore) UpdateVenue(ctx context.Context, v *model.Venue) error {
	return queryUpdateVenue(ctx, s.db, v)
}

func (s *PostgresStore) UpdateVenuePhotos(ctx context.Context, venueID int64, images []model.PlaceImage, refreshedAt time.Time) error {
	return queryUpdateVenuePhotos(ctx, s.db, venueID, images, refreshedAt)
}

func (s *PostgresStore) DeleteVenue(ctx context.Context, id int64) error {
	return queryDeleteVenue(ctx, s.db, id)
}

func (s *PostgresStore) GetEventForUpdate(ctx context.Context, venueID int64, dayOfWeek int) (*model.Event, error) {
	return queryGetEventForUpdate(ctx, s.db, venueID, dayOfWeek)
}

func (s *PostgresStore) InsertEvent(ctx context.Context, e *model.Event) (bool, error) {
	return queryInsertEvent(ctx, s.db, e)
}

func (s *PostgresStore) UpdateEvent(ctx context.Context, e *model.Event) error {
	return queryUpdateEvent(ctx, s.db, e)
}

func (s *PostgresStore) ListVenueEvents(ctx context.Context, venueID int64) ([]*model.Event, error) {
	return queryListVenueEvents(ctx, s.db, venueID)
}

func (s *PostgresStore) UpsertEventSource(ctx context.Context, es *model.EventSource) error {
	return queryUpsertEventSource(ctx, s.db, es)
}

func (s *PostgresStore) GetEventSource(ctx context.Context, eventID, sourceID int64) (*model.EventSource, error) {
	return queryGetEventSource(ctx, s.db, eventID, sourceID)
}

func (s *PostgresStore) InsertJob(ctx context.Context, job *model.Job) error {
	return queryInsertJob(ctx, s.db, job)
}

func (s *PostgresStore) HasActiveJob(ctx context.Context, uniqueKey string, completedSince, now time.Time) (bool, error) {
	return queryHasActiveJob(ctx, s.db, uniqueKey, completedSince, now)
}

func (s *PostgresStore) ClaimJob(ctx context.Context, queue string, now, due, leaseUntil time.Time) (*model.Job, error) {
	return queryClaimJob(ctx, s.db, queue, now, due, leaseUntil)
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id string, finishedAt time.Time) error {
	return queryCompleteJob(ctx, s.db, id, finishedAt)
}

func (s *PostgresStore) RetryJob(ctx context.Context, id string, scheduledAt time.Time, lastError string) error {
	return queryRetryJob(ctx, s.db, id, scheduledAt, lastError)
}

func (s *PostgresStore) DiscardJob(ctx context.Context, id string, finishedAt time.Time, lastError string) error {
	return queryDiscardJob(ctx, s.db, id, finishedAt, lastError)
}

func (s *PostgresStore) SetJobOutcome(ctx context.Context, id string, outcome json.RawMessage) error {
	return querySetJobOutcome(ctx, s.db, id, outcome)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) EnsureSource(ctx context.Context, src *model.Source) error {
	return queryEnsureSource(ctx, s.tx, src)
}

func (s *txStore) GetSourceBySlug(ctx context.Context, slug string) (*model.Source, error) {
	return queryGetSourceBySlug(ctx, s.tx, slug)
}

func (s *txStore) FindOrCreateCountry(ctx context.Context, name, code string) (*model.Country, error) {
	return queryFindOrCreateCountry(ctx, s.tx, name, code)
}

func (s *txStore) FindOrCreateCity(ctx context.Context, countryID int64, name string) (*model.City, error) {
	return queryFindOrCreateCity(ctx, s.tx, countryID, name)
}

func (s *txStore) RefreshCityCoordinates(ctx context.Context) (int64, error) {
	return queryRefreshCityCoordinates(ctx, s.tx)
}

func (s *txStore) FindVenue(ctx context.Context, name, address string) (*model.Venue, error) {
	return queryFindVenue(ctx, s.tx, name, address)
}

func (s *txStore) GetVenue(ctx context.Context, id int64) (*model.Venue, error) {
	return queryGetVenue(ctx, s.tx, id)
}

func (s *txStore) GetVenueBySlug(ctx context.Context, slug string) (*model.Venue, error) {
	return queryGetVenueBySlug(ctx, s.tx, slug)
}

func (s *txStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	return querySlugExists(ctx, s.tx, slug)
}

func (s *txStore) CreateVenue(ctx context.Context, v *model.Venue) error {
	return queryCreateVenue(ctx, s.tx, v)
}

func (s *txStore) UpdateVenue(ctx context.Context, v *model.Venue) error {
	return queryUpdateVenue(ctx, s.tx, v)
}

func (s *txStore) UpdateVenuePhotos(ctx context.Context, venueID int64, images []model.PlaceImage, refreshedAt time.Time) error {
	return queryUpdateVenuePhotos(ctx, s.tx, venueID, images, refreshedAt)
}

func (s *txStore) DeleteVenue(ctx context.Context, id int64) error {
	return queryDeleteVenue(ctx, s.tx, id)
}

func (s *txStore) GetEventForUpdate(ctx context.Context, venueID int64, dayOfWeek int) (*model.Event, error) {
	return queryGetEventForUpdate(ctx, s.tx, venueID, dayOfWeek)
}

func (s *txStore) InsertEvent(ctx context.Context, e *model.Event) (bool, error) {
	return queryInsertEvent(ctx, s.tx, e)
}

func (s *txStore) UpdateEvent(ctx context.Context, e *model.Event) error {
	return queryUpdateEvent(ctx, s.tx, e)
}

func (s *txStore) ListVenueEvents(ctx context.Context, venueID int64) ([]*model.Event, error) {
	return queryListVenueEvents(ctx, s.tx, venueID)
}

func (s *txStore) UpsertEventSource(ctx context.Context, es *model.EventSource) error {
	return queryUpsertEventSource(ctx, s.tx, es)
}

func (s *txStore) GetEventSource(ctx context.Context, eventID, sourceID int64) (*model.EventSource, error) {
	return queryGetEventSource(ctx, s.tx, eventID, sourceID)
}

func (s *txStore) InsertJob(ctx context.Context, job *model.Job) error {
	return queryInsertJob(ctx, s.tx, job)
}

func (s *txStore) HasActiveJob(ctx context.Context, uniqueKey string, completedSince, now time.Time) (bool, error) {
	return queryHasActiveJob(ctx, s.tx, uniqueKey, completedSince, now)
}

func (s *txStore) ClaimJob(ctx context.Context, queue string, now, due, leaseUntil time.Time) (*model.Job, error) {
	return queryClaimJob(ctx, s.tx, queue, now, due, leaseUntil)
}

func (s *txStore) CompleteJob(ctx context.Context, id string, finishedAt time.Time) error {
	return queryCompleteJob(ctx, s.tx, id, finishedAt)
}

func (s *txStore) RetryJob(ctx context.Context, id string, scheduledAt time.Time, lastError string) error {
	return queryRetryJob(ctx, s.tx, id, scheduledAt, lastError)
}

func (s *txStore) DiscardJob(ctx context.Context, id string, finishedAt time.Time, lastError string) error {
	return queryDiscardJob(ctx, s.tx, id, finishedAt, lastError)
}

func (s *txStore) SetJobOutcome(ctx context.Context, id string, outcome json.RawMessage) error {
	return querySetJobOutcome(ctx, s.tx, id, outcome)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Ping is a no-op inside a transaction.
func (s *txStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
