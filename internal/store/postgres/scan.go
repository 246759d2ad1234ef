package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alfredjeanlab/venuesync/internal/model"
	"github.com/alfredjeanlab/venuesync/internal/store"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

const venueColumns = `id, city_id, name, slug, address, postcode, latitude, longitude,
	place_id, phone, website, facebook, instagram, google_place_images,
	photos_updated_at, created_at, updated_at`

const eventColumns = `id, venue_id, name, day_of_week, start_time, frequency, entry_fee_cents,
	description, hero_image_url, performer_name, performer_image_url, created_at, updated_at`

const eventSourceColumns = `id, event_id, source_id, source_url, last_seen_at, metadata, created_at, updated_at`

const jobColumns = `id, kind, queue, args, unique_key, state, priority, attempt, max_attempts,
	scheduled_at, attempted_at, finished_at, last_error, metadata, created_at, lease_expires_at`

// notFound maps sql.ErrNoRows onto store.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// scanVenue scans a single row into a model.Venue.
// The row must contain columns in the order defined by venueColumns.
func scanVenue(row scannable) (*model.Venue, error) {
	var v model.Venue
	var (
		cityID          sql.NullInt64
		postcode        sql.NullString
		lat, lng        sql.NullFloat64
		placeID         sql.NullString
		phone           sql.NullString
		website         sql.NullString
		facebook        sql.NullString
		instagram       sql.NullString
		images          []byte
		photosUpdatedAt sql.NullTime
	)

	err := row.Scan(
		&v.ID,
		&cityID,
		&v.Name,
		&v.Slug,
		&v.Address,
		&postcode,
		&lat,
		&lng,
		&placeID,
		&phone,
		&website,
		&facebook,
		&instagram,
		&images,
		&photosUpdatedAt,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	if cityID.Valid {
		id := cityID.Int64
		v.CityID = &id
	}
	v.Postcode = postcode.String
	v.PlaceID = placeID.String
	v.Phone = phone.String
	v.Website = website.String
	v.Facebook = facebook.String
	v.Instagram = instagram.String
	if lat.Valid && lng.Valid {
		v.SetCoordinates(lat.Float64, lng.Float64)
	}
	v.PhotosUpdatedAt = nullTimePtr(photosUpdatedAt)
	if len(images) > 0 {
		if err := json.Unmarshal(images, &v.PlaceImages); err != nil {
			return nil, fmt.Errorf("decode google_place_images for venue %d: %w", v.ID, err)
		}
	}

	return &v, nil
}

// scanEvent scans a single row into a model.Event.
func scanEvent(row scannable) (*model.Event, error) {
	var e model.Event
	var (
		frequency         string
		fee               sql.NullInt32
		description       sql.NullString
		heroImageURL      sql.NullString
		performerName     sql.NullString
		performerImageURL sql.NullString
	)

	err := row.Scan(
		&e.ID,
		&e.VenueID,
		&e.Name,
		&e.DayOfWeek,
		&e.StartTime,
		&frequency,
		&fee,
		&description,
		&heroImageURL,
		&performerName,
		&performerImageURL,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	e.Frequency = model.Frequency(frequency)
	if fee.Valid {
		cents := int(fee.Int32)
		e.EntryFeeCents = &cents
	}
	e.Description = description.String
	e.HeroImageURL = heroImageURL.String
	e.PerformerName = performerName.String
	e.PerformerImageURL = performerImageURL.String
	return &e, nil
}

// scanEvents scans multiple rows into a slice of model.Event pointers.
func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// scanEventSource scans a single row into a model.EventSource.
func scanEventSource(row scannable) (*model.EventSource, error) {
	var es model.EventSource
	var (
		sourceURL sql.NullString
		metadata  []byte
	)
	err := row.Scan(
		&es.ID,
		&es.EventID,
		&es.SourceID,
		&sourceURL,
		&es.LastSeenAt,
		&metadata,
		&es.CreatedAt,
		&es.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	es.SourceURL = sourceURL.String
	if len(metadata) > 0 {
		es.Metadata = json.RawMessage(metadata)
	}
	return &es, nil
}

// scanJob scans a single row into a model.Job.
func scanJob(row scannable) (*model.Job, error) {
	var j model.Job
	var (
		state       string
		args        []byte
		uniqueKey   sql.NullString
		attemptedAt sql.NullTime
		finishedAt  sql.NullTime
		lastError   sql.NullString
		metadata    []byte
		leaseUntil  sql.NullTime
	)
	err := row.Scan(
		&j.ID,
		&j.Kind,
		&j.Queue,
		&args,
		&uniqueKey,
		&state,
		&j.Priority,
		&j.Attempt,
		&j.MaxAttempts,
		&j.ScheduledAt,
		&attemptedAt,
		&finishedAt,
		&lastError,
		&metadata,
		&j.CreatedAt,
		&leaseUntil,
	)
	if err != nil {
		return nil, notFound(err)
	}
	j.State = model.JobState(state)
	if len(args) > 0 {
		j.Args = json.RawMessage(args)
	}
	j.UniqueKey = uniqueKey.String
	j.AttemptedAt = nullTimePtr(attemptedAt)
	j.FinishedAt = nullTimePtr(finishedAt)
	j.LeaseExpiresAt = nullTimePtr(leaseUntil)
	j.LastError = lastError.String
	if len(metadata) > 0 {
		j.Metadata = json.RawMessage(metadata)
	}
	return &j, nil
}

// scanCity scans a single row into a model.City.
func scanCity(row scannable) (*model.City, error) {
	var c model.City
	var lat, lng sql.NullFloat64
	if err := row.Scan(&c.ID, &c.CountryID, &c.Name, &c.Slug, &lat, &lng); err != nil {
		return nil, notFound(err)
	}
	if lat.Valid {
		c.Latitude = &lat.Float64
	}
	if lng.Valid {
		c.Longitude = &lng.Float64
	}
	return &c, nil
}

// scanCountry scans a single row into a model.Country.
func scanCountry(row scannable) (*model.Country, error) {
	var c model.Country
	if err := row.Scan(&c.ID, &c.Name, &c.Code, &c.Slug); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// nullTimePtr converts a sql.NullTime to a *time.Time.
func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// nullString converts a Go string to sql.NullString (empty string becomes NULL).
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullFloat converts a *float64 to sql.NullFloat64.
func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// nullInt converts a *int to sql.NullInt64.
func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

// nullInt64 converts a *int64 to sql.NullInt64.
func nullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

// jsonbBytes returns nil for empty json.RawMessage, otherwise the raw bytes.
func jsonbBytes(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
