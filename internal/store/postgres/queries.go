package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alfredjeanlab/venuesync/internal/idgen"
	"github.com/alfredjeanlab/venuesync/internal/model"
	"github.com/alfredjeanlab/venuesync/internal/store"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// expectOne returns store.ErrNotFound when res touched no rows.
func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Sources ---

func queryEnsureSource(ctx context.Context, db executor, src *model.Source) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO sources (name, slug, website_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			website_url = EXCLUDED.website_url,
			updated_at = NOW()
		RETURNING id`,
		src.Name, src.Slug, src.WebsiteURL,
	).Scan(&src.ID)
}

func queryGetSourceBySlug(ctx context.Context, db executor, slug string) (*model.Source, error) {
	var src model.Source
	err := db.QueryRowContext(ctx,
		`SELECT id, name, slug, website_url FROM sources WHERE slug = $1`, slug,
	).Scan(&src.ID, &src.Name, &src.Slug, &src.WebsiteURL)
	if err != nil {
		return nil, notFound(err)
	}
	return &src, nil
}

// --- Geography ---

func queryFindOrCreateCountry(ctx context.Context, db executor, name, code string) (*model.Country, error) {
	row := db.QueryRowContext(ctx, `
		INSERT INTO countries (name, code, slug)
		VALUES ($1, $2, $3)
		ON CONFLICT (slug) DO UPDATE SET
			code = CASE WHEN countries.code = '' THEN EXCLUDED.code ELSE countries.code END
		RETURNING id, name, code, slug`,
		name, code, idgen.Slug(name),
	)
	c, err := scanCountry(row)
	if err != nil {
		return nil, fmt.Errorf("find or create country %q: %w", name, err)
	}
	return c, nil
}

func queryFindOrCreateCity(ctx context.Context, db executor, countryID int64, name string) (*model.City, error) {
	row := db.QueryRowContext(ctx, `
		INSERT INTO cities (country_id, name, slug)
		VALUES ($1, $2, $3)
		ON CONFLICT (country_id, slug) DO UPDATE SET updated_at = cities.updated_at
		RETURNING id, country_id, name, slug, latitude, longitude`,
		countryID, name, idgen.Slug(name),
	)
	c, err := scanCity(row)
	if err != nil {
		return nil, fmt.Errorf("find or create city %q: %w", name, err)
	}
	return c, nil
}

// queryRefreshCityCoordinates sets each city's coordinates to the mean of its
// geocoded venues and returns the number of cities touched.
func queryRefreshCityCoordinates(ctx context.Context, db executor) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE cities c SET
			latitude = v.lat,
			longitude = v.lng,
			updated_at = NOW()
		FROM (
			SELECT city_id, AVG(latitude) AS lat, AVG(longitude) AS lng
			FROM venues
			WHERE city_id IS NOT NULL AND latitude IS NOT NULL AND longitude IS NOT NULL
			GROUP BY city_id
		) v
		WHERE c.id = v.city_id`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Venues ---

func queryFindVenue(ctx context.Context, db executor, name, address string) (*model.Venue, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+venueColumns+` FROM venues WHERE lower(name) = lower($1) AND lower(address) = lower($2)`,
		name, address,
	)
	return scanVenue(row)
}

func queryGetVenue(ctx context.Context, db executor, id int64) (*model.Venue, error) {
	row := db.QueryRowContext(ctx, `SELECT `+venueColumns+` FROM venues WHERE id = $1`, id)
	return scanVenue(row)
}

func queryGetVenueBySlug(ctx context.Context, db executor, slug string) (*model.Venue, error) {
	row := db.QueryRowContext(ctx, `SELECT `+venueColumns+` FROM venues WHERE slug = $1`, slug)
	return scanVenue(row)
}

func querySlugExists(ctx context.Context, db executor, slug string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM venues WHERE slug = $1)`, slug).Scan(&exists)
	return exists, err
}

func marshalImages(images []model.PlaceImage) ([]byte, error) {
	if len(images) > model.MaxPlaceImages {
		return nil, fmt.Errorf("venue has %d place images, max is %d", len(images), model.MaxPlaceImages)
	}
	if len(images) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(images)
}

func queryCreateVenue(ctx context.Context, db executor, v *model.Venue) error {
	images, err := marshalImages(v.PlaceImages)
	if err != nil {
		return err
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO venues (
			city_id, name, slug, address, postcode, latitude, longitude,
			place_id, phone, website, facebook, instagram, google_place_images, photos_updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13, $14
		)
		RETURNING id, created_at, updated_at`,
		nullInt64(v.CityID),
		v.Name,
		v.Slug,
		v.Address,
		nullString(v.Postcode),
		nullFloat(v.Latitude),
		nullFloat(v.Longitude),
		nullString(v.PlaceID),
		nullString(v.Phone),
		nullString(v.Website),
		nullString(v.Facebook),
		nullString(v.Instagram),
		images,
		nullTime(v.PhotosUpdatedAt),
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
}

// queryUpdateVenue writes every column except the photo cache, which is only
// written through queryUpdateVenuePhotos.
func queryUpdateVenue(ctx context.Context, db executor, v *model.Venue) error {
	err := db.QueryRowContext(ctx, `
		UPDATE venues SET
			city_id = $2,
			name = $3,
			slug = $4,
			address = $5,
			postcode = $6,
			latitude = $7,
			longitude = $8,
			place_id = $9,
			phone = $10,
			website = $11,
			facebook = $12,
			instagram = $13,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		v.ID,
		nullInt64(v.CityID),
		v.Name,
		v.Slug,
		v.Address,
		nullString(v.Postcode),
		nullFloat(v.Latitude),
		nullFloat(v.Longitude),
		nullString(v.PlaceID),
		nullString(v.Phone),
		nullString(v.Website),
		nullString(v.Facebook),
		nullString(v.Instagram),
	).Scan(&v.UpdatedAt)
	return notFound(err)
}

func queryUpdateVenuePhotos(ctx context.Context, db executor, venueID int64, images []model.PlaceImage, refreshedAt time.Time) error {
	data, err := marshalImages(images)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `
		UPDATE venues SET
			google_place_images = $2,
			photos_updated_at = $3,
			updated_at = NOW()
		WHERE id = $1`,
		venueID, data, refreshedAt,
	)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// queryDeleteVenue removes the venue; events and their sources cascade.
func queryDeleteVenue(ctx context.Context, db executor, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM venues WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// --- Events ---

func queryGetEventForUpdate(ctx context.Context, db executor, venueID int64, dayOfWeek int) (*model.Event, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE venue_id = $1 AND day_of_week = $2 FOR UPDATE`,
		venueID, dayOfWeek,
	)
	return scanEvent(row)
}

// queryInsertEvent returns false when another writer already holds the
// (venue_id, day_of_week) slot.
func queryInsertEvent(ctx context.Context, db executor, e *model.Event) (bool, error) {
	err := db.QueryRowContext(ctx, `
		INSERT INTO events (
			venue_id, name, day_of_week, start_time, frequency, entry_fee_cents,
			description, hero_image_url, performer_name, performer_image_url
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (venue_id, day_of_week) DO NOTHING
		RETURNING id, created_at, updated_at`,
		e.VenueID,
		e.Name,
		e.DayOfWeek,
		e.StartTime,
		string(e.Frequency),
		nullInt(e.EntryFeeCents),
		nullString(e.Description),
		nullString(e.HeroImageURL),
		nullString(e.PerformerName),
		nullString(e.PerformerImageURL),
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func queryUpdateEvent(ctx context.Context, db executor, e *model.Event) error {
	err := db.QueryRowContext(ctx, `
		UPDATE events SET
			name = $2,
			start_time = $3,
			frequency = $4,
			entry_fee_cents = $5,
			description = $6,
			hero_image_url = $7,
			performer_name = $8,
			performer_image_url = $9,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		e.ID,
		e.Name,
		e.StartTime,
		string(e.Frequency),
		nullInt(e.EntryFeeCents),
		nullString(e.Description),
		nullString(e.HeroImageURL),
		nullString(e.PerformerName),
		nullString(e.PerformerImageURL),
	).Scan(&e.UpdatedAt)
	return notFound(err)
}

func queryListVenueEvents(ctx context.Context, db executor, venueID int64) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE venue_id = $1 ORDER BY day_of_week`, venueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// queryUpsertEventSource records a sighting. last_seen_at never moves backwards.
func queryUpsertEventSource(ctx context.Context, db executor, es *model.EventSource) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO event_sources (event_id, source_id, source_url, last_seen_at, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id, source_id) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			last_seen_at = GREATEST(event_sources.last_seen_at, EXCLUDED.last_seen_at),
			metadata = EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id, last_seen_at, created_at, updated_at`,
		es.EventID,
		es.SourceID,
		nullString(es.SourceURL),
		es.LastSeenAt,
		jsonbBytes(es.Metadata),
	).Scan(&es.ID, &es.LastSeenAt, &es.CreatedAt, &es.UpdatedAt)
}

func queryGetEventSource(ctx context.Context, db executor, eventID, sourceID int64) (*model.EventSource, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+eventSourceColumns+` FROM event_sources WHERE event_id = $1 AND source_id = $2`,
		eventID, sourceID,
	)
	return scanEventSource(row)
}

// --- Jobs ---

func queryInsertJob(ctx context.Context, db executor, job *model.Job) error {
	if job.State == "" {
		job.State = model.JobAvailable
	}
	args := job.Args
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO jobs (
			id, kind, queue, args, unique_key, state, priority, attempt, max_attempts,
			scheduled_at, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`,
		job.ID,
		job.Kind,
		job.Queue,
		[]byte(args),
		nullString(job.UniqueKey),
		string(job.State),
		job.Priority,
		job.Attempt,
		job.MaxAttempts,
		job.ScheduledAt,
		jsonbBytes(job.Metadata),
	).Scan(&job.CreatedAt)
}

// queryHasActiveJob reports whether a job with uniqueKey is pending, running
// on a lease still valid at now, or completed at or after completedSince.
func queryHasActiveJob(ctx context.Context, db executor, uniqueKey string, completedSince, now time.Time) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM jobs
			WHERE unique_key = $1
			  AND (state IN ('available', 'retryable')
			       OR (state = 'running' AND (lease_expires_at IS NULL OR lease_expires_at >= $3))
			       OR (state = 'completed' AND finished_at >= $2))
		)`,
		uniqueKey, completedSince, now,
	).Scan(&exists)
	return exists, err
}

// queryClaimJob moves the next runnable job on queue to running and leases
// it until leaseUntil. A running job whose lease expired is claimable again.
// Lower priority numbers run first. SKIP LOCKED lets concurrent workers
// claim disjoint rows.
func queryClaimJob(ctx context.Context, db executor, queue string, now, due, leaseUntil time.Time) (*model.Job, error) {
	row := db.QueryRowContext(ctx, `
		UPDATE jobs SET
			state = 'running',
			attempt = attempt + 1,
			attempted_at = $2,
			lease_expires_at = $4
		WHERE id = (
			SELECT id FROM jobs
			WHERE queue = $1
			  AND ((state IN ('available', 'retryable') AND scheduled_at <= $3)
			       OR (state = 'running' AND lease_expires_at < $2))
			ORDER BY priority, scheduled_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		queue, now, due, leaseUntil,
	)
	return scanJob(row)
}

func queryCompleteJob(ctx context.Context, db executor, id string, finishedAt time.Time) error {
	res, err := db.ExecContext(ctx,
		`UPDATE jobs SET state = 'completed', finished_at = $2 WHERE id = $1`, id, finishedAt)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func queryRetryJob(ctx context.Context, db executor, id string, scheduledAt time.Time, lastError string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE jobs SET state = 'retryable', scheduled_at = $2, last_error = $3 WHERE id = $1`,
		id, scheduledAt, lastError)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func queryDiscardJob(ctx context.Context, db executor, id string, finishedAt time.Time, lastError string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE jobs SET state = 'discarded', finished_at = $2, last_error = $3 WHERE id = $1`,
		id, finishedAt, lastError)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// querySetJobOutcome stores outcome under metadata.outcome, keeping any other keys.
func querySetJobOutcome(ctx context.Context, db executor, id string, outcome json.RawMessage) error {
	res, err := db.ExecContext(ctx, `
		UPDATE jobs SET
			metadata = jsonb_set(COALESCE(metadata, '{}'::jsonb), '{outcome}', $2::jsonb)
		WHERE id = $1`,
		id, []byte(outcome))
	if err != nil {
		return err
	}
	return expectOne(res)
}
