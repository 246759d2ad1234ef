package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/alfredjeanlab/venuesync/internal/model"
	"github.com/alfredjeanlab/venuesync/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var venueRowColumns = []string{
	"id", "city_id", "name", "slug", "address", "postcode", "latitude", "longitude",
	"place_id", "phone", "website", "facebook", "instagram", "google_place_images",
	"photos_updated_at", "created_at", "updated_at",
}

var eventRowColumns = []string{
	"id", "venue_id", "name", "day_of_week", "start_time", "frequency", "entry_fee_cents",
	"description", "hero_image_url", "performer_name", "performer_image_url", "created_at", "updated_at",
}

var jobRowColumns = []string{
	"id", "kind", "queue", "args", "unique_key", "state", "priority", "attempt", "max_attempts",
	"scheduled_at", "attempted_at", "finished_at", "last_error", "metadata", "created_at", "lease_expires_at",
}

func TestFindVenue(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	images := `[{"external_ref":"abc","original_url":"https://img/1","position":0}]`

	mock.ExpectQuery("SELECT .+ FROM venues WHERE lower\\(name\\) = lower\\(\\$1\\) AND lower\\(address\\) = lower\\(\\$2\\)").
		WithArgs("Pub A", "1 High St").
		WillReturnRows(sqlmock.NewRows(venueRowColumns).AddRow(
			int64(7), int64(2), "Pub A", "pub-a", "1 High St", "AB1 2CD", 51.5, -0.12,
			"place-1", nil, nil, nil, nil, []byte(images),
			now, now, now,
		))

	v, err := queryFindVenue(context.Background(), db, "Pub A", "1 High St")
	if err != nil {
		t.Fatalf("queryFindVenue: %v", err)
	}
	if v.ID != 7 || v.Slug != "pub-a" {
		t.Errorf("venue = %+v", v)
	}
	if v.CityID == nil || *v.CityID != 2 {
		t.Errorf("CityID = %v, want 2", v.CityID)
	}
	if !v.HasCoordinates() || *v.Latitude != 51.5 {
		t.Errorf("coordinates = %v,%v", v.Latitude, v.Longitude)
	}
	if len(v.PlaceImages) != 1 || v.PlaceImages[0].ExternalRef != "abc" {
		t.Errorf("PlaceImages = %+v", v.PlaceImages)
	}
	if v.PhotosUpdatedAt == nil || !v.PhotosUpdatedAt.Equal(now) {
		t.Errorf("PhotosUpdatedAt = %v, want %v", v.PhotosUpdatedAt, now)
	}
}

func TestFindVenue_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM venues WHERE").
		WithArgs("Nope", "Nowhere").
		WillReturnRows(sqlmock.NewRows(venueRowColumns))

	_, err := queryFindVenue(context.Background(), db, "Nope", "Nowhere")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want store.ErrNotFound", err)
	}
}

func TestCreateVenue(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO venues").
		WithArgs(
			sqlmock.AnyArg(), "Pub A", "pub-a", "1 High St", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			[]byte("[]"), sqlmock.AnyArg(),
		).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(1), now, now))

	v := &model.Venue{Name: "Pub A", Slug: "pub-a", Address: "1 High St"}
	if err := queryCreateVenue(context.Background(), db, v); err != nil {
		t.Fatalf("queryCreateVenue: %v", err)
	}
	if v.ID != 1 {
		t.Errorf("ID = %d, want 1", v.ID)
	}
}

func TestUpdateVenuePhotos_RejectsTooMany(t *testing.T) {
	db, _ := newMockDB(t)
	images := make([]model.PlaceImage, model.MaxPlaceImages+1)
	err := queryUpdateVenuePhotos(context.Background(), db, 1, images, time.Now())
	if err == nil {
		t.Fatal("expected error for too many images")
	}
}

func TestUpdateVenuePhotos(t *testing.T) {
	db, mock := newMockDB(t)
	refreshed := time.Now().UTC()
	images := []model.PlaceImage{{ExternalRef: "a", OriginalURL: "https://img/a", Position: 0}}
	data, _ := json.Marshal(images)

	mock.ExpectExec("UPDATE venues SET\\s+google_place_images = \\$2").
		WithArgs(int64(3), data, refreshed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := queryUpdateVenuePhotos(context.Background(), db, 3, images, refreshed); err != nil {
		t.Fatalf("queryUpdateVenuePhotos: %v", err)
	}
}

func TestDeleteVenue_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("DELETE FROM venues WHERE id = \\$1").
		WithArgs(int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := queryDeleteVenue(context.Background(), db, 99)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want store.ErrNotFound", err)
	}
}

func TestInsertEvent(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO events .+ ON CONFLICT \\(venue_id, day_of_week\\) DO NOTHING").
		WithArgs(int64(1), "Quiz", 3, "20:00", "weekly",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(10), now, now))

	e := &model.Event{VenueID: 1, Name: "Quiz", DayOfWeek: 3, StartTime: "20:00", Frequency: model.FrequencyWeekly}
	inserted, err := queryInsertEvent(context.Background(), db, e)
	if err != nil {
		t.Fatalf("queryInsertEvent: %v", err)
	}
	if !inserted || e.ID != 10 {
		t.Errorf("inserted = %v, id = %d", inserted, e.ID)
	}
}

func TestInsertEvent_Conflict(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("INSERT INTO events").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}))

	e := &model.Event{VenueID: 1, DayOfWeek: 3, StartTime: "20:00", Frequency: model.FrequencyWeekly}
	inserted, err := queryInsertEvent(context.Background(), db, e)
	if err != nil {
		t.Fatalf("queryInsertEvent: %v", err)
	}
	if inserted {
		t.Error("inserted = true on conflict, want false")
	}
}

func TestGetEventForUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .+ FROM events WHERE venue_id = \\$1 AND day_of_week = \\$2 FOR UPDATE").
		WithArgs(int64(1), 3).
		WillReturnRows(sqlmock.NewRows(eventRowColumns).AddRow(
			int64(10), int64(1), "Quiz", int64(3), "20:00", "weekly", int64(300),
			nil, nil, nil, nil, now, now,
		))

	e, err := queryGetEventForUpdate(context.Background(), db, 1, 3)
	if err != nil {
		t.Fatalf("queryGetEventForUpdate: %v", err)
	}
	if e.Frequency != model.FrequencyWeekly || e.EntryFeeCents == nil || *e.EntryFeeCents != 300 {
		t.Errorf("event = %+v", e)
	}
}

func TestUpsertEventSource(t *testing.T) {
	db, mock := newMockDB(t)
	seen := time.Now().UTC()
	meta := json.RawMessage(`{"raw_title":"Wednesday 20:00"}`)

	mock.ExpectQuery("INSERT INTO event_sources .+ GREATEST\\(event_sources.last_seen_at, EXCLUDED.last_seen_at\\)").
		WithArgs(int64(10), int64(2), sqlmock.AnyArg(), seen, []byte(meta)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "last_seen_at", "created_at", "updated_at"}).
			AddRow(int64(5), seen, seen, seen))

	es := &model.EventSource{EventID: 10, SourceID: 2, SourceURL: "https://src/1", LastSeenAt: seen, Metadata: meta}
	if err := queryUpsertEventSource(context.Background(), db, es); err != nil {
		t.Fatalf("queryUpsertEventSource: %v", err)
	}
	if es.ID != 5 {
		t.Errorf("ID = %d, want 5", es.ID)
	}
}

func TestClaimJob(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	lease := now.Add(5 * time.Minute)

	mock.ExpectQuery(`UPDATE jobs SET .+lease_expires_at = \$4.+state = 'running' AND lease_expires_at < \$2.+FOR UPDATE SKIP LOCKED`).
		WithArgs("details", now, now, lease).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).AddRow(
			"job-1", "venue_detail", "details", []byte(`{"source":"s"}`), "detail:s:abc", "running",
			int64(3), int64(1), int64(5), now, now, nil, nil, nil, now, lease,
		))

	j, err := queryClaimJob(context.Background(), db, "details", now, now, lease)
	if err != nil {
		t.Fatalf("queryClaimJob: %v", err)
	}
	if j.State != model.JobRunning || j.Attempt != 1 || j.UniqueKey != "detail:s:abc" {
		t.Errorf("job = %+v", j)
	}
	if j.AttemptedAt == nil || j.FinishedAt != nil {
		t.Errorf("timestamps: attempted=%v finished=%v", j.AttemptedAt, j.FinishedAt)
	}
	if j.LeaseExpiresAt == nil || !j.LeaseExpiresAt.Equal(lease) {
		t.Errorf("lease = %v, want %v", j.LeaseExpiresAt, lease)
	}
}

func TestClaimJob_Empty(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("UPDATE jobs SET").
		WillReturnRows(sqlmock.NewRows(jobRowColumns))

	now := time.Now()
	_, err := queryClaimJob(context.Background(), db, "details", now, now, now.Add(time.Minute))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want store.ErrNotFound", err)
	}
}

func TestHasActiveJob(t *testing.T) {
	for _, tc := range []struct {
		name   string
		exists bool
	}{
		{"active", true},
		{"none", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			now := time.Now()
			since := now.Add(-time.Hour)
			mock.ExpectQuery(`SELECT EXISTS.+state = 'running' AND \(lease_expires_at IS NULL OR lease_expires_at >= \$3\)`).
				WithArgs("detail:s:abc", since, now).
				WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(tc.exists))

			got, err := queryHasActiveJob(context.Background(), db, "detail:s:abc", since, now)
			if err != nil {
				t.Fatalf("queryHasActiveJob: %v", err)
			}
			if got != tc.exists {
				t.Errorf("got %v, want %v", got, tc.exists)
			}
		})
	}
}

func TestRetryJob(t *testing.T) {
	db, mock := newMockDB(t)
	at := time.Now().Add(time.Minute)
	mock.ExpectExec("UPDATE jobs SET state = 'retryable'").
		WithArgs("job-1", at, "boom").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := queryRetryJob(context.Background(), db, "job-1", at, "boom"); err != nil {
		t.Fatalf("queryRetryJob: %v", err)
	}
}

func TestSetJobOutcome(t *testing.T) {
	db, mock := newMockDB(t)
	outcome := json.RawMessage(`{"result_status":"success"}`)
	mock.ExpectExec("UPDATE jobs SET\\s+metadata = jsonb_set").
		WithArgs("job-1", []byte(outcome)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := querySetJobOutcome(context.Background(), db, "job-1", outcome); err != nil {
		t.Fatalf("querySetJobOutcome: %v", err)
	}
}

func TestRefreshCityCoordinates(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("UPDATE cities c SET .+ AVG\\(latitude\\)").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := queryRefreshCityCoordinates(context.Background(), db)
	if err != nil {
		t.Fatalf("queryRefreshCityCoordinates: %v", err)
	}
	if n != 4 {
		t.Errorf("n = %d, want 4", n)
	}
}

func TestFindOrCreateCountry(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("INSERT INTO countries .+ ON CONFLICT \\(slug\\)").
		WithArgs("United Kingdom", "GB", "united-kingdom").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "code", "slug"}).
			AddRow(int64(1), "United Kingdom", "GB", "united-kingdom"))

	c, err := queryFindOrCreateCountry(context.Background(), db, "United Kingdom", "GB")
	if err != nil {
		t.Fatalf("queryFindOrCreateCountry: %v", err)
	}
	if c.ID != 1 || c.Slug != "united-kingdom" {
		t.Errorf("country = %+v", c)
	}
}

func TestRunInTransaction_Commit(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM venues").WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		return tx.DeleteVenue(context.Background(), 1)
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
}

func TestRunInTransaction_Rollback(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	wantErr := fmt.Errorf("fail")
	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}
