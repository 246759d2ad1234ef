// Package memory implements store.Store in process memory. It backs
// "run-once --memory" and the pipeline tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/venuesync/internal/idgen"
	"github.com/alfredjeanlab/venuesync/internal/model"
	"github.com/alfredjeanlab/venuesync/internal/store"
)

type eventSourceKey struct {
	eventID, sourceID int64
}

type state struct {
	nextID       int64
	sources      map[string]*model.Source
	countries    map[string]*model.Country
	cities       map[int64]*model.City
	venues       map[int64]*model.Venue
	events       map[int64]*model.Event
	eventSources map[eventSourceKey]*model.EventSource
	jobs         map[string]*model.Job
}

func newState() *state {
	return &state{
		sources:      make(map[string]*model.Source),
		countries:    make(map[string]*model.Country),
		cities:       make(map[int64]*model.City),
		venues:       make(map[int64]*model.Venue),
		events:       make(map[int64]*model.Event),
		eventSources: make(map[eventSourceKey]*model.EventSource),
		jobs:         make(map[string]*model.Job),
	}
}

func (st *state) clone() *state {
	c := newState()
	c.nextID = st.nextID
	for k, v := range st.sources {
		cp := *v
		c.sources[k] = &cp
	}
	for k, v := range st.countries {
		cp := *v
		c.countries[k] = &cp
	}
	for k, v := range st.cities {
		c.cities[k] = cloneCity(v)
	}
	for k, v := range st.venues {
		c.venues[k] = cloneVenue(v)
	}
	for k, v := range st.events {
		c.events[k] = cloneEvent(v)
	}
	for k, v := range st.eventSources {
		cp := *v
		c.eventSources[k] = &cp
	}
	for k, v := range st.jobs {
		cp := *v
		c.jobs[k] = &cp
	}
	return c
}

// Store is a mutex-guarded in-memory store.Store. Transactions are
// serialized and roll back by restoring a snapshot.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	st   *state
	now  func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// SetClock overrides the time source used for created_at/updated_at.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) id() int64 {
	s.st.nextID++
	return s.st.nextID
}

func cloneVenue(v *model.Venue) *model.Venue {
	cp := *v
	cp.PlaceImages = append([]model.PlaceImage(nil), v.PlaceImages...)
	if v.Latitude != nil {
		lat := *v.Latitude
		cp.Latitude = &lat
	}
	if v.Longitude != nil {
		lng := *v.Longitude
		cp.Longitude = &lng
	}
	if v.CityID != nil {
		id := *v.CityID
		cp.CityID = &id
	}
	if v.PhotosUpdatedAt != nil {
		t := *v.PhotosUpdatedAt
		cp.PhotosUpdatedAt = &t
	}
	return &cp
}

func cloneEvent(e *model.Event) *model.Event {
	cp := *e
	if e.EntryFeeCents != nil {
		fee := *e.EntryFeeCents
		cp.EntryFeeCents = &fee
	}
	return &cp
}

func cloneCity(c *model.City) *model.City {
	cp := *c
	if c.Latitude != nil {
		lat := *c.Latitude
		cp.Latitude = &lat
	}
	if c.Longitude != nil {
		lng := *c.Longitude
		cp.Longitude = &lng
	}
	return &cp
}

// --- Sources ---

func (s *Store) EnsureSource(_ context.Context, src *model.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.st.sources[src.Slug]; ok {
		existing.Name = src.Name
		existing.WebsiteURL = src.WebsiteURL
		src.ID = existing.ID
		return nil
	}
	src.ID = s.id()
	cp := *src
	s.st.sources[src.Slug] = &cp
	return nil
}

func (s *Store) GetSourceBySlug(_ context.Context, slug string) (*model.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.st.sources[slug]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *src
	return &cp, nil
}

// --- Geography ---

func (s *Store) FindOrCreateCountry(_ context.Context, name, code string) (*model.Country, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slug := idgen.Slug(name)
	if c, ok := s.st.countries[slug]; ok {
		if c.Code == "" {
			c.Code = code
		}
		cp := *c
		return &cp, nil
	}
	c := &model.Country{ID: s.id(), Name: name, Code: code, Slug: slug}
	s.st.countries[slug] = c
	cp := *c
	return &cp, nil
}

func (s *Store) FindOrCreateCity(_ context.Context, countryID int64, name string) (*model.City, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slug := idgen.Slug(name)
	for _, c := range s.st.cities {
		if c.CountryID == countryID && c.Slug == slug {
			return cloneCity(c), nil
		}
	}
	c := &model.City{ID: s.id(), CountryID: countryID, Name: name, Slug: slug}
	s.st.cities[c.ID] = c
	return cloneCity(c), nil
}

func (s *Store) RefreshCityCoordinates(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type sum struct {
		lat, lng float64
		n        int
	}
	sums := make(map[int64]*sum)
	for _, v := range s.st.venues {
		if v.CityID == nil || !v.HasCoordinates() {
			continue
		}
		acc := sums[*v.CityID]
		if acc == nil {
			acc = &sum{}
			sums[*v.CityID] = acc
		}
		acc.lat += *v.Latitude
		acc.lng += *v.Longitude
		acc.n++
	}
	var touched int64
	for id, acc := range sums {
		c, ok := s.st.cities[id]
		if !ok {
			continue
		}
		lat, lng := acc.lat/float64(acc.n), acc.lng/float64(acc.n)
		c.Latitude, c.Longitude = &lat, &lng
		touched++
	}
	return touched, nil
}

// --- Venues ---

func (s *Store) FindVenue(_ context.Context, name, address string) (*model.Venue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.st.venues {
		if strings.EqualFold(v.Name, name) && strings.EqualFold(v.Address, address) {
			return cloneVenue(v), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetVenue(_ context.Context, id int64) (*model.Venue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.st.venues[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneVenue(v), nil
}

func (s *Store) GetVenueBySlug(_ context.Context, slug string) (*model.Venue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.st.venues {
		if v.Slug == slug {
			return cloneVenue(v), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) SlugExists(_ context.Context, slug string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.st.venues {
		if v.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateVenue(_ context.Context, v *model.Venue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(v.PlaceImages) > model.MaxPlaceImages {
		return fmt.Errorf("venue has %d place images, max is %d", len(v.PlaceImages), model.MaxPlaceImages)
	}
	for _, existing := range s.st.venues {
		if existing.Slug == v.Slug {
			return fmt.Errorf("venue slug %q already exists", v.Slug)
		}
		if strings.EqualFold(existing.Name, v.Name) && strings.EqualFold(existing.Address, v.Address) {
			return fmt.Errorf("venue %q at %q already exists", v.Name, v.Address)
		}
	}
	now := s.now()
	v.ID = s.id()
	v.CreatedAt, v.UpdatedAt = now, now
	s.st.venues[v.ID] = cloneVenue(v)
	return nil
}

func (s *Store) UpdateVenue(_ context.Context, v *model.Venue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.st.venues[v.ID]
	if !ok {
		return store.ErrNotFound
	}
	cp := cloneVenue(v)
	cp.PlaceImages = existing.PlaceImages
	cp.PhotosUpdatedAt = existing.PhotosUpdatedAt
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = s.now()
	v.UpdatedAt = cp.UpdatedAt
	s.st.venues[v.ID] = cp
	return nil
}

func (s *Store) UpdateVenuePhotos(_ context.Context, venueID int64, images []model.PlaceImage, refreshedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(images) > model.MaxPlaceImages {
		return fmt.Errorf("venue has %d place images, max is %d", len(images), model.MaxPlaceImages)
	}
	v, ok := s.st.venues[venueID]
	if !ok {
		return store.ErrNotFound
	}
	v.PlaceImages = append([]model.PlaceImage(nil), images...)
	t := refreshedAt
	v.PhotosUpdatedAt = &t
	v.UpdatedAt = s.now()
	return nil
}

func (s *Store) DeleteVenue(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.venues[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.st.venues, id)
	for eid, e := range s.st.events {
		if e.VenueID != id {
			continue
		}
		delete(s.st.events, eid)
		for k := range s.st.eventSources {
			if k.eventID == eid {
				delete(s.st.eventSources, k)
			}
		}
	}
	return nil
}

// --- Events ---

func (s *Store) GetEventForUpdate(_ context.Context, venueID int64, dayOfWeek int) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.findEvent(venueID, dayOfWeek); e != nil {
		return cloneEvent(e), nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) findEvent(venueID int64, dayOfWeek int) *model.Event {
	for _, e := range s.st.events {
		if e.VenueID == venueID && e.DayOfWeek == dayOfWeek {
			return e
		}
	}
	return nil
}

func (s *Store) InsertEvent(_ context.Context, e *model.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.venues[e.VenueID]; !ok {
		return false, fmt.Errorf("venue %d does not exist", e.VenueID)
	}
	if s.findEvent(e.VenueID, e.DayOfWeek) != nil {
		return false, nil
	}
	now := s.now()
	e.ID = s.id()
	e.CreatedAt, e.UpdatedAt = now, now
	s.st.events[e.ID] = cloneEvent(e)
	return true, nil
}

func (s *Store) UpdateEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.st.events[e.ID]
	if !ok {
		return store.ErrNotFound
	}
	cp := cloneEvent(e)
	cp.VenueID = existing.VenueID
	cp.DayOfWeek = existing.DayOfWeek
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = s.now()
	e.UpdatedAt = cp.UpdatedAt
	s.st.events[e.ID] = cp
	return nil
}

func (s *Store) ListVenueEvents(_ context.Context, venueID int64) ([]*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Event
	for _, e := range s.st.events {
		if e.VenueID == venueID {
			out = append(out, cloneEvent(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DayOfWeek < out[j].DayOfWeek })
	return out, nil
}

func (s *Store) UpsertEventSource(_ context.Context, es *model.EventSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := eventSourceKey{es.EventID, es.SourceID}
	now := s.now()
	if existing, ok := s.st.eventSources[key]; ok {
		existing.SourceURL = es.SourceURL
		if es.LastSeenAt.After(existing.LastSeenAt) {
			existing.LastSeenAt = es.LastSeenAt
		}
		existing.Metadata = append(json.RawMessage(nil), es.Metadata...)
		existing.UpdatedAt = now
		*es = *existing
		return nil
	}
	es.ID = s.id()
	es.CreatedAt, es.UpdatedAt = now, now
	cp := *es
	s.st.eventSources[key] = &cp
	return nil
}

func (s *Store) GetEventSource(_ context.Context, eventID, sourceID int64) (*model.EventSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	es, ok := s.st.eventSources[eventSourceKey{eventID, sourceID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *es
	return &cp, nil
}

// --- Jobs ---

func (s *Store) InsertJob(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.jobs[job.ID]; ok {
		return fmt.Errorf("job %q already exists", job.ID)
	}
	if job.State == "" {
		job.State = model.JobAvailable
	}
	job.CreatedAt = s.now()
	cp := *job
	s.st.jobs[job.ID] = &cp
	return nil
}

func (s *Store) HasActiveJob(_ context.Context, uniqueKey string, completedSince, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.st.jobs {
		if j.UniqueKey != uniqueKey {
			continue
		}
		if j.State.IsActive() && !j.Abandoned(now) {
			return true, nil
		}
		if j.State == model.JobCompleted && j.FinishedAt != nil && !j.FinishedAt.Before(completedSince) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ClaimJob(_ context.Context, queue string, now, due, leaseUntil time.Time) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next *model.Job
	for _, j := range s.st.jobs {
		if j.Queue != queue || !claimable(j, now, due) {
			continue
		}
		if next == nil || jobLess(j, next) {
			next = j
		}
	}
	if next == nil {
		return nil, store.ErrNotFound
	}
	next.State = model.JobRunning
	next.Attempt++
	t, lease := now, leaseUntil
	next.AttemptedAt = &t
	next.LeaseExpiresAt = &lease
	cp := *next
	return &cp, nil
}

func claimable(j *model.Job, now, due time.Time) bool {
	switch j.State {
	case model.JobAvailable, model.JobRetryable:
		return !j.ScheduledAt.After(due)
	case model.JobRunning:
		return j.Abandoned(now)
	}
	return false
}

func jobLess(a, b *model.Job) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.ScheduledAt.Equal(b.ScheduledAt) {
		return a.ScheduledAt.Before(b.ScheduledAt)
	}
	return a.ID < b.ID
}

func (s *Store) finishJob(id string, update func(j *model.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.st.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	update(j)
	return nil
}

func (s *Store) CompleteJob(_ context.Context, id string, finishedAt time.Time) error {
	return s.finishJob(id, func(j *model.Job) {
		j.State = model.JobCompleted
		t := finishedAt
		j.FinishedAt = &t
	})
}

func (s *Store) RetryJob(_ context.Context, id string, scheduledAt time.Time, lastError string) error {
	return s.finishJob(id, func(j *model.Job) {
		j.State = model.JobRetryable
		j.ScheduledAt = scheduledAt
		j.LastError = lastError
	})
}

func (s *Store) DiscardJob(_ context.Context, id string, finishedAt time.Time, lastError string) error {
	return s.finishJob(id, func(j *model.Job) {
		j.State = model.JobDiscarded
		t := finishedAt
		j.FinishedAt = &t
		j.LastError = lastError
	})
}

func (s *Store) SetJobOutcome(_ context.Context, id string, outcome json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.st.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	meta := map[string]json.RawMessage{}
	if len(j.Metadata) > 0 {
		if err := json.Unmarshal(j.Metadata, &meta); err != nil {
			return fmt.Errorf("decode job metadata: %w", err)
		}
	}
	meta["outcome"] = append(json.RawMessage(nil), outcome...)
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	j.Metadata = data
	return nil
}

// --- Transactions and lifecycle ---

// RunInTransaction runs fn against s with all other transactions excluded.
// If fn fails, every change made since the transaction began is discarded.
func (s *Store) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// --- Inspection ---

// Venues returns every venue ordered by ID.
func (s *Store) Venues() []*model.Venue {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Venue, 0, len(s.st.venues))
	for _, v := range s.st.venues {
		out = append(out, cloneVenue(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Events returns every event ordered by ID.
func (s *Store) Events() []*model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Event, 0, len(s.st.events))
	for _, e := range s.st.events {
		out = append(out, cloneEvent(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EventSources returns every event source ordered by ID.
func (s *Store) EventSources() []*model.EventSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.EventSource, 0, len(s.st.eventSources))
	for _, es := range s.st.eventSources {
		cp := *es
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Jobs returns every job ordered by scheduled time, then ID.
func (s *Store) Jobs() []*model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Job, 0, len(s.st.jobs))
	for _, j := range s.st.jobs {
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Cities returns every city ordered by ID.
func (s *Store) Cities() []*model.City {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.City, 0, len(s.st.cities))
	for _, c := range s.st.cities {
		out = append(out, cloneCity(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
