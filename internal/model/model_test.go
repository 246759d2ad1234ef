package model

import (
	"testing"
	"time"
)

func TestFrequency_IsValid(t *testing.T) {
	for _, tc := range []struct {
		f    Frequency
		want bool
	}{
		{FrequencyWeekly, true},
		{FrequencyBiweekly, true},
		{FrequencyMonthly, true},
		{Frequency(""), false},
		{Frequency("daily"), false},
	} {
		if got := tc.f.IsValid(); got != tc.want {
			t.Errorf("Frequency(%q).IsValid() = %v, want %v", tc.f, got, tc.want)
		}
	}
}

func TestEvent_SameContent(t *testing.T) {
	base := func() *Event {
		return &Event{StartTime: "20:00", Frequency: FrequencyWeekly, EntryFeeCents: ptr(200), Description: "General knowledge"}
	}
	for _, tc := range []struct {
		name   string
		mutate func(e *Event)
		want   bool
	}{
		{"identical", func(*Event) {}, true},
		{"performer ignored", func(e *Event) { e.PerformerName = "Sam" }, true},
		{"time", func(e *Event) { e.StartTime = "19:30" }, false},
		{"frequency", func(e *Event) { e.Frequency = FrequencyMonthly }, false},
		{"fee value", func(e *Event) { e.EntryFeeCents = ptr(250) }, false},
		{"fee removed", func(e *Event) { e.EntryFeeCents = nil }, false},
		{"hero image", func(e *Event) { e.HeroImageURL = "https://img.example/a.jpg" }, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := base()
			tc.mutate(e)
			if got := base().SameContent(e); got != tc.want {
				t.Errorf("SameContent = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDiscoveredVenue_Key(t *testing.T) {
	a := DiscoveredVenue{Name: "Pub A", Address: "1 High St"}
	b := DiscoveredVenue{Name: " pub a", Address: "1 HIGH ST "}
	if a.Key() != b.Key() {
		t.Errorf("keys differ: %q vs %q", a.Key(), b.Key())
	}
	withURL := DiscoveredVenue{Name: "Pub A", URL: "https://quiz.example/Pub-A"}
	if got := withURL.Key(); got != "https://quiz.example/pub-a" {
		t.Errorf("Key() = %q, want lower-cased URL", got)
	}
}

func TestPlace_Fill(t *testing.T) {
	p := &Place{PlaceID: "p1", City: Named{Name: "London"}}
	p.Fill(&Place{
		PlaceID:  "p2",
		Location: &LatLng{Lat: 51.5, Lng: -0.1},
		Country:  Named{Name: "United Kingdom", Code: "GB"},
		City:     Named{Name: "Westminster"},
	})
	if p.PlaceID != "p1" || p.City.Name != "London" {
		t.Errorf("populated fields overwritten: %+v", p)
	}
	if p.Location == nil || p.Country.Code != "GB" {
		t.Errorf("empty fields not filled: %+v", p)
	}
	if !p.HasLocality() {
		t.Error("expected locality after fill")
	}
	p.Fill(nil)
}

func TestJobState_IsActive(t *testing.T) {
	for _, tc := range []struct {
		s    JobState
		want bool
	}{
		{JobAvailable, true},
		{JobRunning, true},
		{JobRetryable, true},
		{JobCompleted, false},
		{JobDiscarded, false},
	} {
		if got := tc.s.IsActive(); got != tc.want {
			t.Errorf("%s.IsActive() = %v, want %v", tc.s, got, tc.want)
		}
	}
}

func TestJob_Abandoned(t *testing.T) {
	now := time.Now()
	past, future := now.Add(-time.Second), now.Add(time.Second)
	for _, tc := range []struct {
		name string
		job  Job
		want bool
	}{
		{"running past lease", Job{State: JobRunning, LeaseExpiresAt: &past}, true},
		{"running inside lease", Job{State: JobRunning, LeaseExpiresAt: &future}, false},
		{"running without lease", Job{State: JobRunning}, false},
		{"retryable past lease", Job{State: JobRetryable, LeaseExpiresAt: &past}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.job.Abandoned(now); got != tc.want {
				t.Errorf("Abandoned() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestVenue_Coordinates(t *testing.T) {
	v := &Venue{}
	if v.HasCoordinates() {
		t.Fatal("empty venue has coordinates")
	}
	v.SetCoordinates(51.5, -0.12)
	if !v.HasCoordinates() || *v.Latitude != 51.5 || *v.Longitude != -0.12 {
		t.Errorf("coordinates = %v, %v", v.Latitude, v.Longitude)
	}
}
