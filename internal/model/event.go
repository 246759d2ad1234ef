package model

import (
	"encoding/json"
	"time"
)

// Frequency is how often an event recurs.
type Frequency string

const (
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// IsValid checks whether the frequency is a known value.
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	}
	return false
}

// Event is a recurring event at a venue. At most one row exists per
// (VenueID, DayOfWeek); a day change produces a new row.
type Event struct {
	ID                int64     `json:"id"`
	VenueID           int64     `json:"venue_id"`
	Name              string    `json:"name"`
	DayOfWeek         int       `json:"day_of_week"`
	StartTime         string    `json:"start_time"`
	Frequency         Frequency `json:"frequency"`
	EntryFeeCents     *int      `json:"entry_fee_cents,omitempty"`
	Description       string    `json:"description,omitempty"`
	HeroImageURL      string    `json:"hero_image_url,omitempty"`
	PerformerName     string    `json:"performer_name,omitempty"`
	PerformerImageURL string    `json:"performer_image_url,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SameContent reports whether the compared field set of two events is equal:
// start time, frequency, entry fee, description and hero image.
func (e *Event) SameContent(o *Event) bool {
	if e.StartTime != o.StartTime || e.Frequency != o.Frequency ||
		e.Description != o.Description || e.HeroImageURL != o.HeroImageURL {
		return false
	}
	switch {
	case e.EntryFeeCents == nil && o.EntryFeeCents == nil:
		return true
	case e.EntryFeeCents == nil || o.EntryFeeCents == nil:
		return false
	default:
		return *e.EntryFeeCents == *o.EntryFeeCents
	}
}

// EventAttrs are the incoming attributes for an event. DayOfWeek and
// StartTime are optional structured overrides; zero values mean "parse from
// RawTitle".
type EventAttrs struct {
	RawTitle          string `json:"raw_title" validate:"required"`
	DayOfWeek         int    `json:"day_of_week,omitempty" validate:"omitempty,min=1,max=7"`
	StartTime         string `json:"start_time,omitempty"`
	EntryFeeCents     *int   `json:"entry_fee_cents,omitempty" validate:"omitempty,min=0"`
	Description       string `json:"description,omitempty"`
	HeroImageURL      string `json:"hero_image_url,omitempty"`
	PerformerName     string `json:"performer_name,omitempty"`
	PerformerImageURL string `json:"performer_image_url,omitempty"`
	SourceURL         string `json:"source_url,omitempty"`
}

// EventSource links an Event to the Source that last confirmed it.
// LastSeenAt never moves backwards.
type EventSource struct {
	ID         int64           `json:"id"`
	EventID    int64           `json:"event_id"`
	SourceID   int64           `json:"source_id"`
	SourceURL  string          `json:"source_url,omitempty"`
	LastSeenAt time.Time       `json:"last_seen_at"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Source is a listing provider. Static reference data.
type Source struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	WebsiteURL string `json:"website_url"`
}
