package model

import (
	"encoding/json"
	"strings"
)

// DiscoveredVenue is one entry of a source's venue listing, carried verbatim
// into the detail job. Raw holds the source-specific payload.
type DiscoveredVenue struct {
	Name    string          `json:"name"`
	Address string          `json:"address,omitempty"`
	URL     string          `json:"url,omitempty"`
	Raw     json.RawMessage `json:"raw,omitempty"`
}

// Key identifies the venue within its source for duplicate suppression.
func (d DiscoveredVenue) Key() string {
	if d.URL != "" {
		return strings.ToLower(strings.TrimSpace(d.URL))
	}
	return strings.ToLower(strings.TrimSpace(d.Name)) + "|" + strings.ToLower(strings.TrimSpace(d.Address))
}

// NormalizedVenue is what a source extractor produces from one payload.
type NormalizedVenue struct {
	Venue VenueAttrs `json:"venue"`
	Event EventAttrs `json:"event"`
}
