package model

import "time"

// MaxPlaceImages caps the cached photo set of a venue.
const MaxPlaceImages = 5

// Country is a resolved country.
type Country struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
	Slug string `json:"slug"`
}

// City belongs to a Country. Latitude/Longitude are averaged from its venues.
type City struct {
	ID        int64    `json:"id"`
	CountryID int64    `json:"country_id"`
	Name      string   `json:"name"`
	Slug      string   `json:"slug"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Venue is a canonical physical location hosting events.
// Latitude and Longitude are either both set or both nil.
type Venue struct {
	ID              int64        `json:"id"`
	CityID          *int64       `json:"city_id,omitempty"`
	Name            string       `json:"name"`
	Slug            string       `json:"slug"`
	Address         string       `json:"address"`
	Postcode        string       `json:"postcode,omitempty"`
	Latitude        *float64     `json:"latitude,omitempty"`
	Longitude       *float64     `json:"longitude,omitempty"`
	PlaceID         string       `json:"place_id,omitempty"`
	Phone           string       `json:"phone,omitempty"`
	Website         string       `json:"website,omitempty"`
	Facebook        string       `json:"facebook,omitempty"`
	Instagram       string       `json:"instagram,omitempty"`
	PlaceImages     []PlaceImage `json:"google_place_images"`
	PhotosUpdatedAt *time.Time   `json:"photos_updated_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// HasCoordinates reports whether both coordinates are present.
func (v *Venue) HasCoordinates() bool {
	return v.Latitude != nil && v.Longitude != nil
}

// SetCoordinates sets both coordinates together.
func (v *Venue) SetCoordinates(lat, lng float64) {
	v.Latitude = &lat
	v.Longitude = &lng
}

// PlaceImage is one cached photo of a venue. LocalPath is empty when the
// download failed and only the external URL is known.
type PlaceImage struct {
	ExternalRef string    `json:"external_ref"`
	OriginalURL string    `json:"original_url"`
	LocalPath   string    `json:"local_path,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
	Position    int       `json:"position"`
}

// VenueAttrs are the incoming attributes for a venue upsert. Blank fields
// never overwrite values already stored.
type VenueAttrs struct {
	Name      string   `json:"name" validate:"required,max=255"`
	Address   string   `json:"address" validate:"required,max=500"`
	Postcode  string   `json:"postcode,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty" validate:"required_with=Longitude,omitempty,latitude"`
	Longitude *float64 `json:"longitude,omitempty" validate:"required_with=Latitude,omitempty,longitude"`
	PlaceID   string   `json:"place_id,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Website   string   `json:"website,omitempty" validate:"omitempty,url"`
	Facebook  string   `json:"facebook,omitempty" validate:"omitempty,url"`
	Instagram string   `json:"instagram,omitempty" validate:"omitempty,url"`
}
