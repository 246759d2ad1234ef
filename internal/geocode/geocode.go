// Package geocode resolves free-text addresses to normalized place data.
//
// Resolution is two-tier: a Places text search first, then a Geocoding API
// lookup that only fills gaps when the search result has no country or city.
// Both calls share a retry helper that waits out rate limits a bounded
// number of times.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alfredjeanlab/venuesync/internal/httpclient"
	"github.com/alfredjeanlab/venuesync/internal/model"
)

var (
	// ErrMissingAPIKey is returned by New when no credential is supplied.
	ErrMissingAPIKey = errors.New("geocode: missing API key")
	// ErrRateLimited is returned once the retry ceiling is exhausted.
	ErrRateLimited = errors.New("geocode: rate limited")
	// ErrNoResult means neither API produced a usable place.
	ErrNoResult = errors.New("geocode: no result")
	// ErrBadResponse wraps malformed or error responses. These are not retried.
	ErrBadResponse = errors.New("geocode: bad response")
)

const (
	DefaultPlacesURL  = "https://places.googleapis.com/v1/places:searchText"
	DefaultGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

	// DefaultRetryDelay is the fixed wait after a rate-limit response.
	DefaultRetryDelay = 2 * time.Second
	// DefaultMaxRetries bounds rate-limit retries per call.
	DefaultMaxRetries = 3
)

// Resolver calls the mapping APIs with a fixed credential.
type Resolver struct {
	apiKey     string
	client     *http.Client
	placesURL  string
	geocodeURL string
	retryDelay time.Duration
	maxRetries int
	logger     *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithEndpoints overrides the Places and Geocoding URLs.
func WithEndpoints(placesURL, geocodeURL string) Option {
	return func(r *Resolver) {
		r.placesURL = placesURL
		r.geocodeURL = geocodeURL
	}
}

// WithRetry overrides the rate-limit wait and retry ceiling.
func WithRetry(delay time.Duration, maxRetries int) Option {
	return func(r *Resolver) {
		r.retryDelay = delay
		r.maxRetries = maxRetries
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New returns a Resolver using apiKey for every request. An empty key is a
// configuration error.
func New(apiKey string, opts ...Option) (*Resolver, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	r := &Resolver{
		apiKey:     apiKey,
		client:     httpclient.New(30 * time.Second),
		placesURL:  DefaultPlacesURL,
		geocodeURL: DefaultGeocodeURL,
		retryDelay: DefaultRetryDelay,
		maxRetries: DefaultMaxRetries,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ResolveOption adjusts a single Resolve call.
type ResolveOption func(*resolveOptions)

type resolveOptions struct {
	forceGeocoding bool
}

// WithoutGeocodingFallback skips the Geocoding API and accepts whatever the
// place search returned, even without country or city.
func WithoutGeocodingFallback() ResolveOption {
	return func(o *resolveOptions) { o.forceGeocoding = false }
}

// Resolve looks up address. The returned place always has a country and city
// name unless WithoutGeocodingFallback is used.
func (r *Resolver) Resolve(ctx context.Context, address string, opts ...ResolveOption) (*model.Place, error) {
	ro := resolveOptions{forceGeocoding: true}
	for _, opt := range opts {
		opt(&ro)
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("%w: empty address", ErrNoResult)
	}

	place, err := r.searchText(ctx, address)
	if err != nil && !errors.Is(err, ErrNoResult) {
		return nil, err
	}
	if place == nil {
		place = &model.Place{}
	}

	if place.HasLocality() {
		return place, nil
	}
	if !ro.forceGeocoding {
		if place.PlaceID == "" && place.Location == nil {
			return nil, fmt.Errorf("%w: %q", ErrNoResult, address)
		}
		return place, nil
	}

	fallback, err := r.geocode(ctx, address)
	if err != nil && !errors.Is(err, ErrNoResult) {
		return nil, err
	}
	place.Fill(fallback)

	if place.Country.Name == "" && place.City.Name == "" {
		return nil, fmt.Errorf("%w: no country or city for %q", ErrNoResult, address)
	}
	return place, nil
}
