// Package reconcile upserts venues and events from normalized source data.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alfredjeanlab/venuesync/internal/geocode"
	"github.com/alfredjeanlab/venuesync/internal/idgen"
	"github.com/alfredjeanlab/venuesync/internal/model"
	"github.com/alfredjeanlab/venuesync/internal/photos"
	"github.com/alfredjeanlab/venuesync/internal/store"
)

// maxSlugAttempts bounds suffixed slug retries on collision.
const maxSlugAttempts = 5

// Resolver resolves an address to place data.
type Resolver interface {
	Resolve(ctx context.Context, address string, opts ...geocode.ResolveOption) (*model.Place, error)
}

// PhotoRefresher refreshes a venue's cached photos when they are stale.
type PhotoRefresher interface {
	MaybeRefresh(ctx context.Context, v *model.Venue) (*model.Venue, photos.Result)
}

// VenueReconciler upserts venues keyed by name and address.
type VenueReconciler struct {
	store    store.Store
	resolver Resolver
	photos   PhotoRefresher
	logger   *slog.Logger
}

// NewVenueReconciler returns a reconciler. resolver and refresher may be nil,
// in which case enrichment is skipped.
func NewVenueReconciler(s store.Store, resolver Resolver, refresher PhotoRefresher, logger *slog.Logger) *VenueReconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &VenueReconciler{store: s, resolver: resolver, photos: refresher, logger: logger}
}

// Upsert creates or merges the venue described by attrs. Validation failures
// are returned as *model.ValidationError. Geocoding and photo failures are
// logged and never fail the upsert.
func (r *VenueReconciler) Upsert(ctx context.Context, attrs model.VenueAttrs) (*model.Venue, error) {
	if err := model.ValidateVenueAttrs(&attrs); err != nil {
		return nil, err
	}

	v, err := r.persist(ctx, attrs)
	if err != nil {
		return nil, err
	}

	if !v.HasCoordinates() {
		enriched, err := r.Enrich(ctx, v)
		if err != nil {
			r.logger.Warn("address resolution failed", "venue_id", v.ID, "address", v.Address, "err", err)
		} else {
			v = enriched
		}
	}

	if r.photos != nil {
		v, _ = r.photos.MaybeRefresh(ctx, v)
	}
	return v, nil
}

func (r *VenueReconciler) persist(ctx context.Context, attrs model.VenueAttrs) (*model.Venue, error) {
	existing, err := r.store.FindVenue(ctx, attrs.Name, attrs.Address)
	switch {
	case err == nil:
		return r.merge(ctx, existing, attrs)
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("find venue: %w", err)
	}

	v := newVenue(attrs)
	slug, err := r.uniqueSlug(ctx, attrs.Name)
	if err != nil {
		return nil, err
	}
	v.Slug = slug

	if err := r.store.CreateVenue(ctx, v); err != nil {
		// A concurrent job may have created the same venue first.
		if winner, findErr := r.store.FindVenue(ctx, attrs.Name, attrs.Address); findErr == nil {
			return r.merge(ctx, winner, attrs)
		}
		return nil, fmt.Errorf("create venue: %w", err)
	}
	r.logger.Info("venue created", "venue_id", v.ID, "slug", v.Slug)
	return v, nil
}

func newVenue(a model.VenueAttrs) *model.Venue {
	v := &model.Venue{
		Name:      a.Name,
		Address:   a.Address,
		Postcode:  a.Postcode,
		PlaceID:   a.PlaceID,
		Phone:     a.Phone,
		Website:   a.Website,
		Facebook:  a.Facebook,
		Instagram: a.Instagram,
	}
	if a.Latitude != nil && a.Longitude != nil {
		v.SetCoordinates(*a.Latitude, *a.Longitude)
	}
	return v
}

// merge overlays non-blank attrs onto existing and saves when anything changed.
func (r *VenueReconciler) merge(ctx context.Context, existing *model.Venue, a model.VenueAttrs) (*model.Venue, error) {
	changed := false
	set := func(dst *string, src string) {
		src = strings.TrimSpace(src)
		if src != "" && *dst != src {
			*dst = src
			changed = true
		}
	}
	set(&existing.Postcode, a.Postcode)
	set(&existing.PlaceID, a.PlaceID)
	set(&existing.Phone, a.Phone)
	set(&existing.Website, a.Website)
	set(&existing.Facebook, a.Facebook)
	set(&existing.Instagram, a.Instagram)

	if a.Latitude != nil && a.Longitude != nil {
		if !existing.HasCoordinates() || *existing.Latitude != *a.Latitude || *existing.Longitude != *a.Longitude {
			existing.SetCoordinates(*a.Latitude, *a.Longitude)
			changed = true
		}
	}

	if !changed {
		return existing, nil
	}
	if err := r.store.UpdateVenue(ctx, existing); err != nil {
		return nil, fmt.Errorf("update venue %d: %w", existing.ID, err)
	}
	return existing, nil
}

// Enrich resolves v's address and fills place id, coordinates, postcode and
// city where they are missing. Whatever the resolver returns is applied, so
// with geocode.WithoutGeocodingFallback partial data is accepted.
func (r *VenueReconciler) Enrich(ctx context.Context, v *model.Venue, opts ...geocode.ResolveOption) (*model.Venue, error) {
	if r.resolver == nil {
		return v, nil
	}
	place, err := r.resolver.Resolve(ctx, v.Address, opts...)
	if err != nil {
		return nil, err
	}

	out := *v
	if out.PlaceID == "" {
		out.PlaceID = place.PlaceID
	}
	if !out.HasCoordinates() && place.Location != nil {
		out.SetCoordinates(place.Location.Lat, place.Location.Lng)
	}
	if out.Postcode == "" {
		out.Postcode = place.PostalCode
	}
	if out.CityID == nil && place.HasLocality() {
		country, err := r.store.FindOrCreateCountry(ctx, place.Country.Name, place.Country.Code)
		if err != nil {
			return nil, err
		}
		city, err := r.store.FindOrCreateCity(ctx, country.ID, place.City.Name)
		if err != nil {
			return nil, err
		}
		out.CityID = &city.ID
	}

	if err := r.store.UpdateVenue(ctx, &out); err != nil {
		return nil, fmt.Errorf("update venue %d: %w", out.ID, err)
	}
	r.logger.Info("venue geocoded", "venue_id", out.ID, "place_id", out.PlaceID)
	return &out, nil
}

func (r *VenueReconciler) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := idgen.Slug(name)
	if base == "" {
		base = "venue"
	}
	candidate := base
	for i := 0; i < maxSlugAttempts; i++ {
		taken, err := r.store.SlugExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		if candidate, err = idgen.SlugWithSuffix(base); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free slug for %q after %d attempts", name, maxSlugAttempts)
}
