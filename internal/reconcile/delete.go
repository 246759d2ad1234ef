package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/venuesync/internal/model"
	"github.com/alfredjeanlab/venuesync/internal/store"
)

// ImageDeleter removes a venue's cached photo files.
type ImageDeleter interface {
	DeleteVenueImages(ctx context.Context, v *model.Venue) error
}

// DeleteResult reports what DeleteVenue removed.
type DeleteResult struct {
	Venue *model.Venue
	// PhotoErr joins the per-file failures; the venue row is deleted
	// regardless.
	PhotoErr      error
	PhotoFailures int
}

// DeleteVenue deletes the photo files of the venue with the given slug and then
// the venue row, with its events and event sources. Photo deletion failures
// are logged and reported but never block the row deletion.
func DeleteVenue(ctx context.Context, s store.Store, images ImageDeleter, slug string, logger *slog.Logger) (*DeleteResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v, err := s.GetVenueBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("get venue %q: %w", slug, err)
	}

	res := &DeleteResult{Venue: v}
	if images != nil {
		if err := images.DeleteVenueImages(ctx, v); err != nil {
			logger.Warn("some photo files were not deleted", "venue_id", v.ID, "err", err)
			res.PhotoErr = err
			res.PhotoFailures = 1
			if joined, ok := err.(interface{ Unwrap() []error }); ok {
				res.PhotoFailures = len(joined.Unwrap())
			}
		}
	}

	if err := s.DeleteVenue(ctx, v.ID); err != nil {
		return res, fmt.Errorf("delete venue %d: %w", v.ID, err)
	}
	logger.Info("venue deleted", "venue_id", v.ID, "slug", v.Slug)
	return res, nil
}
