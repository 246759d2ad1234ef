package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/venuesync/internal/geocode"
	"github.com/alfredjeanlab/venuesync/internal/model"
	"github.com/alfredjeanlab/venuesync/internal/reconcile"
	"github.com/alfredjeanlab/venuesync/internal/store"
)

// EnrichmentWorker fills a venue's missing place id and coordinates, then
// refreshes its photos. Partial resolution results are accepted.
type EnrichmentWorker struct {
	Store    store.Store
	Venues   *reconcile.VenueReconciler
	Photos   reconcile.PhotoRefresher
	Recorder *Recorder
	Logger   *slog.Logger
}

func (EnrichmentWorker) Kind() string { return KindVenueEnrichment }

func (w EnrichmentWorker) Work(ctx context.Context, job *model.Job) error {
	var args EnrichmentArgs
	if err := decode(job, &args); err != nil {
		return err
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	v, err := w.Store.GetVenue(ctx, args.VenueID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Info("venue gone, skipping enrichment", "venue_id", args.VenueID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load venue %d: %w", args.VenueID, err)
	}

	details := map[string]any{}
	if !v.HasCoordinates() || v.PlaceID == "" {
		enriched, err := w.Venues.Enrich(ctx, v, geocode.WithoutGeocodingFallback())
		if err != nil {
			err = Classify(fmt.Errorf("resolve venue %d: %w", v.ID, err))
			w.Recorder.Failure(ctx, job, "", &v.ID, err)
			return err
		}
		v = enriched
		details["resolved"] = v.HasCoordinates()
	}

	if w.Photos != nil {
		updated, pr := w.Photos.MaybeRefresh(ctx, v)
		v = updated
		details["photos"] = string(pr.Outcome)
		details["photos_downloaded"] = pr.Downloaded
	}

	w.Recorder.Success(ctx, job, "", &v.ID, nil, details)
	return nil
}
