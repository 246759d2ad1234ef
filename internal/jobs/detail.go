package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alfredjeanlab/venuesync/internal/model"
	"github.com/alfredjeanlab/venuesync/internal/photos"
	"github.com/alfredjeanlab/venuesync/internal/reconcile"
	"github.com/alfredjeanlab/venuesync/internal/store"
)

// DefaultFollowUpDelay is how long after a detail job its enrichment
// follow-up runs.
const DefaultFollowUpDelay = 10 * time.Minute

// DetailWorker processes one discovered venue: extract, reconcile the venue,
// reconcile its current event, then schedule enrichment when the venue is
// still missing coordinates or has stale photos.
//
// Stages already committed stay committed when a later stage fails; the next
// run reconciles the remainder.
type DetailWorker struct {
	Store         store.Store
	Sources       *SourceSet
	Venues        *reconcile.VenueReconciler
	Events        *reconcile.EventReconciler
	Recorder      *Recorder
	FollowUpDelay time.Duration
	Now           func() time.Time
	Logger        *slog.Logger
}

func (DetailWorker) Kind() string { return KindVenueDetail }

func (w DetailWorker) Work(ctx context.Context, job *model.Job) error {
	var args DetailArgs
	if err := decode(job, &args); err != nil {
		return err
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("source", args.Source, "job_id", job.ID, "venue", args.Venue.Name)

	venue, event, err := w.process(ctx, args, logger)
	if err != nil {
		err = Classify(err)
		var venueID *int64
		if venue != nil {
			venueID = &venue.ID
		}
		w.Recorder.Failure(ctx, job, args.Source, venueID, err)
		logger.Warn("venue detail failed", "attempt", job.Attempt, "err", err)
		return err
	}

	w.Recorder.Success(ctx, job, args.Source, &venue.ID, &event.Event.ID, map[string]any{
		"action":      string(event.Action),
		"day_of_week": event.Event.DayOfWeek,
		"start_time":  event.Event.StartTime,
	})
	return nil
}

func (w DetailWorker) process(ctx context.Context, args DetailArgs, logger *slog.Logger) (*model.Venue, *reconcile.EventResult, error) {
	_, x, err := w.Sources.Get(args.Source)
	if err != nil {
		return nil, nil, err
	}
	src, err := w.Store.GetSourceBySlug(ctx, args.Source)
	if err != nil {
		return nil, nil, fmt.Errorf("load source %s: %w", args.Source, err)
	}

	nv, err := x.Extract(ctx, args.Venue)
	if err != nil {
		return nil, nil, fmt.Errorf("extract: %w", err)
	}

	venue, err := w.Venues.Upsert(ctx, nv.Venue)
	if err != nil {
		return nil, nil, fmt.Errorf("reconcile venue: %w", err)
	}

	event, err := w.Events.Process(ctx, venue, nv.Event, src.ID)
	if err != nil {
		return venue, nil, fmt.Errorf("reconcile event: %w", err)
	}

	if err := w.scheduleFollowUp(ctx, venue, logger); err != nil {
		// The venue and event are stored; enrichment is retried next run.
		logger.Warn("schedule enrichment failed", "venue_id", venue.ID, "err", err)
	}
	return venue, event, nil
}

func (w DetailWorker) scheduleFollowUp(ctx context.Context, v *model.Venue, logger *slog.Logger) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if v.HasCoordinates() && !photos.NeedsRefresh(v, now()) {
		return nil
	}
	delay := w.FollowUpDelay
	if delay <= 0 {
		delay = DefaultFollowUpDelay
	}
	key := "enrich:" + strconv.FormatInt(v.ID, 10)
	at := now()
	_, inserted, err := InsertUnique(ctx, w.Store, EnrichmentArgs{VenueID: v.ID},
		InsertOpts{ScheduledAt: at.Add(delay), UniqueKey: key}, at.Add(-delay), at)
	if err != nil {
		return err
	}
	if inserted {
		logger.Debug("enrichment scheduled", "venue_id", v.ID, "delay", delay)
	}
	return nil
}
