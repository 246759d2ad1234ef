package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/venuesync/internal/metrics"
	"github.com/alfredjeanlab/venuesync/internal/model"
	"github.com/alfredjeanlab/venuesync/internal/schedule"
	"github.com/alfredjeanlab/venuesync/internal/store"
)

// Action is what EventReconciler did to the current event.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
)

// EventResult is the outcome of one EventReconciler.Process call.
type EventResult struct {
	Event  *model.Event
	Source *model.EventSource
	Action Action
}

// EventReconciler upserts the current event for a (venue, weekday) slot and
// its per-source provenance row in one transaction.
type EventReconciler struct {
	store  store.Store
	now    func() time.Time
	logger *slog.Logger
}

// EventOption configures an EventReconciler.
type EventOption func(*EventReconciler)

// WithEventClock sets the time source for last_seen_at.
func WithEventClock(now func() time.Time) EventOption {
	return func(r *EventReconciler) { r.now = now }
}

// NewEventReconciler returns a reconciler writing through s.
func NewEventReconciler(s store.Store, logger *slog.Logger, opts ...EventOption) *EventReconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &EventReconciler{store: s, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// scheduleMeta is the diagnostic snapshot stored on EventSource.metadata.
type scheduleMeta struct {
	RawTitle   string        `json:"raw_title"`
	Title      *scheduleJSON `json:"title_schedule,omitempty"`
	TitleError string        `json:"title_parse_error,omitempty"`
	Effective  scheduleJSON  `json:"effective_schedule"`
	Overridden bool          `json:"overridden"`
	Consistent bool          `json:"consistent"`
}

type scheduleJSON struct {
	DayOfWeek int             `json:"day_of_week"`
	StartTime string          `json:"start_time"`
	Frequency model.Frequency `json:"frequency"`
}

func toJSON(s schedule.Schedule) scheduleJSON {
	return scheduleJSON{DayOfWeek: s.DayOfWeek, StartTime: s.StartTime, Frequency: s.Frequency}
}

// Process reconciles attrs against venue for sourceID.
//
// The schedule comes from attrs.RawTitle, with attrs.DayOfWeek and
// attrs.StartTime taking precedence when set. Frequency always comes from the
// title. An unparseable schedule is returned as an error wrapping
// schedule.ErrNoWeekday or schedule.ErrNoTime.
//
// A different weekday never mutates an existing event: it lands in its own
// (venue, day) slot. The EventSource last_seen_at is bumped on every
// successful call, changed content or not.
func (r *EventReconciler) Process(ctx context.Context, venue *model.Venue, attrs model.EventAttrs, sourceID int64) (*EventResult, error) {
	if err := model.ValidateEventAttrs(&attrs); err != nil {
		return nil, err
	}

	effective, err := schedule.ParseWith(attrs.RawTitle, schedule.Override{
		DayOfWeek: attrs.DayOfWeek,
		StartTime: attrs.StartTime,
	})
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", attrs.RawTitle, err)
	}

	meta := scheduleMeta{
		RawTitle:   attrs.RawTitle,
		Effective:  toJSON(effective),
		Overridden: attrs.DayOfWeek != 0 || attrs.StartTime != "",
		Consistent: true,
	}
	if title, err := schedule.Parse(attrs.RawTitle); err != nil {
		meta.TitleError = err.Error()
		meta.Consistent = !meta.Overridden
	} else {
		tj := toJSON(title)
		meta.Title = &tj
		meta.Consistent = title.DayOfWeek == effective.DayOfWeek && title.StartTime == effective.StartTime
	}
	if !meta.Consistent {
		r.logger.Debug("structured schedule disagrees with title",
			"venue_id", venue.ID, "title", attrs.RawTitle, "day_of_week", effective.DayOfWeek, "start_time", effective.StartTime)
	}
	metadata, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}

	candidate := &model.Event{
		VenueID:           venue.ID,
		Name:              attrs.RawTitle,
		DayOfWeek:         effective.DayOfWeek,
		StartTime:         effective.StartTime,
		Frequency:         effective.Frequency,
		EntryFeeCents:     attrs.EntryFeeCents,
		Description:       attrs.Description,
		HeroImageURL:      attrs.HeroImageURL,
		PerformerName:     attrs.PerformerName,
		PerformerImageURL: attrs.PerformerImageURL,
	}

	var result *EventResult
	err = r.store.RunInTransaction(ctx, func(tx store.Store) error {
		event, action, err := upsertCurrent(ctx, tx, candidate)
		if err != nil {
			return err
		}

		es := &model.EventSource{
			EventID:    event.ID,
			SourceID:   sourceID,
			SourceURL:  attrs.SourceURL,
			LastSeenAt: r.now().UTC(),
			Metadata:   metadata,
		}
		if err := tx.UpsertEventSource(ctx, es); err != nil {
			return fmt.Errorf("upsert event source: %w", err)
		}
		result = &EventResult{Event: event, Source: es, Action: action}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.EventsReconciled.WithLabelValues(string(result.Action)).Inc()
	r.logger.Info("event reconciled",
		"venue_id", venue.ID, "event_id", result.Event.ID, "day_of_week", result.Event.DayOfWeek, "action", result.Action)
	return result, nil
}

// upsertCurrent inserts candidate into its (venue, day) slot or updates the
// row already there when the compared fields differ. A lost insert race is
// resolved by re-reading the winner's row under lock.
func upsertCurrent(ctx context.Context, tx store.Store, candidate *model.Event) (*model.Event, Action, error) {
	existing, err := tx.GetEventForUpdate(ctx, candidate.VenueID, candidate.DayOfWeek)
	if errors.Is(err, store.ErrNotFound) {
		ev := *candidate
		inserted, err := tx.InsertEvent(ctx, &ev)
		if err != nil {
			return nil, "", fmt.Errorf("insert event: %w", err)
		}
		if inserted {
			return &ev, ActionCreated, nil
		}
		existing, err = tx.GetEventForUpdate(ctx, candidate.VenueID, candidate.DayOfWeek)
	}
	if err != nil {
		return nil, "", fmt.Errorf("load current event: %w", err)
	}

	if existing.SameContent(candidate) {
		return existing, ActionUnchanged, nil
	}

	existing.Name = candidate.Name
	existing.StartTime = candidate.StartTime
	existing.Frequency = candidate.Frequency
	existing.EntryFeeCents = candidate.EntryFeeCents
	existing.Description = candidate.Description
	existing.HeroImageURL = candidate.HeroImageURL
	existing.PerformerName = candidate.PerformerName
	existing.PerformerImageURL = candidate.PerformerImageURL
	if err := tx.UpdateEvent(ctx, existing); err != nil {
		return nil, "", fmt.Errorf("update event %d: %w", existing.ID, err)
	}
	return existing, ActionUpdated, nil
}
