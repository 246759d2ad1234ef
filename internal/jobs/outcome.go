package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/venuesync/internal/events"
	"github.com/alfredjeanlab/venuesync/internal/model"
	"github.com/alfredjeanlab/venuesync/internal/store"
)

// Recorder attaches a JobOutcome to the job's metadata and publishes it.
// Recording never fails the job: errors are logged.
type Recorder struct {
	store     store.Store
	publisher events.Publisher
	now       func() time.Time
	logger    *slog.Logger
}

// NewRecorder returns a recorder. A nil publisher disables publishing.
func NewRecorder(s store.Store, pub events.Publisher, logger *slog.Logger) *Recorder {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: s, publisher: pub, now: time.Now, logger: logger}
}

// Record stores and publishes o for job. ProcessedAt is filled when zero.
func (r *Recorder) Record(ctx context.Context, job *model.Job, source string, o model.JobOutcome) {
	if o.ProcessedAt.IsZero() {
		o.ProcessedAt = r.now().UTC()
	}
	data, err := json.Marshal(o)
	if err != nil {
		r.logger.Error("encode job outcome", "job_id", job.ID, "err", err)
		return
	}
	if err := r.store.SetJobOutcome(ctx, job.ID, data); err != nil {
		r.logger.Error("store job outcome", "job_id", job.ID, "err", err)
	}
	ev := events.JobOutcome{JobID: job.ID, Kind: job.Kind, Source: source, Attempt: job.Attempt, Outcome: o}
	if err := r.publisher.Publish(ctx, events.TopicJobOutcome, ev); err != nil {
		r.logger.Warn("publish job outcome", "job_id", job.ID, "err", err)
	}
}

// Success records a successful outcome.
func (r *Recorder) Success(ctx context.Context, job *model.Job, source string, venueID, eventID *int64, details map[string]any) {
	r.Record(ctx, job, source, model.JobOutcome{
		ResultStatus: model.ResultSuccess,
		VenueID:      venueID,
		EventID:      eventID,
		Details:      details,
	})
}

// Failure records an error outcome. venueID is set when the venue was
// reconciled before the failing stage.
func (r *Recorder) Failure(ctx context.Context, job *model.Job, source string, venueID *int64, err error) {
	r.Record(ctx, job, source, model.JobOutcome{
		ResultStatus: model.ResultError,
		VenueID:      venueID,
		Error:        err.Error(),
	})
}
