package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alfredjeanlab/venuesync/internal/events"
	"github.com/alfredjeanlab/venuesync/internal/model"
)

// DiscoveryWorker lists a source's venues and schedules a detail job for
// each of them.
type DiscoveryWorker struct {
	Sources   *SourceSet
	Scheduler *RateLimitedScheduler
	Recorder  *Recorder
	Publisher events.Publisher
	Logger    *slog.Logger
}

func (DiscoveryWorker) Kind() string { return KindDiscovery }

func (w DiscoveryWorker) Work(ctx context.Context, job *model.Job) error {
	var args DiscoveryArgs
	if err := decode(job, &args); err != nil {
		return err
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if args.RunID == "" {
		args.RunID = uuid.NewString()
	}
	logger = logger.With("source", args.Source, "run_id", args.RunID, "job_id", job.ID)

	sc, x, err := w.Sources.Get(args.Source)
	if err != nil {
		w.Recorder.Failure(ctx, job, args.Source, nil, err)
		return err
	}

	found, err := x.Discover(ctx)
	if err != nil {
		err = Classify(fmt.Errorf("discover %s: %w", args.Source, err))
		w.Recorder.Failure(ctx, job, args.Source, nil, err)
		return err
	}
	logger.Info("discovery listed venues", "count", len(found))

	res, err := w.Scheduler.Schedule(ctx, args.Source, args.RunID, found, sc.DetailInterval)
	if err != nil {
		w.Recorder.Failure(ctx, job, args.Source, nil, err)
		return err
	}

	w.Recorder.Success(ctx, job, args.Source, nil, nil, map[string]any{
		"run_id":     args.RunID,
		"discovered": len(found),
		"enqueued":   len(res.Jobs),
		"duplicates": res.Duplicates,
	})
	if w.Publisher != nil {
		ev := events.DiscoveryCompleted{
			Source:     args.Source,
			RunID:      args.RunID,
			Discovered: len(found),
			Enqueued:   len(res.Jobs),
			Duplicates: res.Duplicates,
		}
		if err := w.Publisher.Publish(ctx, events.TopicDiscoveryCompleted, ev); err != nil {
			logger.Warn("publish discovery completed", "err", err)
		}
	}
	return nil
}
