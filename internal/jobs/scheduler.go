package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/venuesync/internal/metrics"
	"github.com/alfredjeanlab/venuesync/internal/model"
	"github.com/alfredjeanlab/venuesync/internal/store"
)

// ScheduleResult summarizes one RateLimitedScheduler.Schedule call.
type ScheduleResult struct {
	Jobs       []*model.Job
	Duplicates int
}

// RateLimitedScheduler spreads detail jobs for a listing over time: the
// k-th enqueued job runs k*interval after the first.
type RateLimitedScheduler struct {
	store    store.Store
	interval time.Duration
	window   time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewRateLimitedScheduler returns a scheduler spacing jobs by interval and
// suppressing a venue that already has a detail job pending, running or
// completed within window.
func NewRateLimitedScheduler(s store.Store, interval, window time.Duration, logger *slog.Logger) *RateLimitedScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimitedScheduler{store: s, interval: interval, window: window, now: time.Now, logger: logger}
}

// Delay returns the offset of the k-th enqueued job (0-based).
func Delay(k int, interval time.Duration) time.Duration {
	return time.Duration(k) * interval
}

// DetailKey is the unique key of the detail job for v within source.
func DetailKey(source string, v model.DiscoveredVenue) string {
	sum := sha256.Sum256([]byte(v.Key()))
	return "detail:" + source + ":" + hex.EncodeToString(sum[:8])
}

// Schedule enqueues one detail job per venue. interval overrides the
// scheduler default when positive. Duplicates within the batch and venues
// with an active job are skipped without consuming a slot.
func (s *RateLimitedScheduler) Schedule(ctx context.Context, source, runID string, venues []model.DiscoveredVenue, interval time.Duration) (*ScheduleResult, error) {
	if interval <= 0 {
		interval = s.interval
	}
	now := s.now()
	since := now.Add(-s.window)
	seen := make(map[string]bool, len(venues))
	res := &ScheduleResult{}

	for _, v := range venues {
		key := DetailKey(source, v)
		if seen[key] {
			res.Duplicates++
			metrics.DetailJobsScheduled.WithLabelValues(source, "duplicate").Inc()
			continue
		}
		seen[key] = true

		at := now.Add(Delay(len(res.Jobs), interval))
		job, inserted, err := InsertUnique(ctx, s.store, DetailArgs{Source: source, RunID: runID, Venue: v},
			InsertOpts{ScheduledAt: at, UniqueKey: key}, since, now)
		if err != nil {
			return res, err
		}
		if !inserted {
			res.Duplicates++
			metrics.DetailJobsScheduled.WithLabelValues(source, "duplicate").Inc()
			s.logger.Debug("detail job already active", "source", source, "venue", v.Name, "unique_key", key)
			continue
		}
		res.Jobs = append(res.Jobs, job)
		metrics.DetailJobsScheduled.WithLabelValues(source, "enqueued").Inc()
	}

	s.logger.Info("detail jobs scheduled",
		"source", source, "run_id", runID, "enqueued", len(res.Jobs), "duplicates", res.Duplicates,
		"spread", Delay(max(len(res.Jobs)-1, 0), interval))
	return res, nil
}
