// Package worker runs queued jobs from named queues with a per-job
// deadline, bounded retries and exponential backoff.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/alfredjeanlab/venuesync/internal/jobs"
	"github.com/alfredjeanlab/venuesync/internal/metrics"
	"github.com/alfredjeanlab/venuesync/internal/model"
	"github.com/alfredjeanlab/venuesync/internal/store"
)

// Defaults.
const (
	DefaultPollInterval = time.Second
	DefaultJobTimeout   = 2 * time.Minute
	BackoffBase         = 10 * time.Second
	BackoffMax          = 30 * time.Minute
)

// finishTimeout bounds the state write after an attempt.
const finishTimeout = 10 * time.Second

// leaseGrace pads a claim's lease past the attempt deadline and the state
// write. unboundedLease applies when attempts have no deadline.
const (
	leaseGrace     = time.Minute
	unboundedLease = 24 * time.Hour
)

// Backoff returns the retry delay after the given 1-based attempt.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= BackoffMax {
			return BackoffMax
		}
	}
	return d
}

// Pool claims jobs from its queues and runs the registered worker for each
// job's kind.
type Pool struct {
	store        store.Store
	workers      map[string]jobs.Worker
	queues       map[string]int
	pollInterval time.Duration
	jobTimeout   time.Duration
	now          func() time.Time
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Pool.
type Option func(*Pool)

// WithQueue runs concurrency goroutines against queue.
func WithQueue(queue string, concurrency int) Option {
	return func(p *Pool) { p.queues[queue] = concurrency }
}

// WithJobTimeout sets the hard deadline of one attempt.
func WithJobTimeout(d time.Duration) Option {
	return func(p *Pool) { p.jobTimeout = d }
}

// WithPollInterval sets how long an idle goroutine waits before claiming again.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pool) { p.pollInterval = d }
}

// WithClock sets the time source for claims and retry scheduling.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// New returns a pool over s. Without WithQueue it serves nothing.
func New(s store.Store, opts ...Option) *Pool {
	p := &Pool{
		store:        s,
		workers:      make(map[string]jobs.Worker),
		queues:       make(map[string]int),
		pollInterval: DefaultPollInterval,
		jobTimeout:   DefaultJobTimeout,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register adds w for its kind, replacing any earlier worker.
func (p *Pool) Register(w jobs.Worker) {
	p.workers[w.Kind()] = w
}

// Start launches the queue goroutines.
func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	for queue, n := range p.queues {
		for i := 0; i < n; i++ {
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				p.poll(ctx, queue)
			}()
		}
		p.logger.Info("worker queue started", "queue", queue, "concurrency", n)
	}
}

// Stop cancels claiming and waits for running jobs to finish. A running job
// sees its context cancelled and is retried later.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) poll(ctx context.Context, queue string) {
	for {
		if ctx.Err() != nil {
			return
		}
		ran, err := p.RunNext(ctx, queue)
		if err != nil {
			p.logger.Error("claim job failed", "queue", queue, "err", err)
		}
		if ran {
			continue
		}
		t := time.NewTimer(p.pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// RunNext claims and runs one due job from queue. It reports whether a job
// was run.
func (p *Pool) RunNext(ctx context.Context, queue string) (bool, error) {
	return p.runNext(ctx, queue, p.now())
}

func (p *Pool) runNext(ctx context.Context, queue string, due time.Time) (bool, error) {
	now := p.now()
	job, err := p.store.ClaimJob(ctx, queue, now, due, now.Add(p.lease()))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if job.Attempt > job.MaxAttempts {
		return true, p.discardAbandoned(ctx, job)
	}
	p.execute(ctx, job)
	return true, nil
}

// lease is how long a claimed job stays leased to this pool. A job still
// running after its lease was abandoned by a dead worker.
func (p *Pool) lease() time.Duration {
	if p.jobTimeout <= 0 {
		return unboundedLease
	}
	return p.jobTimeout + finishTimeout + leaseGrace
}

// discardAbandoned retires a reclaimed job whose last attempt died without
// recording a result.
func (p *Pool) discardAbandoned(ctx context.Context, job *model.Job) error {
	p.logger.Warn("abandoned job out of attempts, discarding",
		"job_id", job.ID, "kind", job.Kind, "attempts", job.MaxAttempts)
	metrics.JobsProcessed.WithLabelValues(job.Kind, "discarded").Inc()
	msg := fmt.Sprintf("abandoned while running after %d attempts", job.MaxAttempts)
	if job.LastError != "" {
		msg += ": " + job.LastError
	}
	return p.store.DiscardJob(ctx, job.ID, p.now(), msg)
}

// Drain runs every job in queues, including ones scheduled in the future,
// until all of them are empty. Queues are visited in the given order and
// earlier queues are drained again after each job, so follow-up work runs
// in priority order.
func (p *Pool) Drain(ctx context.Context, queues ...string) (int, error) {
	ran := 0
	far := p.now().Add(100 * 365 * 24 * time.Hour)
	for {
		progressed := false
		for _, q := range queues {
			if err := ctx.Err(); err != nil {
				return ran, err
			}
			ok, err := p.runNext(ctx, q, far)
			if err != nil {
				return ran, err
			}
			if ok {
				ran++
				progressed = true
				break
			}
		}
		if !progressed {
			return ran, nil
		}
	}
}

func (p *Pool) execute(ctx context.Context, job *model.Job) {
	logger := p.logger.With("job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt)
	start := time.Now()

	err := p.work(ctx, job, logger)
	metrics.JobDuration.WithLabelValues(job.Kind).Observe(time.Since(start).Seconds())

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	result, ferr := p.finish(fctx, job, err)
	if ferr != nil {
		logger.Error("record job state failed", "result", result, "err", ferr)
	}
	metrics.JobsProcessed.WithLabelValues(job.Kind, result).Inc()

	switch result {
	case "completed":
		logger.Debug("job completed", "duration", time.Since(start))
	case "retried":
		logger.Warn("job failed, will retry", "err", err)
	default:
		if jobs.IsFatal(err) {
			logger.Error("job hit a configuration error and was discarded", "err", err)
		} else {
			logger.Warn("job discarded", "err", err)
		}
	}
}

// work runs the job under its deadline and turns a panic into an error.
func (p *Pool) work(ctx context.Context, job *model.Job, logger *slog.Logger) (err error) {
	w, ok := p.workers[job.Kind]
	if !ok {
		return jobs.Permanent(fmt.Errorf("no worker registered for kind %q", job.Kind))
	}

	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.Work(ctx, job)
}

func (p *Pool) finish(ctx context.Context, job *model.Job, err error) (string, error) {
	now := p.now()
	switch {
	case err == nil:
		return "completed", p.store.CompleteJob(ctx, job.ID, now)
	case jobs.IsPermanent(err), jobs.IsFatal(err), job.Attempt >= job.MaxAttempts:
		return "discarded", p.store.DiscardJob(ctx, job.ID, now, err.Error())
	default:
		return "retried", p.store.RetryJob(ctx, job.ID, now.Add(Backoff(job.Attempt)), err.Error())
	}
}
