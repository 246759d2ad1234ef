package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/venuesync/internal/jobs"
	"github.com/alfredjeanlab/venuesync/internal/model"
	"github.com/alfredjeanlab/venuesync/internal/store/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// funcWorker runs fn for every job of its kind.
type funcWorker struct {
	kind  string
	calls atomic.Int64
	fn    func(ctx context.Context, job *model.Job) error
}

func (w *funcWorker) Kind() string { return w.kind }

func (w *funcWorker) Work(ctx context.Context, job *model.Job) error {
	w.calls.Add(1)
	return w.fn(ctx, job)
}

func newTestPool(t *testing.T, fn func(ctx context.Context, job *model.Job) error, opts ...Option) (*Pool, *memory.Store, *funcWorker, *model.Job) {
	t.Helper()
	s := memory.New()
	w := &funcWorker{kind: jobs.KindCityCoordinates, fn: fn}
	p := New(s, append([]Option{WithLogger(quietLogger())}, opts...)...)
	p.Register(w)
	job, err := jobs.Insert(context.Background(), s, jobs.CityCoordinatesArgs{}, jobs.InsertOpts{ScheduledAt: p.now()})
	if err != nil {
		t.Fatal(err)
	}
	return p, s, w, job
}

// crash claims job the way a worker would and never finishes it.
func crash(t *testing.T, p *Pool, s *memory.Store, at time.Time) *model.Job {
	t.Helper()
	j, err := s.ClaimJob(context.Background(), jobs.QueueMaintenance, at, at, at.Add(p.lease()))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	return j
}

func jobState(t *testing.T, s *memory.Store, id string) *model.Job {
	t.Helper()
	for _, j := range s.Jobs() {
		if j.ID == id {
			return j
		}
	}
	t.Fatalf("job %s missing", id)
	return nil
}

func TestBackoff(t *testing.T) {
	for _, tc := range []struct {
		attempt int
		want    time.Duration
	}{
		{0, 10 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{5, 160 * time.Second},
		{20, BackoffMax},
	} {
		if got := Backoff(tc.attempt); got != tc.want {
			t.Errorf("Backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestRunNext_Completes(t *testing.T) {
	p, s, w, job := newTestPool(t, func(context.Context, *model.Job) error { return nil })

	ran, err := p.RunNext(context.Background(), jobs.QueueMaintenance)
	if err != nil || !ran {
		t.Fatalf("RunNext = %v, %v", ran, err)
	}
	if w.calls.Load() != 1 {
		t.Errorf("calls = %d", w.calls.Load())
	}
	if got := jobState(t, s, job.ID); got.State != model.JobCompleted || got.FinishedAt == nil {
		t.Errorf("job = %+v", got)
	}

	ran, err = p.RunNext(context.Background(), jobs.QueueMaintenance)
	if err != nil || ran {
		t.Fatalf("empty queue RunNext = %v, %v", ran, err)
	}
}

func TestRunNext_TransientRetriesWithBackoff(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	p, s, _, job := newTestPool(t, func(context.Context, *model.Job) error {
		return errors.New("connection reset")
	}, WithClock(func() time.Time { return now }))

	if _, err := p.RunNext(context.Background(), jobs.QueueMaintenance); err != nil {
		t.Fatal(err)
	}
	got := jobState(t, s, job.ID)
	if got.State != model.JobRetryable || got.LastError != "connection reset" {
		t.Fatalf("job = %+v", got)
	}
	if !got.ScheduledAt.Equal(now.Add(Backoff(1))) {
		t.Errorf("retry at %v, want %v", got.ScheduledAt, now.Add(Backoff(1)))
	}

	// Not due yet.
	if ran, _ := p.RunNext(context.Background(), jobs.QueueMaintenance); ran {
		t.Error("retry ran before its backoff elapsed")
	}
}

func TestRunNext_DiscardsPermanentAndFatal(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
	}{
		{"Permanent", jobs.Permanent(errors.New("bad schedule"))},
		{"Fatal", jobs.Fatal(errors.New("missing key"))},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p, s, _, job := newTestPool(t, func(context.Context, *model.Job) error { return tc.err })
			if _, err := p.RunNext(context.Background(), jobs.QueueMaintenance); err != nil {
				t.Fatal(err)
			}
			got := jobState(t, s, job.ID)
			if got.State != model.JobDiscarded || got.Attempt != 1 {
				t.Errorf("job = %+v", got)
			}
		})
	}
}

func TestRunNext_DiscardsAfterMaxAttempts(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	p, s, w, job := newTestPool(t, func(context.Context, *model.Job) error {
		return errors.New("timeout")
	}, WithClock(clock))

	for i := 0; i < job.MaxAttempts; i++ {
		now = now.Add(BackoffMax)
		if ran, err := p.RunNext(context.Background(), jobs.QueueMaintenance); err != nil || !ran {
			t.Fatalf("attempt %d: ran=%v err=%v", i+1, ran, err)
		}
	}
	got := jobState(t, s, job.ID)
	if got.State != model.JobDiscarded || got.Attempt != job.MaxAttempts {
		t.Errorf("job = %+v", got)
	}
	if int(w.calls.Load()) != job.MaxAttempts {
		t.Errorf("calls = %d, want %d", w.calls.Load(), job.MaxAttempts)
	}
}

func TestRunNext_ReclaimsAbandonedJob(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	p, s, w, job := newTestPool(t, func(context.Context, *model.Job) error { return nil },
		WithClock(func() time.Time { return now }))
	crash(t, p, s, now)

	now = now.Add(time.Minute)
	if ran, err := p.RunNext(context.Background(), jobs.QueueMaintenance); err != nil || ran {
		t.Fatalf("inside lease: ran=%v err=%v", ran, err)
	}

	now = now.Add(48 * time.Hour)
	if ran, err := p.RunNext(context.Background(), jobs.QueueMaintenance); err != nil || !ran {
		t.Fatalf("after lease: ran=%v err=%v", ran, err)
	}
	if w.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", w.calls.Load())
	}
	if got := jobState(t, s, job.ID); got.State != model.JobCompleted || got.Attempt != 2 {
		t.Errorf("job = %+v", got)
	}
}

func TestRunNext_DiscardsAbandonedJobOutOfAttempts(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	p, s, w, job := newTestPool(t, func(context.Context, *model.Job) error { return nil },
		WithClock(func() time.Time { return now }))
	for i := 0; i < job.MaxAttempts; i++ {
		crash(t, p, s, now)
		now = now.Add(p.lease() + time.Second)
	}

	if ran, err := p.RunNext(context.Background(), jobs.QueueMaintenance); err != nil || !ran {
		t.Fatalf("RunNext = %v, %v", ran, err)
	}
	if w.calls.Load() != 0 {
		t.Errorf("calls = %d, want the exhausted job not run", w.calls.Load())
	}
	got := jobState(t, s, job.ID)
	if got.State != model.JobDiscarded || !strings.Contains(got.LastError, "abandoned") {
		t.Errorf("job = %+v", got)
	}
}

func TestPool_LeaseOutlivesDeadline(t *testing.T) {
	for _, tc := range []struct {
		timeout time.Duration
		want    time.Duration
	}{
		{time.Minute, time.Minute + finishTimeout + leaseGrace},
		{0, unboundedLease},
	} {
		p := New(memory.New(), WithJobTimeout(tc.timeout))
		if got := p.lease(); got != tc.want {
			t.Errorf("lease(timeout=%v) = %v, want %v", tc.timeout, got, tc.want)
		}
	}
}

func TestRunNext_RecoversPanic(t *testing.T) {
	p, s, _, job := newTestPool(t, func(context.Context, *model.Job) error { panic("boom") })

	if _, err := p.RunNext(context.Background(), jobs.QueueMaintenance); err != nil {
		t.Fatal(err)
	}
	if got := jobState(t, s, job.ID); got.State != model.JobRetryable || got.LastError != "panic: boom" {
		t.Errorf("job = %+v", got)
	}
}

func TestRunNext_EnforcesDeadline(t *testing.T) {
	p, s, _, job := newTestPool(t, func(ctx context.Context, _ *model.Job) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithJobTimeout(20*time.Millisecond))

	start := time.Now()
	if _, err := p.RunNext(context.Background(), jobs.QueueMaintenance); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > time.Second {
		t.Error("job ran past its deadline")
	}
	if got := jobState(t, s, job.ID); got.State != model.JobRetryable {
		t.Errorf("job = %+v, want retryable after deadline", got)
	}
}

func TestRunNext_UnknownKindDiscarded(t *testing.T) {
	s := memory.New()
	p := New(s, WithLogger(quietLogger()))
	job, err := jobs.Insert(context.Background(), s, jobs.CityCoordinatesArgs{}, jobs.InsertOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.RunNext(context.Background(), jobs.QueueMaintenance); err != nil {
		t.Fatal(err)
	}
	if got := jobState(t, s, job.ID); got.State != model.JobDiscarded {
		t.Errorf("job = %+v", got)
	}
}

func TestStartStop(t *testing.T) {
	p, s, w, job := newTestPool(t, func(context.Context, *model.Job) error { return nil },
		WithQueue(jobs.QueueMaintenance, 2), WithPollInterval(5*time.Millisecond))

	p.Start()
	deadline := time.Now().Add(2 * time.Second)
	for w.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	p.Stop()

	if got := jobState(t, s, job.ID); got.State != model.JobCompleted {
		t.Errorf("job = %+v", got)
	}
}

func TestStop_NoStart(t *testing.T) {
	New(memory.New()).Stop()
}

func TestDrain_RunsScheduledJobs(t *testing.T) {
	p, s, w, _ := newTestPool(t, func(context.Context, *model.Job) error { return nil })
	ctx := context.Background()
	// Delayed a day; Drain ignores the schedule.
	if _, err := jobs.Insert(ctx, s, jobs.CityCoordinatesArgs{}, jobs.InsertOpts{ScheduledAt: time.Now().Add(24 * time.Hour)}); err != nil {
		t.Fatal(err)
	}

	n, err := p.Drain(ctx, jobs.QueueMaintenance)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || w.calls.Load() != 2 {
		t.Errorf("drained %d, calls %d", n, w.calls.Load())
	}
}
