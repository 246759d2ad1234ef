package events_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/alfredjeanlab/venuesync/internal/config"
	"github.com/alfredjeanlab/venuesync/internal/events"
	"github.com/alfredjeanlab/venuesync/internal/jobs"
	"github.com/alfredjeanlab/venuesync/internal/model"
	"github.com/alfredjeanlab/venuesync/internal/store/memory"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// bus connects a publisher and a subscriber to a fresh server and
// subscribes to topics for the lifetime of the test.
func bus(t *testing.T, topics ...string) (*events.NATSPublisher, <-chan events.Message) {
	t.Helper()
	url := startTestNATS(t)

	pub, err := events.NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	t.Cleanup(func() { pub.Close() })

	sub, err := events.NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	t.Cleanup(func() { sub.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ch, err := sub.Subscribe(ctx, topics...)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	return pub, ch
}

func receive(t *testing.T, ch <-chan events.Message) events.Message {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed")
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return events.Message{}
}

func TestRecorder_PublishesJobOutcome(t *testing.T) {
	pub, ch := bus(t, events.TopicJobOutcome)

	s := memory.New()
	ctx := context.Background()
	job, err := jobs.Insert(ctx, s, jobs.EnrichmentArgs{VenueID: 42}, jobs.InsertOpts{})
	if err != nil {
		t.Fatal(err)
	}
	job.Attempt = 2
	venueID := int64(42)

	rec := jobs.NewRecorder(s, pub, quietLogger())
	rec.Success(ctx, job, "quiz-api", &venueID, nil, map[string]any{"photos": "refreshed"})

	m := receive(t, ch)
	ev, err := m.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, ok := ev.(*events.JobOutcome)
	if !ok {
		t.Fatalf("decoded %T, want *events.JobOutcome", ev)
	}
	if got.JobID != job.ID || got.Kind != jobs.KindVenueEnrichment || got.Source != "quiz-api" || got.Attempt != 2 {
		t.Errorf("outcome = %+v", got)
	}
	if got.Outcome.ResultStatus != model.ResultSuccess || got.Outcome.VenueID == nil || *got.Outcome.VenueID != 42 {
		t.Errorf("outcome body = %+v", got.Outcome)
	}
	if got.Outcome.Details["photos"] != "refreshed" || got.Outcome.ProcessedAt.IsZero() {
		t.Errorf("details = %v processed_at = %v", got.Outcome.Details, got.Outcome.ProcessedAt)
	}
}

func TestDiscoveryWorker_PublishesEvents(t *testing.T) {
	pub, ch := bus(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[
			{"name": "Pub A", "address": "1 High St", "schedule": "Wednesday 20:00"},
			{"name": "Pub B", "address": "2 High St", "schedule": "Thursday 19:30"},
			{"name": "Pub A", "address": "1 High St", "schedule": "Wednesday 20:00"}
		]`)
	}))
	defer srv.Close()

	logger := quietLogger()
	cfg := &config.SourcesConfig{Sources: []config.SourceConfig{{
		Name:       "Quiz API",
		Slug:       "quiz-api",
		Kind:       config.KindJSONAPI,
		ListingURL: srv.URL,
		JSON:       &config.JSONFields{Name: "name", Address: "address", Schedule: "schedule"},
	}}}
	s := memory.New()
	ctx := context.Background()
	set := jobs.NewSourceSet(cfg, srv.Client(), logger)
	if err := set.Ensure(ctx, s); err != nil {
		t.Fatal(err)
	}
	w := jobs.DiscoveryWorker{
		Sources:   set,
		Scheduler: jobs.NewRateLimitedScheduler(s, 2*time.Second, time.Hour, logger),
		Recorder:  jobs.NewRecorder(s, pub, logger),
		Publisher: pub,
		Logger:    logger,
	}
	job, err := jobs.Insert(ctx, s, jobs.DiscoveryArgs{Source: "quiz-api", RunID: "run-7"}, jobs.InsertOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Work(ctx, job); err != nil {
		t.Fatalf("Work: %v", err)
	}

	var outcome *events.JobOutcome
	var completed *events.DiscoveryCompleted
	for outcome == nil || completed == nil {
		ev, err := receive(t, ch).Decode()
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		switch ev := ev.(type) {
		case *events.JobOutcome:
			outcome = ev
		case *events.DiscoveryCompleted:
			completed = ev
		default:
			t.Fatalf("unexpected event %T", ev)
		}
	}

	want := events.DiscoveryCompleted{Source: "quiz-api", RunID: "run-7", Discovered: 3, Enqueued: 2, Duplicates: 1}
	if *completed != want {
		t.Errorf("discovery completed = %+v, want %+v", *completed, want)
	}
	if outcome.JobID != job.ID || outcome.Kind != jobs.KindDiscovery || outcome.Outcome.ResultStatus != model.ResultSuccess {
		t.Errorf("outcome = %+v", outcome)
	}
	if got := outcome.Outcome.Details["enqueued"]; got != float64(2) {
		t.Errorf("outcome details enqueued = %v (%T), want 2", got, got)
	}
}

func TestNATSSubscriber_StopsOnCancel(t *testing.T) {
	url := startTestNATS(t)
	sub, err := events.NewNATSSubscriber(url)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := sub.Subscribe(ctx, events.Topics()...)
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("received a message after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestNATSPublisher_Errors(t *testing.T) {
	url := startTestNATS(t)

	pub, err := events.NewNATSPublisher(url)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pub.Publish(ctx, events.TopicJobOutcome, events.JobOutcome{}); err == nil {
		t.Error("published with a cancelled context")
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := pub.Publish(context.Background(), events.TopicJobOutcome, events.JobOutcome{}); err == nil {
		t.Error("published after Close")
	}
}

func TestNewNATSSubscriber_Unreachable(t *testing.T) {
	if _, err := events.NewNATSSubscriber("nats://127.0.0.1:1"); err == nil {
		t.Error("connected to a closed port")
	}
}
