package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestJobsProcessedCounter(t *testing.T) {
	before := testutil.ToFloat64(JobsProcessed.WithLabelValues("venue_detail", "completed"))
	JobsProcessed.WithLabelValues("venue_detail", "completed").Inc()
	after := testutil.ToFloat64(JobsProcessed.WithLabelValues("venue_detail", "completed"))
	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1", after-before)
	}
}

func TestHandler(t *testing.T) {
	ExternalRequests.WithLabelValues("places_search", "ok").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "venuesync_external_requests_total") {
		t.Errorf("metrics output missing venuesync_external_requests_total")
	}
}
