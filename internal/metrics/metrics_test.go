package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.PostFetched("reddit")
	m.CaseAdmitted()
	m.DuplicateRejected()
	m.Failure("extract", "timeout")
	m.RoundFinished(3)
	m.RunStarted()
	m.RunFinished("completed", 1)
	m.ExtractionObserved(0.5)
	m.Moderated("approve", 2)
	m.HTTPRequest(http.MethodGet, "/health", http.StatusOK)
	if m.Registry() != nil {
		t.Fatal("nil metrics should have no registry")
	}
}

func TestCountersAndExposition(t *testing.T) {
	t.Parallel()

	m := New()
	m.PostFetched("reddit")
	m.PostFetched("reddit")
	m.Failure("fetch", "rate_limited")
	m.Moderated("approve", 3)
	m.RoundFinished(6)

	if got := testutil.ToFloat64(m.postsFetched.WithLabelValues("reddit")); got != 2 {
		t.Fatalf("expected 2 fetched, got %v", got)
	}
	if got := testutil.ToFloat64(m.moderated.WithLabelValues("approve")); got != 3 {
		t.Fatalf("expected 3 moderated, got %v", got)
	}
	if got := testutil.ToFloat64(m.storedCases); got != 6 {
		t.Fatalf("expected stored gauge 6, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`hustle_collector_posts_fetched_total{source="reddit"} 2`,
		`hustle_collector_failures_total{kind="rate_limited",stage="fetch"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("exposition missing %q", want)
		}
	}
}
