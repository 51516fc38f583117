package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func expectValue(t *testing.T, c prometheus.Collector, want float64) {
	t.Helper()
	if got := testutil.ToFloat64(c); got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSetStateIsExclusive(t *testing.T) {
	m := New()
	states := []string{"ground", "building", "running"}

	m.SetState("building", states...)
	expectValue(t, m.CycleState.WithLabelValues("building"), 1)
	expectValue(t, m.CycleState.WithLabelValues("running"), 0)

	m.SetState("running", states...)
	expectValue(t, m.CycleState.WithLabelValues("building"), 0)
	expectValue(t, m.CycleState.WithLabelValues("running"), 1)
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.Rebuilds.Inc()
	m.ProxyRequests.WithLabelValues(OutcomeUnavailable).Inc()
	m.WatchedPaths.Set(42)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		"sunfish_rebuilds_total 1",
		`sunfish_proxy_requests_total{outcome="unavailable"} 1`,
		"sunfish_watched_paths 42",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected %q in scrape output", want)
		}
	}
}

func TestIndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.Rebuilds.Inc()
	expectValue(t, a.Rebuilds, 1)
	expectValue(t, b.Rebuilds, 0)
}
