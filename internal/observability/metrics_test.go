package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountersAndHandler(t *testing.T) {
	m := NewMetrics()

	m.RecordsIngested.WithLabelValues("events").Add(3)
	m.PrefixesScanned.WithLabelValues("hour").Inc()
	m.Queries.WithLabelValues("events", "ok").Inc()

	if got := testutil.ToFloat64(m.RecordsIngested.WithLabelValues("events")); got != 3 {
		t.Errorf("records ingested = %v, want 3", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`beaverlog_records_ingested_total{kind="events"} 3`,
		`beaverlog_prefixes_scanned_total{granularity="hour"} 1`,
		`beaverlog_queries_total{kind="events",outcome="ok"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a := NewMetrics()
	b := NewMetrics()
	a.RecordsScanned.Inc()
	if testutil.ToFloat64(b.RecordsScanned) != 0 {
		t.Error("metrics instances share state")
	}
}
