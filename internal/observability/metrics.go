package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buckets for seconds resolutions of histograms
var buckets = []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5}

// Metrics holds the Prometheus collectors for ingestion and queries.
// Create one per registry with NewMetrics.
type Metrics struct {
	RecordsIngested *prometheus.CounterVec
	IngestDuration  prometheus.Histogram

	Queries          *prometheus.CounterVec
	QueryDuration    prometheus.Histogram
	PrefixesScanned  *prometheus.CounterVec
	RecordsScanned   prometheus.Counter
	RecordsReturned  prometheus.Counter
	ScanRetries      prometheus.Counter
	RateLimitedTotal prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates the collectors and registers them on a fresh registry,
// together with the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		RecordsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beaverlog",
			Name:      "records_ingested_total",
			Help:      "Records written to the store, by kind.",
		}, []string{"kind"}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "beaverlog",
			Name:      "ingest_duration_seconds",
			Help:      "Time taken to write one ingest batch.",
			Buckets:   buckets,
		}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beaverlog",
			Name:      "queries_total",
			Help:      "Range queries executed, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "beaverlog",
			Name:      "query_duration_seconds",
			Help:      "Time taken to answer a range query.",
			Buckets:   buckets,
		}),
		PrefixesScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beaverlog",
			Name:      "prefixes_scanned_total",
			Help:      "Prefix scans issued, by granularity.",
		}, []string{"granularity"}),
		RecordsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "beaverlog",
			Name:      "records_scanned_total",
			Help:      "Records read from prefix scans before the exact time filter.",
		}),
		RecordsReturned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "beaverlog",
			Name:      "records_returned_total",
			Help:      "Records returned to callers after the exact time filter.",
		}),
		ScanRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "beaverlog",
			Name:      "scan_retries_total",
			Help:      "Prefix scans re-issued after a retryable storage error.",
		}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "beaverlog",
			Name:      "http_rate_limited_total",
			Help:      "HTTP requests rejected by the rate limiter.",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.RecordsIngested,
		m.IngestDuration,
		m.Queries,
		m.QueryDuration,
		m.PrefixesScanned,
		m.RecordsScanned,
		m.RecordsReturned,
		m.ScanRetries,
		m.RateLimitedTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
