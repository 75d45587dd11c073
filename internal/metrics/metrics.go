// Package metrics exposes the collection pipeline counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hustle_collector"

// Metrics groups every pipeline collector. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	postsFetched  *prometheus.CounterVec
	casesAdmitted prometheus.Counter
	duplicates    prometheus.Counter
	failures      *prometheus.CounterVec
	runs          *prometheus.CounterVec
	rounds        prometheus.Counter
	runDuration   prometheus.Histogram
	extraction    prometheus.Histogram
	moderated     *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	storedCases   prometheus.Gauge
	activeRun     prometheus.Gauge
}

// New registers the pipeline metrics plus Go runtime collectors on a
// dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		postsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_fetched_total",
			Help:      "Raw posts yielded by source connectors.",
		}, []string{"source"}),
		casesAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cases_admitted_total",
			Help:      "Cases persisted after a negative dedup verdict.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_rejected_total",
			Help:      "Posts or drafts rejected as duplicates.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Pipeline failures by stage and error kind.",
		}, []string{"stage", "kind"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished collection runs by outcome.",
		}, []string{"outcome"}),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Collection rounds executed.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of collection runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		extraction: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Latency of AI extraction calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		moderated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderated_cases_total",
			Help:      "Cases updated by moderation actions.",
		}, []string{"action"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served by route and status.",
		}, []string{"method", "route", "status"}),
		storedCases: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_cases",
			Help:      "Case count observed at the end of the last round.",
		}),
		activeRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_active",
			Help:      "1 while a collection run is in progress.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.postsFetched, m.casesAdmitted, m.duplicates, m.failures, m.runs,
		m.rounds, m.runDuration, m.extraction, m.moderated, m.httpRequests,
		m.storedCases, m.activeRun,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) PostFetched(source string) {
	if m != nil {
		m.postsFetched.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) CaseAdmitted() {
	if m != nil {
		m.casesAdmitted.Inc()
	}
}

func (m *Metrics) DuplicateRejected() {
	if m != nil {
		m.duplicates.Inc()
	}
}

// Failure counts one failure; stage is "fetch", "extract" or "admit".
func (m *Metrics) Failure(stage, kind string) {
	if m != nil {
		m.failures.WithLabelValues(stage, kind).Inc()
	}
}

func (m *Metrics) RoundFinished(storedCases int) {
	if m != nil {
		m.rounds.Inc()
		m.storedCases.Set(float64(storedCases))
	}
}

func (m *Metrics) RunStarted() {
	if m != nil {
		m.activeRun.Set(1)
	}
}

func (m *Metrics) RunFinished(outcome string, seconds float64) {
	if m != nil {
		m.activeRun.Set(0)
		m.runs.WithLabelValues(outcome).Inc()
		m.runDuration.Observe(seconds)
	}
}

func (m *Metrics) ExtractionObserved(seconds float64) {
	if m != nil {
		m.extraction.Observe(seconds)
	}
}

func (m *Metrics) Moderated(action string, n int) {
	if m != nil {
		m.moderated.WithLabelValues(action).Add(float64(n))
	}
}

func (m *Metrics) HTTPRequest(method, route string, status int) {
	if m != nil {
		m.httpRequests.WithLabelValues(method, route, statusText(status)).Inc()
	}
}

func statusText(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
