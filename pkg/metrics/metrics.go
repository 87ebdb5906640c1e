// Package metrics exposes Prometheus counters for scrape runs.
//
// A nil *Metrics is valid and records nothing, so components take one
// optionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"igharvest/pkg/models"
)

const namespace = "igharvest"

// Attempt outcomes
const (
	AttemptProduced = "produced"
	AttemptEmpty    = "empty"
)

// Per-candidate outcomes
const (
	PostSaved   = "saved"
	PostUpdated = "updated"
	PostSkipped = "skipped"
	PostFailed  = "failed"
)

// Media outcomes
const (
	MediaStored = "stored"
	MediaCached = "cached"
	MediaFailed = "failed"
)

// Metrics holds the collectors of one registry
type Metrics struct {
	registry *prometheus.Registry

	attempts   *prometheus.CounterVec
	runs       *prometheus.CounterVec
	discovered *prometheus.CounterVec
	posts      *prometheus.CounterVec
	media      *prometheus.CounterVec
	duration   prometheus.Histogram
}

// New registers the collectors on a fresh registry. With process set the
// registry also carries the Go runtime and process collectors.
func New(process bool) *Metrics {
	reg := prometheus.NewRegistry()
	if process {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: reg,
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Scrape attempts by outcome (produced, empty or the error type).",
		}, []string{"outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finalized runs by execution status.",
		}, []string{"status"}),
		discovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_discovered_total",
			Help:      "Candidate URLs added by each discovery strategy.",
		}, []string{"strategy"}),
		posts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_total",
			Help:      "Candidates handled by result.",
		}, []string{"result"}),
		media: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_total",
			Help:      "Media downloads by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of finalized runs.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
		}),
	}
	reg.MustRegister(m.attempts, m.runs, m.discovered, m.posts, m.media, m.duration)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Attempt counts one finished attempt
func (m *Metrics) Attempt(outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

// Discovered counts candidates added by a strategy. Its signature matches
// extract.Observer.
func (m *Metrics) Discovered(strategy string, added int) {
	if m == nil || added <= 0 {
		return
	}
	m.discovered.WithLabelValues(strategy).Add(float64(added))
}

// Post counts one handled candidate
func (m *Metrics) Post(result string) {
	if m == nil {
		return
	}
	m.posts.WithLabelValues(result).Inc()
}

// Media counts one media result
func (m *Metrics) Media(result string) {
	if m == nil {
		return
	}
	m.media.WithLabelValues(result).Inc()
}

// Run records a finalized execution
func (m *Metrics) Run(rec models.ExecutionRecord) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(rec.Status)).Inc()
	m.duration.Observe((time.Duration(rec.ExecutionTimeMs) * time.Millisecond).Seconds())
}
