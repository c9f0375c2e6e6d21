// Package metrics provides Prometheus metrics for the Buddy service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Generation outcomes.
const (
	OutcomeGenerated = "generated"
	OutcomeFallback  = "fallback"
	OutcomeOffline   = "offline"
)

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	GenerationsTotal   *prometheus.CounterVec
	ActivitiesTotal    *prometheus.CounterVec
	JournalEntries     *prometheus.CounterVec
	StoriesFinished    prometheus.Counter
	PointsTotal        prometheus.Gauge
	TranslationsLoaded prometheus.Gauge
	ErrorsTotal        *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buddy_http_requests_total",
				Help: "Total number of API requests by route and status.",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "buddy_http_request_duration_seconds",
				Help:    "API request duration by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		GenerationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buddy_generations_total",
				Help: "Text generations by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		ActivitiesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buddy_activities_completed_total",
				Help: "Completed activities by category.",
			},
			[]string{"category"},
		),
		JournalEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buddy_journal_entries_total",
				Help: "Journal entries appended by kind.",
			},
			[]string{"kind"},
		),
		StoriesFinished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "buddy_stories_finished_total",
				Help: "Co-written stories committed to the journal.",
			},
		),
		PointsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "buddy_points_total",
				Help: "Current sum of all point counters.",
			},
		),
		TranslationsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "buddy_translations_loaded",
				Help: "1 when language packs loaded successfully, 0 otherwise.",
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buddy_errors_total",
				Help: "Total errors by module and type.",
			},
			[]string{"module", "type"},
		),
		registry: reg,
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.RequestDuration)
	reg.MustRegister(m.GenerationsTotal)
	reg.MustRegister(m.ActivitiesTotal)
	reg.MustRegister(m.JournalEntries)
	reg.MustRegister(m.StoriesFinished)
	reg.MustRegister(m.PointsTotal)
	reg.MustRegister(m.TranslationsLoaded)
	reg.MustRegister(m.ErrorsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the private registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordRequest increments the request counter.
func (m *Metrics) RecordRequest(route, status string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, status).Inc()
}

// ObserveDuration records request duration.
func (m *Metrics) ObserveDuration(route string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route).Observe(seconds)
}

// RecordGeneration counts one generation attempt by outcome.
func (m *Metrics) RecordGeneration(kind, outcome string) {
	if m == nil {
		return
	}
	m.GenerationsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordActivity counts a completed activity.
func (m *Metrics) RecordActivity(category string) {
	if m == nil {
		return
	}
	m.ActivitiesTotal.WithLabelValues(category).Inc()
}

// RecordJournalEntry counts an appended journal entry.
func (m *Metrics) RecordJournalEntry(kind string) {
	if m == nil {
		return
	}
	m.JournalEntries.WithLabelValues(kind).Inc()
}

// RecordStoryFinished counts a committed story.
func (m *Metrics) RecordStoryFinished() {
	if m == nil {
		return
	}
	m.StoriesFinished.Inc()
}

// SetPoints sets the points gauge.
func (m *Metrics) SetPoints(total int) {
	if m == nil {
		return
	}
	m.PointsTotal.Set(float64(total))
}

// SetTranslationsLoaded records the outcome of the last translation load.
func (m *Metrics) SetTranslationsLoaded(ok bool) {
	if m == nil {
		return
	}
	v := 0.0
	if ok {
		v = 1
	}
	m.TranslationsLoaded.Set(v)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, errType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(module, errType).Inc()
}
