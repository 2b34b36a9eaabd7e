// Package metrics exposes Prometheus collectors for the rank tracker.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal                  *prometheus.CounterVec
	providerTasksTotal         *prometheus.CounterVec
	pollRoundsTotal            prometheus.Counter
	serpKeywordsTotal          *prometheus.CounterVec
	activeJobs                 prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranktracker_jobs_total",
				Help: "Total number of jobs finished, labeled by terminal status.",
			},
			[]string{"status"},
		)

		providerTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranktracker_provider_tasks_total",
				Help: "Total provider tasks resolved, labeled by family and outcome.",
			},
			[]string{"family", "outcome"},
		)

		pollRoundsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ranktracker_poll_rounds_total",
				Help: "Total polling rounds executed across all jobs.",
			},
		)

		serpKeywordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranktracker_serp_keywords_total",
				Help: "Total keywords processed in SERP stages, labeled by locale and outcome.",
			},
			[]string{"locale", "outcome"},
		)

		activeJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ranktracker_active_jobs",
				Help: "Number of jobs currently RUNNING.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the terminal-status job counter.
func ObserveJob(status string) {
	jobsTotal.WithLabelValues(status).Inc()
}

// ObserveProviderTask increments the provider task counter.
func ObserveProviderTask(family, outcome string) {
	providerTasksTotal.WithLabelValues(family, outcome).Inc()
}

// ObservePollRound counts one polling round.
func ObservePollRound() {
	pollRoundsTotal.Inc()
}

// ObserveSerpKeyword counts one keyword resolved in a SERP stage.
func ObserveSerpKeyword(locale, outcome string) {
	serpKeywordsTotal.WithLabelValues(locale, outcome).Inc()
}

// IncActiveJobs increments the running jobs gauge.
func IncActiveJobs() {
	activeJobs.Inc()
}

// DecActiveJobs decrements the running jobs gauge.
func DecActiveJobs() {
	activeJobs.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
