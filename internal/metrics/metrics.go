package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	Commits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheditor_commits_total",
			Help: "Editor commit attempts by action and outcome",
		},
		[]string{"action", "outcome"},
	)
	ValidationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheditor_validation_failures_total",
			Help: "Submits rejected locally because a required field was unmet",
		},
	)
	Deletes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheditor_deletes_total",
			Help: "Delete pipeline runs by outcome",
		},
		[]string{"outcome"},
	)
	CollaboratorLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheditor_collaborator_latency_seconds",
			Help:    "Latency of remote confirm/delete calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	Sessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheditor_sessions_open",
			Help: "Editor sessions currently held by the API",
		},
	)
	Events = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheditor_events_total",
			Help: "Events in the host collection",
		},
	)
	NotifyErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheditor_notify_errors_total",
			Help: "Lifecycle notifications that exhausted their retries",
		},
		[]string{"event"},
	)
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheditor_api_requests_total",
			Help: "Number of API requests",
		},
		[]string{"method", "route", "status"},
	)
)

var registerOnce sync.Once

// Register adds all collectors to reg once per process.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			Commits,
			ValidationFailures,
			Deletes,
			CollaboratorLatency,
			Sessions,
			Events,
			NotifyErrors,
			APIRequests,
		)
	})
}
