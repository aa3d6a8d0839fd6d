package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	RequestDuration    *prometheus.HistogramVec
	QuizzesCreated     prometheus.Counter
	MutationConflicts  prometheus.Counter
	TransitionsApplied *prometheus.CounterVec
	ProfileCacheHits   prometheus.Counter
	ProfileCacheMisses prometheus.Counter
	ProfileFailures    prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quizdeck_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		QuizzesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quizdeck_quizzes_created_total",
			Help: "Total number of quizzes created.",
		}),
		MutationConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quizdeck_mutation_conflicts_total",
			Help: "Guarded update/delete attempts that matched zero rows.",
		}),
		TransitionsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quizdeck_status_transitions_total",
			Help: "Rows flipped by the lifecycle transition job, by target status.",
		}, []string{"to"}),
		ProfileCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quizdeck_profile_cache_hits_total",
			Help: "Profile display-data lookups served from cache.",
		}),
		ProfileCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quizdeck_profile_cache_misses_total",
			Help: "Profile display-data lookups that went to the directory.",
		}),
		ProfileFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quizdeck_profile_failures_total",
			Help: "Profile directory calls that failed and degraded to empty display data.",
		}),
	}
}

// ObserveRequest records one HTTP request observation.
func (m *Metrics) ObserveRequest(route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route, status).Observe(seconds)
}

// RecordTransitions adds the per-target counts from one transition run.
func (m *Metrics) RecordTransitions(activated, completed int64) {
	if m == nil {
		return
	}
	m.TransitionsApplied.WithLabelValues("active").Add(float64(activated))
	m.TransitionsApplied.WithLabelValues("completed").Add(float64(completed))
}
