// Package metrics registers the prometheus instruments for the rating pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "linegrade"

var (
	// JobsEnqueued counts jobs created by the dispatcher.
	JobsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_enqueued_total",
		Help:      "Total number of batch jobs enqueued.",
	})

	// JobTransitions counts job state transitions by resulting status.
	JobTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_transitions_total",
		Help:      "Job state transitions by target status.",
	}, []string{"status"})

	// JobsReclaimed counts leases that expired and were reclaimed.
	JobsReclaimed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_reclaimed_total",
		Help:      "Jobs whose lease expired, by outcome (requeued, failed).",
	}, []string{"outcome"})

	// LinesRated counts rated lines by source (cache, service, error).
	LinesRated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lines_rated_total",
		Help:      "Rated lines by source.",
	}, []string{"source"})

	// CacheErrors counts swallowed phrase cache failures.
	CacheErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_errors_total",
		Help:      "Phrase cache errors treated as misses, by operation.",
	}, []string{"op"})

	// RatingLatency observes rating service call durations.
	RatingLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rating_request_seconds",
		Help:      "Latency of rating service calls.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	// SessionsCompleted counts sessions that reached grading_status=completed.
	SessionsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_completed_total",
		Help:      "Sessions whose grading reached completion.",
	})
)

// Collectors returns every instrument in this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		JobsEnqueued,
		JobTransitions,
		JobsReclaimed,
		LinesRated,
		CacheErrors,
		RatingLatency,
		SessionsCompleted,
	}
}

// Register adds all instruments to reg. Already-registered collectors are
// tolerated so commands can share the default registry.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}
