// Package metrics holds the prometheus instruments for the booking pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	PortalRequests  *prometheus.CounterVec
	Attempts        *prometheus.CounterVec
	AttemptDuration prometheus.Histogram
	Outstanding     prometheus.Gauge
	SweepSkips      prometheus.Counter
}

// New registers the instruments on reg. Pass prometheus.DefaultRegisterer in
// the server; tests hand in a private registry.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PortalRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "portal_requests_total",
			Help:      "Requests issued to the portal, by operation.",
		}, []string{"op"}),
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_attempts_total",
			Help:      "Booking attempts, by outcome.",
		}, []string{"outcome"}),
		AttemptDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "booking_attempt_duration_seconds",
			Help:      "Wall time of a full booking attempt.",
			Buckets:   prometheus.DefBuckets,
		}),
		Outstanding: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recurring_outstanding_occurrences",
			Help:      "Non-terminal or booked future recurring occurrences.",
		}),
		SweepSkips: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_overlap_skips_total",
			Help:      "Catch-up sweeps skipped because one was already running.",
		}),
	}
}
