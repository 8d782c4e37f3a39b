// Package metrics exposes prometheus instrumentation for payment sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the session-level collectors.
type Recorder struct {
	sessionsTotal *prometheus.CounterVec
	roundDuration *prometheus.HistogramVec
}

// New creates a Recorder and registers its collectors. A nil registerer
// falls back to the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "sessions_total",
			Help:      "Resolved payment sessions by caller-visible outcome.",
		}, []string{"outcome"}),
		roundDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "checkout",
			Name:      "round_duration_seconds",
			Help:      "Duration of backend network rounds by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	reg.MustRegister(r.sessionsTotal, r.roundDuration)
	return r
}

// SessionResolved counts a terminal outcome.
func (r *Recorder) SessionResolved(outcome string) {
	r.sessionsTotal.WithLabelValues(outcome).Inc()
}

// RoundCompleted observes one backend round.
func (r *Recorder) RoundCompleted(operation string, d time.Duration) {
	r.roundDuration.WithLabelValues(operation).Observe(d.Seconds())
}
