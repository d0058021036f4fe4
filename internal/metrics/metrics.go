// Package metrics exposes Prometheus collectors for polling, notices and
// manual updates.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jpalmerr/statboard/internal/notice"
)

const namespace = "statboard"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Polls counts finished fetches by slot and outcome.
	Polls *prometheus.CounterVec

	// PollDuration observes fetch latency by slot.
	PollDuration *prometheus.HistogramVec

	// Cycles counts poll cycles started.
	Cycles prometheus.Counter

	// NoticesActive is the number of notices currently displayed.
	NoticesActive prometheus.Gauge

	// ManualUpdates counts manual update requests by outcome.
	ManualUpdates *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg gets a private registry
// that nothing scrapes.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		Polls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Finished source fetches by slot and outcome.",
		}, []string{"slot", "outcome"}),

		PollDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Source fetch latency.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"slot"}),

		Cycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Poll cycles started.",
		}),

		NoticesActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notices_active",
			Help:      "Error notices currently displayed.",
		}),

		ManualUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manual_updates_total",
			Help:      "Manual update requests by outcome.",
		}, []string{"outcome"}),
	}
}

// ObservePoll records one finished fetch.
func (m *Metrics) ObservePoll(slot, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.Polls.WithLabelValues(slot, outcome).Inc()
	m.PollDuration.WithLabelValues(slot).Observe(latency.Seconds())
}

// ObserveCycle records the start of a poll cycle.
func (m *Metrics) ObserveCycle() {
	if m == nil {
		return
	}
	m.Cycles.Inc()
}

// ObserveManualUpdate records one manual update attempt.
func (m *Metrics) ObserveManualUpdate(outcome string) {
	if m == nil {
		return
	}
	m.ManualUpdates.WithLabelValues(outcome).Inc()
}

// NoticeAdded implements notice.Listener.
func (m *Metrics) NoticeAdded(notice.Notice) {
	if m == nil {
		return
	}
	m.NoticesActive.Inc()
}

// NoticeRemoved implements notice.Listener.
func (m *Metrics) NoticeRemoved(string) {
	if m == nil {
		return
	}
	m.NoticesActive.Dec()
}
