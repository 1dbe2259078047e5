// Package metrics exposes the ledger's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coop_ledger",
			Subsystem: "approval",
			Name:      "decisions_total",
			Help:      "Decisions taken on ledger entries and loans.",
		},
		[]string{"subject", "type", "outcome"},
	)

	sweepItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coop_ledger",
			Subsystem: "sweep",
			Name:      "items_total",
			Help:      "Candidates handled by batch sweeps.",
		},
		[]string{"sweep", "outcome"},
	)

	sweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coop_ledger",
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Batch sweep runs by result.",
		},
		[]string{"sweep", "result"},
	)

	sweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coop_ledger",
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Duration of batch sweep runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"sweep"},
	)

	distributed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coop_ledger",
			Subsystem: "distribution",
			Name:      "paid_cents_total",
			Help:      "Profit paid out to eligible holders, in cents.",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		decisions,
		sweepItems,
		sweepRuns,
		sweepDuration,
		distributed,
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordDecision(subject, typ, outcome string) {
	decisions.WithLabelValues(subject, typ, outcome).Inc()
}

func RecordSweepItem(sweep, outcome string) {
	sweepItems.WithLabelValues(sweep, outcome).Inc()
}

func RecordSweepRun(sweep, result string, d time.Duration) {
	sweepRuns.WithLabelValues(sweep, result).Inc()
	sweepDuration.WithLabelValues(sweep).Observe(d.Seconds())
}

func RecordDistributed(cents int64) {
	if cents > 0 {
		distributed.Add(float64(cents))
	}
}
