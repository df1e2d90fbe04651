// Package metrics exposes the process's Prometheus metrics: reconciliation
// cycle timing, per-cloud scale actions, and driver error counts.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "heatspreader_reconciliation_duration_seconds",
			Help:    "Time taken to reconcile one multicloud stack in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "heatspreader_reconciliation_cycles_total",
			Help: "Total number of scheduler tick cycles completed",
		},
	)

	StacksReconciledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "heatspreader_stacks_reconciled_total",
			Help: "Total number of stacks reconciled across all cycles",
		},
	)

	ScaleActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heatspreader_scale_actions_total",
			Help: "Total number of stack scale actions by cloud and direction",
		},
		[]string{"cloud_name", "direction"},
	)

	DriverErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heatspreader_driver_errors_total",
			Help: "Total number of cloud driver errors by cloud and kind",
		},
		[]string{"cloud_name", "kind"},
	)

	CloudHealthGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "heatspreader_cloud_healthy",
			Help: "Whether a cloud connection is currently healthy (1) or not (0)",
		},
		[]string{"cloud_name"},
	)
)

func init() {
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(StacksReconciledTotal)
	prometheus.MustRegister(ScaleActionsTotal)
	prometheus.MustRegister(DriverErrorsTotal)
	prometheus.MustRegister(CloudHealthGauge)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times a single operation for later reporting against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}
