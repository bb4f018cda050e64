package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "council_runs_total",
		Help: "Completed council runs by terminal status and error kind.",
	}, []string{"status", "error_kind"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "council_run_duration_seconds",
		Help:    "Wall-clock duration of council runs.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 11),
	}, []string{"status"})

	activeRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "council_active_runs",
		Help: "Council runs currently executing.",
	})
)

func observeRun(status, errorKind string, elapsed time.Duration) {
	runsTotal.WithLabelValues(status, errorKind).Inc()
	runDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}
