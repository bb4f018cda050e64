package pacer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/councilkit/council/pkg/models"
)

var waitSeconds = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "council",
		Subsystem: "pacer",
		Name:      "wait_seconds",
		Help:      "Time spent waiting for pacer admission, per provider.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	},
	[]string{"provider"},
)

func observeWait(provider models.ProviderID, d time.Duration) {
	waitSeconds.WithLabelValues(string(provider)).Observe(d.Seconds())
}
