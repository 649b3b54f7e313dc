package internal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var commandDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "autoalloc_backend_command_duration_seconds",
		Help:    "Duration of external scheduler commands.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	},
	[]string{"backend", "operation"},
)
