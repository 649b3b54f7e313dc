package autoalloc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var submissionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "autoalloc_submissions_total",
		Help: "Number of allocation submissions, split by backend and result (success, failure).",
	},
	[]string{"backend", "result"},
)

var allocationTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "autoalloc_allocation_transitions_total",
		Help: "Number of allocation status transitions, split by the status reached.",
	},
	[]string{"state"},
)

var backendQueryFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "autoalloc_backend_query_failures_total",
		Help: "Number of status queries that returned no information.",
	},
	[]string{"backend"},
)

var deletionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "autoalloc_deletions_total",
		Help: "Number of job deletion requests, split by backend and result (success, failure).",
	},
	[]string{"backend", "result"},
)

var queuesGauge = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "autoalloc_queues",
		Help: "Number of allocation queues currently registered.",
	},
)

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
