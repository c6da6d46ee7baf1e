package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Client-side call lifecycle metrics
var (
	CallStageTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_stage_transitions_total",
		Help: "Total number of call stage transitions",
	}, []string{"from", "to"})

	CallInitiateRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_initiate_rejected_total",
		Help: "Total number of call initiations absorbed by the initiation guard",
	}, []string{"reason"}) // "debounced", "in_progress"

	CallSetupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "call_setup_duration_seconds",
		Help:    "Time from initiation until the call reaches ringing",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	CallTeardownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "call_teardowns_total",
		Help: "Total number of executed teardown sequences",
	})

	MediaJoinTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_join_total",
		Help: "Total number of media room joins",
	}, []string{"status"})
)

// DeviceChecksTotal counts pre-call device probes by outcome
var DeviceChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "device_checks_total",
	Help: "Total number of pre-call device checks",
}, []string{"device", "status"})
