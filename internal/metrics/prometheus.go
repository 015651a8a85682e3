package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Receiver metrics
var (
	MessagesReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lease_worker_messages_received_total",
			Help: "Total number of messages returned by receive calls",
		},
	)

	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lease_worker_polls_total",
			Help: "Total number of poll rounds by result",
		},
		[]string{"result"}, // messages, empty, overloaded, error
	)

	OverloadBackoffsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lease_worker_overload_backoffs_total",
			Help: "Total number of overload backoff sleeps",
		},
	)
)

// Supervisor metrics
var (
	ActiveSupervisors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lease_worker_active_supervisors",
			Help: "Number of messages currently under lease supervision",
		},
	)

	SupervisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lease_worker_supervisions_total",
			Help: "Total number of finished supervisions by terminal state",
		},
		[]string{"state"}, // acknowledged, abandoned, unsupervised
	)

	LeaseExtensionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lease_worker_lease_extensions_total",
			Help: "Total number of lease extension calls by result",
		},
		[]string{"result"}, // ok, error
	)

	AcknowledgementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lease_worker_acknowledgements_total",
			Help: "Total number of acknowledge calls by result",
		},
		[]string{"result"}, // ok, error
	)

	HandlerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lease_worker_handler_duration_seconds",
			Help:    "Duration of handler invocations observed by a supervisor",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	LateOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lease_worker_late_outcomes_total",
			Help: "Handler outcomes that arrived after supervision stopped",
		},
		[]string{"outcome"}, // success, failure
	)
)

// Publisher metrics
var (
	MessagesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lease_worker_messages_published_total",
			Help: "Total number of messages published by the send command",
		},
		[]string{"queue_type"},
	)
)
