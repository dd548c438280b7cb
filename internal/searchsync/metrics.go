package searchsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	failuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_failures_total",
			Help: "Total number of index sync operations that failed, by operation and reason",
		},
		[]string{"op", "reason"},
	)

	syncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Duration of index sync operations including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"policy", "op", "outcome"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_retries_total",
			Help: "Total number of index sync retries made by queue workers",
		},
		[]string{"op"},
	)

	supersededTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_superseded_total",
			Help: "Total number of queued sync jobs dropped because a later job for the same product was queued",
		},
		[]string{"op"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_queue_depth",
			Help: "Number of sync jobs waiting in the background queue",
		},
	)
)
