// Package metrics declares the Sync Engine's prometheus collectors,
// in a promauto.NewCounterVec/HistogramVec declarative shape, covering
// listens, limbo targets, write batches, and view recomputation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LatencyBuckets is the shared histogram bucket scheme for every
// duration this package tracks: sub-millisecond through multi-second,
// exponentially spaced.
var LatencyBuckets = prometheus.ExponentialBuckets(0.0005, 2, 16)

// QueryLabels tags a metric with the collection a query targets.
var QueryLabels = []string{"collection"}

var (
	// ListensStarted counts successful calls to Engine.Listen.
	ListensStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncengine_listens_started_total",
		Help: "the number of queries registered via Listen",
	}, QueryLabels)

	// ListensRejected counts listens torn down by HandleRejectedListen.
	ListensRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncengine_listens_rejected_total",
		Help: "the number of listens the Remote Store rejected",
	}, QueryLabels)

	// LimboTargetsOutstanding reports the number of limbo resolution
	// targets the Limbo Tracker holds (one per key), sampled whenever
	// that number changes.
	LimboTargetsOutstanding = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "syncengine_limbo_targets_outstanding",
		Help: "the number of distinct documents currently being resolved via limbo listens",
	})

	// LimboResolutionDurations times how long a document spends in
	// limbo, from the reference being added to the key either
	// resolving or being purged.
	LimboResolutionDurations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "syncengine_limbo_resolution_duration_seconds",
		Help:    "the length of time a document spent in limbo before resolving or being purged",
		Buckets: LatencyBuckets,
	})

	// WriteBatchesAcknowledged counts batches that completed via
	// HandleSuccessfulWrite.
	WriteBatchesAcknowledged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syncengine_write_batches_acknowledged_total",
		Help: "the number of write batches acknowledged by the backend",
	})

	// WriteBatchesRejected counts batches that failed via
	// HandleRejectedWrite.
	WriteBatchesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syncengine_write_batches_rejected_total",
		Help: "the number of write batches rejected by the backend",
	})

	// ViewRecomputeDurations times a single View's recomputation,
	// from the Sync Controller's perspective: ComputeDocChanges, any
	// limit refill, and ApplyChanges.
	ViewRecomputeDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "syncengine_view_recompute_duration_seconds",
		Help:    "the length of time it took to recompute a single View's result",
		Buckets: LatencyBuckets,
	}, QueryLabels)

	// TransactionRetries is incremented by the transaction helper with
	// outcome "retried" for each attempt beyond the first, and with
	// outcome "exhausted" each time the helper gives up and returns an
	// error.
	TransactionRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncengine_transaction_retries_total",
		Help: "transaction attempts beyond the first (outcome=retried) and transactions that returned an error (outcome=exhausted)",
	}, []string{"outcome"})
)
