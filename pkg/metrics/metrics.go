// Package metrics exposes the prometheus gauges, counters and histograms
// hatn's queue, storage and RPC layers publish to, following the
// warren_* gauge-per-concern convention of cuemby-warren/pkg/metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueueDepth reports the current depth of a named task queue.
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hatn_queue_depth",
			Help: "Current number of pending tasks in a queue",
		},
		[]string{"queue"},
	)

	// QueueLatencySeconds reports time spent waiting in a queue before
	// being popped by its consumer.
	QueueLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hatn_queue_latency_seconds",
			Help:    "Queueing latency between push and pop",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue"},
	)

	// ThreadTasksProcessed counts tasks drained by a thread's event loop.
	ThreadTasksProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hatn_thread_tasks_processed_total",
			Help: "Total tasks processed by a thread's event loop",
		},
		[]string{"thread"},
	)

	// StorageOpsTotal counts storage engine operations by model and kind.
	StorageOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hatn_storage_ops_total",
			Help: "Total storage operations by model and operation kind",
		},
		[]string{"model", "op", "status"},
	)

	// StorageOpDurationSeconds reports storage operation latency.
	StorageOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hatn_storage_op_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model", "op"},
	)

	// TTLExpiredTotal counts objects removed by the TTL sweeper; expired
	// objects that reads skip are not counted.
	TTLExpiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hatn_ttl_expired_total",
			Help: "Total objects removed by the TTL sweeper",
		},
		[]string{"model", "path"},
	)

	// RPCRequestsTotal counts client RPC requests by service/method/status.
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hatn_rpc_requests_total",
			Help: "Total RPC requests by service, method and status",
		},
		[]string{"service", "method", "status"},
	)

	// RPCRequestDurationSeconds reports RPC round-trip latency.
	RPCRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hatn_rpc_request_duration_seconds",
			Help:    "RPC request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method"},
	)

	// SessionRefreshesTotal counts outbound session refreshes, used to
	// verify refresh coalescing (spec §8 property 5).
	SessionRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hatn_session_refreshes_total",
			Help: "Total outbound session token refreshes performed",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		QueueDepth,
		QueueLatencySeconds,
		ThreadTasksProcessed,
		StorageOpsTotal,
		StorageOpDurationSeconds,
		TTLExpiredTotal,
		RPCRequestsTotal,
		RPCRequestDurationSeconds,
		SessionRefreshesTotal,
	)
}

// Handler returns the HTTP handler serving the prometheus exposition
// format, to be mounted by cmd/hatnd the way warren mounts /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
