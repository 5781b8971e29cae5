package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		batchJobsTotal,
		batchItemsReconciled,
		batchSubmitBytes,
		batchSubmitLatency,
	)
}

var (
	batchJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_jobs_total",
			Help: "Batch jobs by terminal status.",
		},
		[]string{"status"}, // completed, failed, expired, cancelled
	)

	batchItemsReconciled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_items_reconciled_total",
			Help: "Batch items finalized by the materializer, by outcome.",
		},
		[]string{"outcome"}, // completed, failed, missing
	)

	batchSubmitBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batch_submit_bytes_total",
			Help: "Total audio bytes uploaded during batch submissions.",
		},
	)

	batchSubmitLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_submit_latency_ms",
			Help:    "End-to-end submission latency in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"success"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func IncBatchJob(status string) {
	batchJobsTotal.WithLabelValues(norm(status)).Inc()
}

func IncItemReconciled(outcome string, n int) {
	if n <= 0 {
		return
	}
	batchItemsReconciled.WithLabelValues(norm(outcome)).Add(float64(n))
}

func AddSubmitBytes(n int64) {
	batchSubmitBytes.Add(float64(n))
}

func ObserveSubmitLatency(ms int64, success bool) {
	lbl := "false"
	if success {
		lbl = "true"
	}
	batchSubmitLatency.WithLabelValues(lbl).Observe(float64(ms))
}
