package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(chunkParts, chunkPartLatency, chunkItemsTotal, chunkResumedParts)
}

var (
	chunkParts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chunk_parts_total",
			Help: "Chunk parts transcribed, by outcome.",
		},
		[]string{"outcome"}, // completed, failed
	)

	chunkPartLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chunk_part_latency_seconds",
			Help:    "Per-part transcription latency distribution in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	chunkItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chunk_items_total",
			Help: "On-demand items finished, by terminal status.",
		},
		[]string{"status"}, // completed, failed
	)

	chunkResumedParts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chunk_resumed_parts_total",
			Help: "Parts skipped on resume because a checkpoint already covered them.",
		},
	)
)

func IncChunkPart(outcome string)        { chunkParts.WithLabelValues(norm(outcome)).Inc() }
func ObservePartLatency(seconds float64) { chunkPartLatency.Observe(seconds) }
func IncChunkItem(status string)         { chunkItemsTotal.WithLabelValues(norm(status)).Inc() }
func AddResumedParts(n int) {
	if n > 0 {
		chunkResumedParts.Add(float64(n))
	}
}
