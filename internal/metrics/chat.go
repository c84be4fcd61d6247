package metrics

import "github.com/prometheus/client_golang/prometheus"

// Chat and ingestion Prometheus metrics.
var (
	ChatStreamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbchat",
			Name:      "chat_streams_total",
			Help:      "Chat streams by route and outcome",
		},
		[]string{"route", "status"}, // status: ok, error, canceled
	)

	ChatTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbchat",
			Name:      "chat_tokens_streamed_total",
			Help:      "Tokens forwarded to chat clients",
		},
		[]string{"route"},
	)

	RetrievalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kbchat",
			Name:      "retrieval_duration_seconds",
			Help:      "Time spent building the context block before generation",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"route"},
	)

	IngestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbchat",
			Name:      "ingestions_total",
			Help:      "Ingestions by outcome and failing stage",
		},
		[]string{"status", "stage"},
	)

	IngestChunks = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "kbchat",
			Name:      "ingest_chunks",
			Help:      "Chunks produced per successful ingestion",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)
)

var chatMetricsRegistered bool

// RegisterChatMetrics registers chat and ingestion metrics. Must be called once from main.
func RegisterChatMetrics() {
	if chatMetricsRegistered {
		return
	}
	prometheus.MustRegister(ChatStreamsTotal)
	prometheus.MustRegister(ChatTokensTotal)
	prometheus.MustRegister(RetrievalDuration)
	prometheus.MustRegister(IngestionsTotal)
	prometheus.MustRegister(IngestChunks)
	chatMetricsRegistered = true
}
