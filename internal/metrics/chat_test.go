package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterChatMetrics_Idempotent(t *testing.T) {
	RegisterChatMetrics()
	RegisterChatMetrics()
	RegisterEmbeddingMetrics()
	RegisterEmbeddingMetrics()

	ChatStreamsTotal.WithLabelValues("knowledge", "ok").Inc()
	if v := testutil.ToFloat64(ChatStreamsTotal.WithLabelValues("knowledge", "ok")); v < 1 {
		t.Errorf("expected chat_streams_total >= 1, got %f", v)
	}
	IngestChunks.Observe(12)
	if n := testutil.CollectAndCount(IngestChunks); n != 1 {
		t.Errorf("expected one histogram series, got %d", n)
	}
}
