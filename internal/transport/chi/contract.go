package chi

import (
	"context"

	domchat "github.com/kailas-cloud/kbchat/internal/domain/chat"
	"github.com/kailas-cloud/kbchat/internal/domain/knowledge"
	chatuc "github.com/kailas-cloud/kbchat/internal/usecase/chat"
	healthuc "github.com/kailas-cloud/kbchat/internal/usecase/health"
	"github.com/kailas-cloud/kbchat/internal/usecase/ingest"
	knowledgeuc "github.com/kailas-cloud/kbchat/internal/usecase/knowledge"
)

// KnowledgeService manages knowledge bases.
type KnowledgeService interface {
	Ingest(ctx context.Context, req knowledgeuc.IngestRequest) (ingest.Result, error)
	List() ([]knowledge.Entry, error)
	Delete(ctx context.Context, namespace string) (int, error)
}

// ChatService starts token streams.
type ChatService interface {
	Stream(ctx context.Context, req domchat.Request) (*chatuc.Stream, error)
}

// HealthService aggregates component probes.
type HealthService interface {
	Check(ctx context.Context) healthuc.Report
}
