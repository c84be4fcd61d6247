package knowledge

import (
	"context"

	"github.com/kailas-cloud/kbchat/internal/domain/knowledge"
	"github.com/kailas-cloud/kbchat/internal/usecase/ingest"
)

// Ingester runs the ingestion pipeline.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (ingest.Result, error)
	Clear(ctx context.Context, namespace string) error
}

// Registry persists the list of available knowledge bases.
type Registry interface {
	List() ([]knowledge.Entry, error)
	Register(entry knowledge.Entry) error
	Remove(namespace string) (int, error)
}
