package ingest

import (
	"context"

	"github.com/kailas-cloud/kbchat/internal/domain/document"
	"github.com/kailas-cloud/kbchat/internal/domain/vector"
)

// Loader reads a file or directory into documents.
type Loader interface {
	Load(ctx context.Context, kind, ext, path string) ([]document.Document, error)
}

// VectorStore persists embedded chunks per namespace.
type VectorStore interface {
	Upsert(ctx context.Context, namespace string, records []vector.Record) error
	DeleteNamespace(ctx context.Context, namespace string) error
	Count(ctx context.Context, namespace string) (int, error)
}
