package chat

import (
	"context"

	domchat "github.com/kailas-cloud/kbchat/internal/domain/chat"
	"github.com/kailas-cloud/kbchat/internal/domain/vector"
)

// Generator streams model tokens into tokens without closing it.
type Generator interface {
	Stream(ctx context.Context, c domchat.Completion, tokens chan<- string) error
}

// VectorStore is the namespaced similarity search used for retrieval.
type VectorStore interface {
	Upsert(ctx context.Context, namespace string, records []vector.Record) error
	Query(ctx context.Context, namespace string, v []float32, k int) ([]vector.Match, error)
}

// PageFetcher downloads a web page and extracts its visible text.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (domchat.Page, error)
}

// Searcher queries a web search engine.
type Searcher interface {
	Search(ctx context.Context, query string, num int) ([]domchat.SearchResult, error)
}
