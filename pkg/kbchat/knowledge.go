package kbchat

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/kbchat/internal/usecase/ingest"
)

// Ingest loads, splits and embeds req.Path into req.Namespace and returns the
// number of chunks stored. Errors match ErrIngestion and their cause.
func (c *Client) Ingest(ctx context.Context, req IngestRequest) (n int, err error) {
	start := time.Now()
	defer func() { c.obs.observe("ingest", start, err, "namespace", req.Namespace, "chunks", n) }()

	res, err := c.ingestSvc.Ingest(ctx, ingest.Request{
		Type:         req.Type,
		Extension:    req.Extension,
		Path:         req.Path,
		Namespace:    req.Namespace,
		ChunkSize:    req.ChunkSize,
		ChunkOverlap: req.ChunkOverlap,
	})
	if err != nil {
		return 0, fmt.Errorf("ingest: %w", err)
	}
	return res.Chunks, nil
}

// Clear removes every chunk stored under namespace.
func (c *Client) Clear(ctx context.Context, namespace string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("clear", start, err, "namespace", namespace) }()

	if err = c.ingestSvc.Clear(ctx, namespace); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

// Count returns the number of chunks stored under namespace.
func (c *Client) Count(ctx context.Context, namespace string) (n int, err error) {
	start := time.Now()
	defer func() { c.obs.observe("count", start, err, "namespace", namespace) }()

	n, err = c.ingestSvc.Count(ctx, namespace)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}
