package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kbchat/internal/domain"
	"github.com/kailas-cloud/kbchat/internal/domain/document"
	"github.com/kailas-cloud/kbchat/internal/domain/vector"
	"github.com/kailas-cloud/kbchat/internal/metrics"
	"github.com/kailas-cloud/kbchat/internal/splitter"
)

// Ingestion stages reported in IngestionError.
const (
	StageValidate = "validate"
	StageLoad     = "load"
	StageSplit    = "split"
	StageEmbed    = "embed"
	StageStore    = "store"
)

// Result messages.
const (
	MessageSuccess = "Ingested data successfully"
	MessageFailure = "Failed to ingest your data"
)

// Request describes one ingestion.
type Request struct {
	Type         string // "directory" forces directory loading
	Extension    string // without the dot; empty derives it from Path
	Path         string
	Namespace    string
	ChunkSize    int // <= 0 uses the configured default
	ChunkOverlap int // <= 0 means no overlap
}

// Result is the outcome reported to the caller.
type Result struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Chunks  int    `json:"chunks,omitempty"`
}

// Service loads, splits, embeds and stores documents.
type Service struct {
	loader    Loader
	splitters splitter.Factory
	embedder  domain.Embedder
	store     VectorStore
	chunkSize int
	logger    *zap.Logger
}

// New creates an ingestion service. defaultChunkSize applies when a request has none.
func New(
	loader Loader,
	splitters splitter.Factory,
	embedder domain.Embedder,
	store VectorStore,
	defaultChunkSize int,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		loader:    loader,
		splitters: splitters,
		embedder:  embedder,
		store:     store,
		chunkSize: defaultChunkSize,
		logger:    logger,
	}
}

// Ingest runs the pipeline once. Re-ingesting into the same namespace adds
// records; nothing is deduplicated. On failure the returned error is a
// *domain.IngestionError and the Result carries the failure message.
func (s *Service) Ingest(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	n, err := s.run(ctx, req)
	if err != nil {
		var ierr *domain.IngestionError
		stage := "unknown"
		if errors.As(err, &ierr) {
			stage = ierr.Stage
		}
		metrics.IngestionsTotal.WithLabelValues("error", stage).Inc()
		s.logger.Error("Ingestion failed",
			zap.String("namespace", req.Namespace),
			zap.String("path", req.Path),
			zap.String("stage", stage),
			zap.Error(err),
		)
		return Result{Success: false, Code: 500, Message: MessageFailure}, err
	}

	metrics.IngestionsTotal.WithLabelValues("ok", "").Inc()
	metrics.IngestChunks.Observe(float64(n))
	s.logger.Info("Ingested data",
		zap.String("namespace", req.Namespace),
		zap.String("path", req.Path),
		zap.Int("chunks", n),
		zap.Duration("duration", time.Since(start)),
	)
	return Result{Success: true, Code: 200, Message: MessageSuccess, Chunks: n}, nil
}

func (s *Service) run(ctx context.Context, req Request) (int, error) {
	fail := func(stage string, err error) (int, error) {
		return 0, &domain.IngestionError{Stage: stage, Namespace: req.Namespace, Err: err}
	}

	if strings.TrimSpace(req.Namespace) == "" {
		return fail(StageValidate, fmt.Errorf("%w: namespace is required", domain.ErrInvalidRequest))
	}
	if strings.TrimSpace(req.Path) == "" {
		return fail(StageValidate, fmt.Errorf("%w: path is required", domain.ErrInvalidRequest))
	}
	size, overlap := req.ChunkSize, req.ChunkOverlap
	if size <= 0 {
		size = s.chunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	sp, err := s.splitters.New(size, overlap)
	if err != nil {
		return fail(StageValidate, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
	}

	docs, err := s.loader.Load(ctx, req.Type, req.Extension, req.Path)
	if err != nil {
		return fail(StageLoad, err)
	}

	chunks, err := sp.SplitDocuments(docs)
	if err != nil {
		return fail(StageSplit, err)
	}
	if len(chunks) == 0 {
		s.logger.Warn("No content to ingest", zap.String("namespace", req.Namespace), zap.String("path", req.Path))
		return 0, nil
	}

	records, err := s.embed(ctx, chunks)
	if err != nil {
		return fail(StageEmbed, err)
	}

	if err := s.store.Upsert(ctx, req.Namespace, records); err != nil {
		return fail(StageStore, err)
	}
	return len(records), nil
}

func (s *Service) embed(ctx context.Context, chunks []document.Document) ([]vector.Record, error) {
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].PageContent
	}
	res, err := domain.EmbedAll(ctx, s.embedder, texts)
	if err != nil {
		return nil, err
	}

	records := make([]vector.Record, len(chunks))
	for i := range chunks {
		records[i] = vector.Record{
			ID:       uuid.NewString(),
			Text:     chunks[i].PageContent,
			Vector:   res.Embeddings[i],
			Metadata: chunks[i].Metadata,
		}
	}
	return records, nil
}

// Clear removes every vector record of the namespace.
func (s *Service) Clear(ctx context.Context, namespace string) error {
	if strings.TrimSpace(namespace) == "" {
		return fmt.Errorf("%w: namespace is required", domain.ErrInvalidRequest)
	}
	if err := s.store.DeleteNamespace(ctx, namespace); err != nil {
		return fmt.Errorf("clear %s: %w", namespace, err)
	}
	s.logger.Info("Cleared namespace", zap.String("namespace", namespace))
	return nil
}

// Count returns the number of stored chunks in the namespace.
func (s *Service) Count(ctx context.Context, namespace string) (int, error) {
	n, err := s.store.Count(ctx, namespace)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", namespace, err)
	}
	return n, nil
}
