package knowledge

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbchat/internal/domain"
	"github.com/kailas-cloud/kbchat/internal/domain/knowledge"
	"github.com/kailas-cloud/kbchat/internal/usecase/ingest"
)

// IngestRequest is an upload-based ingestion as the API receives it.
type IngestRequest struct {
	File             knowledge.File
	KnowledgeName    string
	ChunkSize        int
	ChunkSizeOverlap int
	Type             string
}

// Service ties uploaded files, the ingestion pipeline and the registry together.
type Service struct {
	ingester  Ingester
	registry  Registry
	uploadDir string
	logger    *zap.Logger
}

// New creates a knowledge Service. Relative file urls resolve against uploadDir.
func New(ingester Ingester, registry Registry, uploadDir string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{ingester: ingester, registry: registry, uploadDir: uploadDir, logger: logger}
}

// Ingest derives the namespace and extension from the file url, ingests the
// file and registers the knowledge base on success only.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (ingest.Result, error) {
	ns, err := knowledge.NamespaceFromURL(req.File.URL)
	if err != nil {
		return ingest.Result{Code: 500, Message: ingest.MessageFailure},
			&domain.IngestionError{Stage: ingest.StageValidate, Err: fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)}
	}

	res, err := s.ingester.Ingest(ctx, ingest.Request{
		Type:         req.Type,
		Extension:    knowledge.ExtensionFromURL(req.File.URL),
		Path:         s.resolve(req.File.URL),
		Namespace:    ns,
		ChunkSize:    req.ChunkSize,
		ChunkOverlap: req.ChunkSizeOverlap,
	})
	if err != nil {
		return res, err
	}

	entry := knowledge.Entry{
		Namespace:        ns,
		KnowledgeName:    req.KnowledgeName,
		ChunkSize:        req.ChunkSize,
		ChunkSizeOverlap: req.ChunkSizeOverlap,
		File:             req.File,
	}
	if err := s.registry.Register(entry); err != nil {
		s.logger.Error("Failed to register knowledge", zap.String("namespace", ns), zap.Error(err))
		return ingest.Result{Code: 500, Message: ingest.MessageFailure},
			&domain.IngestionError{Stage: "register", Namespace: ns, Err: err}
	}
	return res, nil
}

// List returns the registered knowledge bases in insertion order.
func (s *Service) List() ([]knowledge.Entry, error) {
	entries, err := s.registry.List()
	if err != nil {
		return nil, fmt.Errorf("list knowledge: %w", err)
	}
	return entries, nil
}

// Delete clears the namespace vectors and drops its registry entries,
// returning how many entries were removed. Namespaces ingested from the CLI
// have no entries, so zero is not an error.
func (s *Service) Delete(ctx context.Context, namespace string) (int, error) {
	if err := s.ingester.Clear(ctx, namespace); err != nil {
		return 0, err
	}
	n, err := s.registry.Remove(namespace)
	if err != nil {
		return 0, fmt.Errorf("remove %s: %w", namespace, err)
	}
	s.logger.Info("Deleted knowledge", zap.String("namespace", namespace), zap.Int("entries", n))
	return n, nil
}

// resolve maps an upload url ("/uploads/x.txt", "x.txt" or an absolute path
// that exists under the upload dir) onto the upload directory.
func (s *Service) resolve(url string) string {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimSpace(url)))
	if s.uploadDir == "" {
		return clean
	}
	dir := filepath.Clean(s.uploadDir)
	if strings.HasPrefix(clean, dir+string(filepath.Separator)) {
		return clean
	}
	return filepath.Join(dir, filepath.Base(clean))
}
