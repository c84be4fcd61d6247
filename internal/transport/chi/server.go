package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kbchat/internal/domain"
	"github.com/kailas-cloud/kbchat/internal/domain/knowledge"
	logpkg "github.com/kailas-cloud/kbchat/internal/logger"
	healthuc "github.com/kailas-cloud/kbchat/internal/usecase/health"
	"github.com/kailas-cloud/kbchat/internal/usecase/ingest"
	knowledgeuc "github.com/kailas-cloud/kbchat/internal/usecase/knowledge"
)

// Error codes returned in ErrorResponse.Error.
const (
	codeBadRequest      = "bad_request"
	codeNotFound        = "not_found"
	codeMalformedInput  = "malformed_input"
	codeDimMismatch     = "vector_dim_mismatch"
	codeEmbeddingFailed = "embedding_provider_error"
	codeUpstreamModel   = "upstream_model_error"
	codeWebFetch        = "web_fetch_failed"
	codeSearch          = "search_unavailable"
	codeInternal        = "internal_error"
)

const (
	msgUploadNotFound    = "Upload File not found"
	defaultMaxUploadSize = 50 << 20
)

// ErrorResponse is the JSON body of every non-chat error.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Options configure the server.
type Options struct {
	UploadDir     string
	MaxUploadSize int64
}

// Server serves the knowledge and chat API.
type Server struct {
	knowledge     KnowledgeService
	chat          ChatService
	health        HealthService
	opts          Options
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	knowledgeSvc KnowledgeService,
	chatSvc ChatService,
	healthSvc HealthService,
	opts Options,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = defaultMaxUploadSize
	}
	s := &Server{
		knowledge: knowledgeSvc,
		chat:      chatSvc,
		health:    healthSvc,
		opts:      opts,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrMalformedInput, http.StatusUnprocessableEntity, codeMalformedInput),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, codeDimMismatch),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingFailed),
		sentinelHandler(domain.ErrUpstreamModel, http.StatusBadGateway, codeUpstreamModel),
		sentinelHandler(domain.ErrWebFetch, http.StatusBadGateway, codeWebFetch),
		sentinelHandler(domain.ErrSearchUnavailable, http.StatusServiceUnavailable, codeSearch),
	}
	return s
}

type ingestBody struct {
	File             knowledge.File `json:"file"`
	KnowledgeName    string         `json:"knowledgeName"`
	ChunkSize        int            `json:"chunkSize"`
	ChunkSizeOverlap *int           `json:"chunkSizeOverlap"`
	ChunkOverlap     *int           `json:"chunkOverlap"`
	Type             string         `json:"type"`
}

type ingestResponse struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Chunks  int    `json:"chunks,omitempty"`
}

// Ingest handles POST /api/ingest. Ingestion failures always answer 500.
func (s *Server) Ingest(w http.ResponseWriter, r *http.Request) {
	var body ingestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	overlap := 0
	switch {
	case body.ChunkSizeOverlap != nil:
		overlap = *body.ChunkSizeOverlap
	case body.ChunkOverlap != nil:
		overlap = *body.ChunkOverlap
	}

	res, err := s.knowledge.Ingest(r.Context(), knowledgeuc.IngestRequest{
		File:             body.File,
		KnowledgeName:    body.KnowledgeName,
		ChunkSize:        body.ChunkSize,
		ChunkSizeOverlap: overlap,
		Type:             body.Type,
	})
	if err != nil {
		logpkg.FromContext(r.Context()).Warn("ingest failed", zap.String("url", body.File.URL), zap.Error(err))
		msg := ingest.MessageFailure
		if errors.Is(err, domain.ErrNotFound) {
			msg = msgUploadNotFound
		}
		writeJSON(w, http.StatusInternalServerError, ingestResponse{Code: http.StatusInternalServerError, Message: msg})
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		Success: res.Success,
		Code:    res.Code,
		Message: res.Message,
		Chunks:  res.Chunks,
	})
}

type listResponse struct {
	Success bool              `json:"success"`
	Data    []knowledge.Entry `json:"data"`
}

// ListKnowledge handles GET /api/knowledge-list.
func (s *Server) ListKnowledge(w http.ResponseWriter, r *http.Request) {
	entries, err := s.knowledge.List()
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if entries == nil {
		entries = []knowledge.Entry{}
	}
	writeJSON(w, http.StatusOK, listResponse{Success: true, Data: entries})
}

type deleteResponse struct {
	Success bool `json:"success"`
	Code    int  `json:"code"`
	Removed int  `json:"removed"`
}

// DeleteKnowledge handles DELETE /api/knowledge/{namespace}.
func (s *Server) DeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	ns := chi.URLParam(r, "namespace")
	n, err := s.knowledge.Delete(r.Context(), ns)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Success: true, Code: http.StatusOK, Removed: n})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    status,
		Error:   code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidRequest,
		domain.ErrNotFound,
		domain.ErrMalformedInput,
		domain.ErrVectorDimMismatch,
		domain.ErrEmbeddingProviderError,
		domain.ErrUpstreamModel,
		domain.ErrWebFetch,
		domain.ErrSearchUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, safeDomainMessage(err))
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}
