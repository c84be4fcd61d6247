package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbchat/internal/domain"
	domchat "github.com/kailas-cloud/kbchat/internal/domain/chat"
	logpkg "github.com/kailas-cloud/kbchat/internal/logger"
)

// ChatError mirrors the provider error object returned before streaming starts.
type ChatError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param"`
	Code    string `json:"code"`
}

type chatErrorResponse struct {
	Error ChatError `json:"error"`
}

// Chat handles POST /api/chat. Tokens are written raw and flushed one by one.
// Errors before the first token answer JSON; later errors close the stream.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req domchat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, chatErrorResponse{Error: ChatError{
			Message: "Invalid request body: " + err.Error(),
			Type:    "invalid_request_error",
		}})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := logpkg.FromContext(ctx)

	st, err := s.chat.Stream(ctx, req)
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}

	first, ok := <-st.Tokens()
	if !ok {
		if err := st.Err(); err != nil && !errors.Is(err, context.Canceled) {
			s.writeChatError(w, r, err)
			return
		}
		writeStreamHeaders(w)
		return
	}

	writeStreamHeaders(w)
	flusher, _ := w.(http.Flusher)
	write := func(tok string) bool {
		if _, err := io.WriteString(w, tok); err != nil {
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}

	alive := write(first)
	for tok := range st.Tokens() {
		if alive && !write(tok) {
			alive = false
			cancel()
		}
	}
	if err := st.Err(); err != nil {
		log.Debug("chat stream closed early", zap.String("route", string(st.Route)), zap.Error(err))
	}
}

func writeStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())

	var upstream *domain.UpstreamModelError
	switch {
	case errors.As(err, &upstream):
		log.Error("upstream model error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, chatErrorResponse{Error: ChatError{
			Message: upstream.Message,
			Type:    upstream.Type,
			Param:   upstream.Param,
			Code:    upstream.Code,
		}})
	case errors.Is(err, domain.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, chatErrorResponse{Error: ChatError{
			Message: err.Error(),
			Type:    "invalid_request_error",
		}})
	default:
		log.Error("chat failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, chatErrorResponse{Error: ChatError{
			Message: safeDomainMessage(err),
			Type:    "server_error",
			Code:    chatErrorCode(err),
		}})
	}
}

func chatErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrWebFetch):
		return codeWebFetch
	case errors.Is(err, domain.ErrSearchUnavailable):
		return codeSearch
	case errors.Is(err, domain.ErrEmbeddingProviderError):
		return codeEmbeddingFailed
	default:
		return codeInternal
	}
}
