package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound signals a missing resource (most often an uploaded file).
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest signals a request that fails validation.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrMalformedInput signals splitter input that is not a single object expression.
	ErrMalformedInput = errors.New("malformed input")
	// ErrIngestion signals a failed ingestion (load, split, embed or upsert).
	ErrIngestion = errors.New("ingestion failed")
	// ErrUpstreamModel signals a failure reported by the language model provider.
	ErrUpstreamModel = errors.New("upstream model error")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrWebFetch signals a failed web page fetch.
	ErrWebFetch = errors.New("web fetch failed")
	// ErrSearchUnavailable signals that web search is not configured or failed.
	ErrSearchUnavailable = errors.New("web search unavailable")
)

// MalformedInputError describes why splitter input was rejected.
type MalformedInputError struct {
	Reason string
	Offset int // byte offset of the parse failure, -1 when unknown
}

func (e *MalformedInputError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s: %s (offset %d)", ErrMalformedInput.Error(), e.Reason, e.Offset)
	}
	return ErrMalformedInput.Error() + ": " + e.Reason
}

func (e *MalformedInputError) Unwrap() error { return ErrMalformedInput }

// NewMalformedInput creates a malformed input error without a position.
func NewMalformedInput(reason string) error {
	return &MalformedInputError{Reason: reason, Offset: -1}
}

// IngestionError wraps the cause of a failed ingestion with the stage it failed in.
// It matches both ErrIngestion and the underlying cause in errors.Is.
type IngestionError struct {
	Stage     string // load, split, embed, store
	Namespace string
	Err       error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("%s: %s %q: %v", ErrIngestion.Error(), e.Stage, e.Namespace, e.Err)
}

func (e *IngestionError) Unwrap() []error { return []error{ErrIngestion, e.Err} }

// UpstreamModelError carries the provider's error body.
type UpstreamModelError struct {
	Message string
	Type    string
	Param   string
	Code    string
	Status  int
}

func (e *UpstreamModelError) Error() string {
	var b strings.Builder
	b.WriteString(ErrUpstreamModel.Error())
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Code != "" {
		b.WriteString(" (code ")
		b.WriteString(e.Code)
		b.WriteString(")")
	}
	return b.String()
}

func (e *UpstreamModelError) Unwrap() error { return ErrUpstreamModel }
