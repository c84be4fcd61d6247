package kbchat

import "github.com/kailas-cloud/kbchat/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound               = domain.ErrNotFound
	ErrInvalidRequest         = domain.ErrInvalidRequest
	ErrMalformedInput         = domain.ErrMalformedInput
	ErrIngestion              = domain.ErrIngestion
	ErrUpstreamModel          = domain.ErrUpstreamModel
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrVectorDimMismatch      = domain.ErrVectorDimMismatch
	ErrWebFetch               = domain.ErrWebFetch
	ErrSearchUnavailable      = domain.ErrSearchUnavailable
)
