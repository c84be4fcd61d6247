package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/kbchat/internal/domain"
)

// DefaultMaxAPIBatchSize is the largest number of texts sent in one API request.
const DefaultMaxAPIBatchSize = 512

// Options tune outbound embedding traffic.
type Options struct {
	BatchSize int           // texts per API request, DefaultMaxAPIBatchSize when <= 0
	Limiter   *rate.Limiter // one token per API request; nil disables throttling
}

// NewLimiter returns a limiter for rps requests per second, or nil when rps <= 0.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// InstrumentedEmbedder wraps Embedder with request throttling, sub-batching and logging.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
type InstrumentedEmbedder struct {
	inner     domain.Embedder
	provider  string
	model     string
	batchSize int
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string,
	opts Options, logger *zap.Logger,
) *InstrumentedEmbedder {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultMaxAPIBatchSize
	}
	return &InstrumentedEmbedder{
		inner:     inner,
		provider:  provider,
		model:     model,
		batchSize: batch,
		limiter:   opts.Limiter,
		logger:    logger,
	}
}

// Embed waits for the limiter and delegates to the inner embedder.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, text string,
) (domain.EmbeddingResult, error) {
	if err := p.wait(ctx); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.inner.Embed(ctx, text)
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// BatchEmbed splits texts into API-sized sub-batches, each gated by the limiter.
func (p *InstrumentedEmbedder) BatchEmbed(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()
	result, err := p.embedChunked(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	p.logger.Debug("Batch embedding completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// HealthCheck probes the inner provider when it supports it.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (p *InstrumentedEmbedder) embedChunked(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	all := make([][]float32, 0, len(texts))
	var totalPrompt, totalTokens int

	for offset := 0; offset < len(texts); offset += p.batchSize {
		end := min(offset+p.batchSize, len(texts))
		chunk := texts[offset:end]

		if err := p.wait(ctx); err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
		res, err := domain.EmbedAll(ctx, p.inner, chunk)
		if err != nil {
			p.logger.Error("Batch embedding request failed",
				zap.String("provider", p.provider),
				zap.String("model", p.model),
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}

		all = append(all, res.Embeddings...)
		totalPrompt += res.PromptTokens
		totalTokens += res.TotalTokens
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   all,
		PromptTokens: totalPrompt,
		TotalTokens:  totalTokens,
	}, nil
}

func (p *InstrumentedEmbedder) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("embedding rate limit: %w", err)
	}
	return nil
}
