package kbchat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbchat/internal/config"
	"github.com/kailas-cloud/kbchat/internal/db"
	"github.com/kailas-cloud/kbchat/internal/db/memory"
	dbRedis "github.com/kailas-cloud/kbchat/internal/db/redis"
	"github.com/kailas-cloud/kbchat/internal/domain"
	domchat "github.com/kailas-cloud/kbchat/internal/domain/chat"
	"github.com/kailas-cloud/kbchat/internal/loader"
	"github.com/kailas-cloud/kbchat/internal/repository/chunk"
	"github.com/kailas-cloud/kbchat/internal/splitter"
	"github.com/kailas-cloud/kbchat/internal/transport/web"
	chatuc "github.com/kailas-cloud/kbchat/internal/usecase/chat"
	healthuc "github.com/kailas-cloud/kbchat/internal/usecase/health"
	"github.com/kailas-cloud/kbchat/internal/usecase/ingest"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultChunkSize        = 1000
	defaultModel            = "gpt-3.5-turbo"
	defaultSystemPrompt     = "You are a helpful assistant."
)

// Internal interfaces for substitution in tests.
type ingestUseCase interface {
	Ingest(ctx context.Context, req ingest.Request) (ingest.Result, error)
	Clear(ctx context.Context, namespace string) error
	Count(ctx context.Context, namespace string) (int, error)
}

type chatUseCase interface {
	Stream(ctx context.Context, req domchat.Request) (*chatuc.Stream, error)
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}

// Client is the kbchat library entry point.
type Client struct {
	store     db.Store
	ingestSvc ingestUseCase
	chatSvc   chatUseCase // nil without WithChatModel
	healthSvc healthUseCase
	obs       *observer
}

// New creates a Client and connects to the store.
// The provided context is used for the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		driver:          "memory",
		chunkSize:       defaultChunkSize,
		defaultModel:    defaultModel,
		systemPrompt:    defaultSystemPrompt,
		knowledgePrompt: config.DefaultKnowledgePrompt,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.embedder == nil {
		return nil, errors.New("kbchat: embedder required (use WithEmbedder)")
	}
	if cfg.driver == "redis" && len(cfg.addrs) == 0 {
		return nil, errors.New("kbchat: redis address required")
	}

	store, err := createStore(cfg)
	if err != nil {
		return nil, err
	}

	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("kbchat: database not ready: %w", err)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return wireClient(store, cfg, obs), nil
}

func createStore(cfg *clientConfig) (db.Store, error) {
	switch cfg.driver {
	case "redis":
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Username: cfg.username,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("kbchat: create redis store: %w", err)
		}
		return s, nil
	case "memory":
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("kbchat: unknown driver %q", cfg.driver)
	}
}

func wireClient(store db.Store, cfg *clientConfig, obs *observer) *Client {
	emb := &embedderAdapter{inner: cfg.embedder}
	vectors := chunk.New(store, chunk.Options{HNSWM: cfg.hnswM, HNSWEF: cfg.hnswEFConstruct})
	splitters := splitter.Factory{}
	nop := zap.NewNop()

	ingestSvc := ingest.New(loader.New(nil, nop), splitters, emb, vectors, cfg.chunkSize, nop)

	checks := []healthuc.Check{healthuc.Database(store)}
	if p, ok := cfg.embedder.(healthuc.Prober); ok {
		checks = append(checks, healthuc.Provider("embedding", p))
	}

	c := &Client{
		store:     store,
		ingestSvc: ingestSvc,
		healthSvc: healthuc.New(checks...),
		obs:       obs,
	}
	if cfg.model != nil {
		c.chatSvc = chatuc.New(chatuc.Deps{
			Generator: &generatorAdapter{inner: cfg.model},
			Embedder:  emb,
			Store:     vectors,
			Fetcher:   web.NewFetcher(web.Config{Client: cfg.httpClient}),
			Splitters: splitters,
		}, chatuc.Options{
			TopK:               cfg.topK,
			DefaultModel:       cfg.defaultModel,
			DefaultTemperature: 1,
			SystemPrompt:       cfg.systemPrompt,
			KnowledgePrompt:    cfg.knowledgePrompt,
		}, nop)
	}
	return c
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Health checks the store and, when it supports probing, the embedder.
func (c *Client) Health(ctx context.Context) HealthStatus {
	report := c.healthSvc.Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthStatus{Status: string(report.Status), Checks: checks}
}

// embedderAdapter wraps the public Embedder to satisfy domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// generatorAdapter wraps the public ChatModel to satisfy the chat generator.
type generatorAdapter struct {
	inner ChatModel
}

func (a *generatorAdapter) Stream(ctx context.Context, c domchat.Completion, tokens chan<- string) error {
	msgs := make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		msgs[i] = Message{Role: Role(m.Role), Content: m.Content}
	}
	return a.inner.Stream(ctx, Completion{Model: c.Model, Temperature: c.Temperature, Messages: msgs}, tokens)
}
