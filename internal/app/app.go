// Package app wires configuration into services for the kbchat binaries.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbchat/internal/config"
	"github.com/kailas-cloud/kbchat/internal/db"
	"github.com/kailas-cloud/kbchat/internal/db/memory"
	dbRedis "github.com/kailas-cloud/kbchat/internal/db/redis"
	"github.com/kailas-cloud/kbchat/internal/domain"
	"github.com/kailas-cloud/kbchat/internal/domain/vector"
	"github.com/kailas-cloud/kbchat/internal/loader"
	"github.com/kailas-cloud/kbchat/internal/metrics"
	"github.com/kailas-cloud/kbchat/internal/repository/chunk"
	"github.com/kailas-cloud/kbchat/internal/repository/embcache"
	knowledgerepo "github.com/kailas-cloud/kbchat/internal/repository/knowledge"
	qdrantrepo "github.com/kailas-cloud/kbchat/internal/repository/qdrant"
	"github.com/kailas-cloud/kbchat/internal/splitter"
	"github.com/kailas-cloud/kbchat/internal/transport/google"
	"github.com/kailas-cloud/kbchat/internal/transport/openai"
	"github.com/kailas-cloud/kbchat/internal/transport/web"
	chatuc "github.com/kailas-cloud/kbchat/internal/usecase/chat"
	embeddinguc "github.com/kailas-cloud/kbchat/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/kbchat/internal/usecase/health"
	"github.com/kailas-cloud/kbchat/internal/usecase/ingest"
	knowledgeuc "github.com/kailas-cloud/kbchat/internal/usecase/knowledge"
)

// vectorStore is what both the ingestion and chat services need from a backend.
type vectorStore interface {
	Upsert(ctx context.Context, namespace string, records []vector.Record) error
	Query(ctx context.Context, namespace string, v []float32, k int) ([]vector.Match, error)
	DeleteNamespace(ctx context.Context, namespace string) error
	Count(ctx context.Context, namespace string) (int, error)
}

// App holds the assembled services.
type App struct {
	Store     db.Store
	Ingest    *ingest.Service
	Knowledge *knowledgeuc.Service
	Chat      *chatuc.Service
	Health    *healthuc.Service
}

// Close releases the database connection.
func (a *App) Close() {
	a.Store.Close()
}

// Build connects the store and assembles every service from cfg.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	store, err := openStore(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	logger.Info("Connected to database", zap.String("driver", cfg.Database.Driver))

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterChatMetrics()

	checks := []healthuc.Check{healthuc.Database(store)}

	vectors, probe, err := openVectors(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	if probe != nil {
		checks = append(checks, healthuc.Provider("qdrant", probe))
	}

	base, embedder := buildEmbedder(cfg, store, logger)
	checks = append(checks, healthuc.Provider("embedding", base))

	length, err := splitter.LengthFor(cfg.Splitter.LengthUnit, cfg.Splitter.TokenEncoding)
	if err != nil {
		store.Close()
		return nil, err
	}
	splitters := splitter.Factory{Length: length, Logger: logger}
	if cfg.Knowledge.DebugMetadataPath != "" {
		splitters.Sink = splitter.FileSink{Path: cfg.Knowledge.DebugMetadataPath}
	}

	ingestSvc := ingest.New(
		loader.New(loader.ExecRunner{}, logger),
		splitters, embedder, vectors,
		cfg.Knowledge.DefaultChunkSize, logger,
	)
	knowledgeSvc := knowledgeuc.New(
		ingestSvc,
		knowledgerepo.NewRegistry(cfg.Knowledge.ConfigPath),
		cfg.Knowledge.UploadDir, logger,
	)

	deps := chatuc.Deps{
		Generator: buildGenerator(cfg.LLM, logger),
		Embedder:  embedder,
		Store:     vectors,
		Splitters: splitters,
		Fetcher: web.NewFetcher(web.Config{
			Timeout:   time.Duration(cfg.Web.FetchTimeoutSec) * time.Second,
			UserAgent: cfg.Web.UserAgent,
			MaxBody:   int64(cfg.Web.MaxBodyKB) << 10,
			Client:    &http.Client{},
			Logger:    logger,
		}),
	}
	if cfg.Search.Enabled() {
		searcher, err := google.NewSearcher(ctx, google.Config{
			APIKey:   cfg.Search.APIKey,
			EngineID: cfg.Search.EngineID,
			Logger:   logger,
		})
		if err != nil {
			store.Close()
			return nil, err
		}
		deps.Searcher = searcher
	} else {
		logger.Warn("Web search disabled: search.api_key or search.engine_id missing")
	}

	chatSvc := chatuc.New(deps, chatuc.Options{
		TopK:               cfg.Vector.TopK,
		DefaultModel:       cfg.LLM.DefaultModel,
		DefaultTemperature: cfg.LLM.DefaultTemperature,
		SystemPrompt:       cfg.LLM.SystemPrompt,
		KnowledgePrompt:    cfg.LLM.KnowledgePrompt,
		SearchResults:      cfg.Search.ResultCount,
		FetchTimeout:       time.Duration(cfg.Web.FetchTimeoutSec) * time.Second,
	}, logger)

	return &App{
		Store:     store,
		Ingest:    ingestSvc,
		Knowledge: knowledgeSvc,
		Chat:      chatSvc,
		Health:    healthuc.New(checks...),
	}, nil
}

func openStore(cfg config.DatabaseConfig) (db.Store, error) {
	switch cfg.Driver {
	case "redis":
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Addrs,
			Username: cfg.Username,
			Password: cfg.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		return s, nil
	case "memory":
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// openVectors returns the vector backend and, for remote backends, its health probe.
func openVectors(cfg *config.Config, store db.Store, logger *zap.Logger) (vectorStore, healthuc.Prober, error) {
	switch cfg.Vector.Backend {
	case "qdrant":
		c, err := qdrantrepo.Connect(qdrantrepo.Config{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: cfg.Qdrant.Collection,
		})
		if err != nil {
			return nil, nil, err
		}
		repo := qdrantrepo.New(c, cfg.Qdrant.Collection, logger)
		return repo, repo, nil
	default:
		return chunk.New(store, chunk.Options{
			HNSWM:  cfg.Vector.HNSWM,
			HNSWEF: cfg.Vector.HNSWEFConstruct,
		}), nil, nil
	}
}

// buildEmbedder assembles the decorator chain: OpenAI -> Instrumented -> Cached.
// The base provider is returned separately for health probing.
func buildEmbedder(cfg *config.Config, store db.Store, logger *zap.Logger) (*openai.Embedder, domain.Embedder) {
	const provider = "openai"
	emb := cfg.Embedding
	base := openai.NewEmbedder(&openai.Config{
		APIKey:     emb.APIKey,
		BaseURL:    emb.BaseURL,
		Model:      emb.Model,
		Dimensions: emb.Dimensions,
		Provider:   provider,
		Logger:     logger,
	})

	var embedder domain.Embedder = embeddinguc.NewInstrumentedEmbedder(
		base, provider, emb.Model,
		embeddinguc.Options{BatchSize: emb.BatchSize, Limiter: embeddinguc.NewLimiter(emb.RateLimitRPS)},
		logger,
	)

	// Cache outermost so hits skip throttling.
	if emb.Cache.Enabled {
		ttl := time.Duration(emb.Cache.TTLSec) * time.Second
		embedder = embcache.New(embedder, store, emb.Model, ttl, metrics.EmbeddingCacheTotal, logger)
	}

	logger.Info("Embedder created",
		zap.String("model", emb.Model),
		zap.Int("dimensions", emb.Dimensions),
		zap.Bool("cache", emb.Cache.Enabled),
	)
	return base, embedder
}

// buildGenerator creates one client per provider and routes models between them.
func buildGenerator(cfg config.LLMConfig, logger *zap.Logger) *openai.Router {
	models := make(map[string]*openai.ChatModel, len(cfg.Providers))
	for name, p := range cfg.Providers {
		models[name] = openai.NewChatModel(&openai.ChatConfig{
			APIKey:   p.APIKey,
			BaseURL:  p.BaseURL,
			Provider: name,
			Logger:   logger,
		})
	}

	// Validate guarantees every referenced provider exists.
	routes := make([]openai.Route, 0, len(cfg.Routes))
	for _, rc := range cfg.Routes {
		routes = append(routes, openai.Route{Match: rc.Match, Model: models[rc.Provider]})
	}
	return openai.NewRouter(models[cfg.DefaultProvider], routes...)
}
