package kbchat

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver   string // "redis" or "memory"
	addrs    []string
	username string
	password string

	embedder Embedder
	model    ChatModel

	chunkSize       int
	topK            int
	hnswM           int
	hnswEFConstruct int

	defaultModel    string
	systemPrompt    string
	knowledgePrompt string

	httpClient *http.Client
	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithRedis stores vectors in a Redis 8+ instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedisACL is WithRedis for servers with ACL users.
func WithRedisACL(addr, username, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.username = username
		c.password = password
	})
}

// WithMemory keeps vectors in process. Everything is lost on Close.
func WithMemory() Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "memory"
		c.addrs = nil
	})
}

// WithEmbedder sets the embedding provider. Required.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithChatModel sets the model that answers questions.
// Without it the client only ingests.
func WithChatModel(m ChatModel) Option {
	return optionFunc(func(c *clientConfig) {
		c.model = m
	})
}

// WithChunkSize sets the default chunk size for Ingest. Default: 1000.
func WithChunkSize(size int) Option {
	return optionFunc(func(c *clientConfig) {
		c.chunkSize = size
	})
}

// WithTopK sets how many chunks are retrieved per question. Default: 6.
func WithTopK(k int) Option {
	return optionFunc(func(c *clientConfig) {
		c.topK = k
	})
}

// WithHNSW configures HNSW index parameters (M and EF construction).
func WithHNSW(m, efConstruct int) Option {
	return optionFunc(func(c *clientConfig) {
		c.hnswM = m
		c.hnswEFConstruct = efConstruct
	})
}

// WithDefaultModel sets the model id used when a request names none.
func WithDefaultModel(model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.defaultModel = model
	})
}

// WithSystemPrompt replaces the default system prompt of plain chat.
func WithSystemPrompt(prompt string) Option {
	return optionFunc(func(c *clientConfig) {
		c.systemPrompt = prompt
	})
}

// WithKnowledgePrompt replaces the knowledge prompt template.
// It must contain the {{{context}}} placeholder.
func WithKnowledgePrompt(template string) Option {
	return optionFunc(func(c *clientConfig) {
		c.knowledgePrompt = template
	})
}

// WithHTTPClient sets the client used to fetch pages for "/s" questions.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *clientConfig) {
		c.httpClient = hc
	})
}

// WithLogger enables structured logging for client operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers client metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
