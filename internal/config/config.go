package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the kbchat service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Vector    VectorConfig    `yaml:"vector"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Splitter  SplitterConfig  `yaml:"splitter"`
	Web       WebConfig       `yaml:"web"`
	Search    SearchConfig    `yaml:"search"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string        `yaml:"level"` // debug, info, warn, error (default: determined by env)
	File  FileLogConfig `yaml:"file"`
}

// FileLogConfig enables a rotated log file next to stderr output.
type FileLogConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"` // 0 keeps chat streams open
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, memory (default: redis)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// VectorConfig selects the vector backend and retrieval settings.
type VectorConfig struct {
	Backend         string `yaml:"backend"` // store, qdrant (default: store)
	TopK            int    `yaml:"top_k"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

// EmbeddingConfig holds embedding settings.
type EmbeddingConfig struct {
	APIKey       string      `yaml:"api_key"`
	BaseURL      string      `yaml:"base_url"`
	Model        string      `yaml:"model"`
	Dimensions   int         `yaml:"dimensions"`
	BatchSize    int         `yaml:"batch_size"`
	RateLimitRPS float64     `yaml:"rate_limit_rps"` // 0 = unlimited
	Cache        CacheConfig `yaml:"cache"`
}

// CacheConfig controls the embedding cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSec  int  `yaml:"ttl_sec"` // 0 = no expiry
}

// LLMConfig holds chat model providers and prompts.
type LLMConfig struct {
	Providers          map[string]ProviderConfig `yaml:"providers"`
	DefaultProvider    string                    `yaml:"default_provider"`
	Routes             []RouteConfig             `yaml:"routes"`
	DefaultModel       string                    `yaml:"default_model"`
	DefaultTemperature float32                   `yaml:"default_temperature"`
	SystemPrompt       string                    `yaml:"default_system_prompt"`
	KnowledgePrompt    string                    `yaml:"knowledge_prompt"`
}

// ProviderConfig holds an OpenAI-compatible endpoint.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// RouteConfig sends models whose id contains Match to Provider.
type RouteConfig struct {
	Match    string `yaml:"match"`
	Provider string `yaml:"provider"`
}

// KnowledgeConfig holds knowledge base storage settings.
type KnowledgeConfig struct {
	ConfigPath          string `yaml:"config_path"`
	UploadDir           string `yaml:"upload_dir"`
	DebugMetadataPath   string `yaml:"debug_metadata_path"`
	DefaultChunkSize    int    `yaml:"default_chunk_size"`
	DefaultChunkOverlap int    `yaml:"default_chunk_overlap"`
	MaxUploadMB         int    `yaml:"max_upload_mb"`
}

// SplitterConfig selects how chunk length is measured.
type SplitterConfig struct {
	LengthUnit    string `yaml:"length_unit"` // chars, tokens
	TokenEncoding string `yaml:"token_encoding"`
}

// WebConfig holds outbound page fetch settings.
type WebConfig struct {
	FetchTimeoutSec int    `yaml:"fetch_timeout_sec"`
	UserAgent       string `yaml:"user_agent"`
	MaxBodyKB       int    `yaml:"max_body_kb"`
}

// SearchConfig holds Google Custom Search settings.
type SearchConfig struct {
	APIKey      string `yaml:"api_key"`
	EngineID    string `yaml:"engine_id"`
	ResultCount int    `yaml:"result_count"`
}

// Enabled reports whether both credentials are present.
func (s SearchConfig) Enabled() bool {
	return s.APIKey != "" && s.EngineID != ""
}

// DefaultKnowledgePrompt is used when neither the request nor the config carries a template.
const DefaultKnowledgePrompt = `Use the following context to answer the question at the end.
If you don't know the answer, just say that you don't know, don't try to make up an answer.

{{{context}}}`

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${VAR} references first.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 3000
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	c.applyVectorDefaults()
	c.applyEmbeddingDefaults()
	c.applyLLMDefaults()
	c.applyKnowledgeDefaults()
	if c.Splitter.LengthUnit == "" {
		c.Splitter.LengthUnit = "chars"
	}
	if c.Splitter.TokenEncoding == "" {
		c.Splitter.TokenEncoding = "cl100k_base"
	}
	if c.Web.FetchTimeoutSec <= 0 {
		c.Web.FetchTimeoutSec = 5
	}
	if c.Web.UserAgent == "" {
		c.Web.UserAgent = "Mozilla/5.0 (compatible; kbchat/1.0)"
	}
	if c.Web.MaxBodyKB <= 0 {
		c.Web.MaxBodyKB = 2048
	}
	if c.Search.ResultCount <= 0 {
		c.Search.ResultCount = 1
	}
}

func (c *Config) applyVectorDefaults() {
	if c.Vector.Backend == "" {
		c.Vector.Backend = "store"
	}
	if c.Vector.TopK <= 0 {
		c.Vector.TopK = 6
	}
	if c.Vector.HNSWM <= 0 {
		c.Vector.HNSWM = 16
	}
	if c.Vector.HNSWEFConstruct <= 0 {
		c.Vector.HNSWEFConstruct = 200
	}
	if c.Qdrant.Port <= 0 {
		c.Qdrant.Port = 6334
	}
	if c.Qdrant.Collection == "" {
		c.Qdrant.Collection = "kbchat"
	}
}

func (c *Config) applyEmbeddingDefaults() {
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-ada-002"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 512
	}
}

func (c *Config) applyLLMDefaults() {
	if c.LLM.DefaultProvider == "" {
		c.LLM.DefaultProvider = "openai"
	}
	if c.LLM.DefaultModel == "" {
		c.LLM.DefaultModel = "gpt-3.5-turbo"
	}
	if c.LLM.DefaultTemperature == 0 {
		c.LLM.DefaultTemperature = 1
	}
	if c.LLM.SystemPrompt == "" {
		c.LLM.SystemPrompt = "You are a helpful assistant."
	}
	if c.LLM.KnowledgePrompt == "" {
		c.LLM.KnowledgePrompt = DefaultKnowledgePrompt
	}
}

func (c *Config) applyKnowledgeDefaults() {
	if c.Knowledge.ConfigPath == "" {
		c.Knowledge.ConfigPath = "knowledge.json"
	}
	if c.Knowledge.UploadDir == "" {
		c.Knowledge.UploadDir = "uploads"
	}
	if c.Knowledge.DefaultChunkSize <= 0 {
		c.Knowledge.DefaultChunkSize = 1000
	}
	if c.Knowledge.MaxUploadMB <= 0 {
		c.Knowledge.MaxUploadMB = 50
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "redis":
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", c.Database.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be \"redis\" or \"memory\", got %q", c.Database.Driver)
	}
	switch c.Vector.Backend {
	case "store":
	case "qdrant":
		if c.Qdrant.Host == "" {
			return fmt.Errorf("qdrant.host is required for vector.backend \"qdrant\"")
		}
	default:
		return fmt.Errorf("vector.backend must be \"store\" or \"qdrant\", got %q", c.Vector.Backend)
	}
	if c.Knowledge.DefaultChunkOverlap < 0 || c.Knowledge.DefaultChunkOverlap >= c.Knowledge.DefaultChunkSize {
		return fmt.Errorf(
			"knowledge.default_chunk_overlap must be within [0, %d), got %d",
			c.Knowledge.DefaultChunkSize, c.Knowledge.DefaultChunkOverlap,
		)
	}
	switch c.Splitter.LengthUnit {
	case "chars", "tokens":
	default:
		return fmt.Errorf("splitter.length_unit must be \"chars\" or \"tokens\", got %q", c.Splitter.LengthUnit)
	}
	if _, ok := c.LLM.Providers[c.LLM.DefaultProvider]; !ok {
		return fmt.Errorf("llm.default_provider %q is not configured in llm.providers", c.LLM.DefaultProvider)
	}
	for i, r := range c.LLM.Routes {
		if r.Match == "" {
			return fmt.Errorf("llm.routes[%d].match is required", i)
		}
		if _, ok := c.LLM.Providers[r.Provider]; !ok {
			return fmt.Errorf("llm.routes[%d].provider %q is not configured in llm.providers", i, r.Provider)
		}
	}
	if !strings.Contains(c.LLM.KnowledgePrompt, "{{{context}}}") {
		return fmt.Errorf("llm.knowledge_prompt must contain the {{{context}}} placeholder")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
