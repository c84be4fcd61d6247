package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
		LLM: LLMConfig{
			Providers: map[string]ProviderConfig{"openai": {APIKey: "sk-test"}},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"redis without addrs", func(c *Config) { c.Database.Addrs = nil }, "database.addrs"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "valkey" }, "database.driver"},
		{"unknown backend", func(c *Config) { c.Vector.Backend = "pinecone" }, "vector.backend"},
		{"qdrant without host", func(c *Config) { c.Vector.Backend = "qdrant" }, "qdrant.host"},
		{"overlap too large", func(c *Config) { c.Knowledge.DefaultChunkOverlap = 1000 }, "default_chunk_overlap"},
		{"length unit", func(c *Config) { c.Splitter.LengthUnit = "words" }, "splitter.length_unit"},
		{"default provider", func(c *Config) { c.LLM.DefaultProvider = "azure" }, "llm.default_provider"},
		{"route provider", func(c *Config) {
			c.LLM.Routes = []RouteConfig{{Match: "claude", Provider: "anthropic"}}
		}, "llm.routes[0].provider"},
		{"route match", func(c *Config) {
			c.LLM.Routes = []RouteConfig{{Provider: "openai"}}
		}, "llm.routes[0].match"},
		{"prompt placeholder", func(c *Config) { c.LLM.KnowledgePrompt = "no context here" }, "{{{context}}}"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tc.want)
			}
		})
	}
}

func TestValidate_MemoryDriverNeedsNoAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "memory"
	cfg.Database.Addrs = nil
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.Port != 3000 {
		t.Errorf("expected Port=3000, got %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.WriteTimeoutSec != 0 {
		t.Errorf("expected WriteTimeoutSec=0 for streaming, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Database.Driver != "redis" {
		t.Errorf("expected Driver=redis, got %q", cfg.Database.Driver)
	}
	if cfg.Vector.TopK != 6 {
		t.Errorf("expected TopK=6, got %d", cfg.Vector.TopK)
	}
	if cfg.Knowledge.DefaultChunkSize != 1000 || cfg.Knowledge.DefaultChunkOverlap != 0 {
		t.Errorf("unexpected chunk defaults %d/%d", cfg.Knowledge.DefaultChunkSize, cfg.Knowledge.DefaultChunkOverlap)
	}
	if cfg.Knowledge.ConfigPath != "knowledge.json" {
		t.Errorf("expected ConfigPath=knowledge.json, got %q", cfg.Knowledge.ConfigPath)
	}
	if cfg.LLM.DefaultTemperature != 1 {
		t.Errorf("expected DefaultTemperature=1, got %v", cfg.LLM.DefaultTemperature)
	}
	if !strings.Contains(cfg.LLM.KnowledgePrompt, "{{{context}}}") {
		t.Error("default knowledge prompt must contain the placeholder")
	}
	if cfg.Web.FetchTimeoutSec != 5 || cfg.Search.ResultCount != 1 {
		t.Errorf("unexpected web defaults %d/%d", cfg.Web.FetchTimeoutSec, cfg.Search.ResultCount)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:   HTTPConfig{Port: 8080, ReadTimeoutSec: 5},
		Vector: VectorConfig{TopK: 3, HNSWM: 32},
		Knowledge: KnowledgeConfig{
			ConfigPath:       "/data/knowledge.json",
			DefaultChunkSize: 400,
		},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.Port != 8080 || cfg.HTTP.ReadTimeoutSec != 5 {
		t.Errorf("http overridden: %+v", cfg.HTTP)
	}
	if cfg.Vector.TopK != 3 || cfg.Vector.HNSWM != 32 {
		t.Errorf("vector overridden: %+v", cfg.Vector)
	}
	if cfg.Knowledge.ConfigPath != "/data/knowledge.json" || cfg.Knowledge.DefaultChunkSize != 400 {
		t.Errorf("knowledge overridden: %+v", cfg.Knowledge)
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("KBCHAT_TEST_KEY", "sk-from-env")
	data := []byte(`
http:
  port: 9000
database:
  driver: memory
llm:
  providers:
    openai:
      api_key: ${KBCHAT_TEST_KEY}
      base_url: ${KBCHAT_TEST_UNSET:-https://api.openai.com/v1}
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := cfg.LLM.Providers["openai"]
	if p.APIKey != "sk-from-env" {
		t.Errorf("api key = %q", p.APIKey)
	}
	if p.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("base url = %q", p.BaseURL)
	}
	if cfg.HTTP.Port != 9000 {
		t.Errorf("port = %d", cfg.HTTP.Port)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("http: [")); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := Parse([]byte("database:\n  driver: memory\n")); err == nil {
		t.Fatal("expected validation error without llm providers")
	}
}

func TestSearchConfig_Enabled(t *testing.T) {
	if (SearchConfig{APIKey: "k"}).Enabled() {
		t.Error("expected disabled without engine id")
	}
	if !(SearchConfig{APIKey: "k", EngineID: "cx"}).Enabled() {
		t.Error("expected enabled")
	}
}
