package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Database drivers.
const (
	DriverValkey = "valkey"
	DriverRedis  = "redis"
	DriverQdrant = "qdrant"
)

// Config holds the podcastqa configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Collection CollectionConfig `yaml:"collection"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	LLM        LLMConfig        `yaml:"llm"`
	RAG        RAGConfig        `yaml:"rag"`
	Health     HealthConfig     `yaml:"health"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	ShutdownSec     int      `yaml:"shutdown_timeout_sec"`
	StaticDir       string   `yaml:"static_dir"` // browser UI, served at / when set
	CORSOrigins     []string `yaml:"cors_origins"`
}

// DatabaseConfig holds vector store connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis, qdrant (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	QdrantURL        string   `yaml:"qdrant_url"`
	QdrantAPIKey     string   `yaml:"qdrant_api_key"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	MaxRetries       int      `yaml:"max_retries"`
	RetryBackoffMs   int      `yaml:"retry_backoff_ms"`
}

// CollectionConfig describes the chunk collection.
type CollectionConfig struct {
	Name            string `yaml:"name"`
	KeyPrefix       string `yaml:"key_prefix"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
}

// EmbeddingConfig holds embedding model settings.
type EmbeddingConfig struct {
	BaseURL             string `yaml:"base_url"`
	APIKey              string `yaml:"api_key"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	QueryInstruction    string `yaml:"query_instruction"`
	DocumentInstruction string `yaml:"document_instruction"`
	Cache               bool   `yaml:"cache"`
	BatchSize           int    `yaml:"batch_size"`
}

// LLMConfig holds language model settings.
type LLMConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    float32       `yaml:"temperature"` // 0 = default
	MaxRetries     int           `yaml:"max_retries"`
	RetryBackoffMs int           `yaml:"retry_backoff_ms"`
	Breaker        BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the LLM circuit breaker.
type BreakerConfig struct {
	MaxFailures    uint32 `yaml:"max_failures"` // consecutive failures before opening
	OpenTimeoutSec int    `yaml:"open_timeout_sec"`
}

// RAGConfig bounds the query pipeline.
type RAGConfig struct {
	DefaultLimit    int `yaml:"default_limit"`
	MaxLimit        int `yaml:"max_limit"`
	MaxContextChars int `yaml:"max_context_chars"`
	MaxQueryChars   int `yaml:"max_query_chars"`
	EmbedTimeoutMs  int `yaml:"embed_timeout_ms"`
	SearchTimeoutMs int `yaml:"search_timeout_ms"`
	LLMTimeoutMs    int `yaml:"llm_timeout_ms"`
}

// HealthConfig controls /api/health probing.
type HealthConfig struct {
	Probe          bool `yaml:"probe"`
	ProbeTimeoutMs int  `yaml:"probe_timeout_ms"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file in the working directory is loaded first, without overriding
// variables that are already set.
func Load(env string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML config bytes, expanding ${VAR} references.
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

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	c.applyHTTPDefaults()
	c.applyStoreDefaults()
	c.applyModelDefaults()
	c.applyRAGDefaults()
}

func (c *Config) applyHTTPDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8000
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 90
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if len(c.HTTP.CORSOrigins) == 0 {
		c.HTTP.CORSOrigins = []string{"*"}
	}
}

func (c *Config) applyStoreDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverValkey
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.MaxRetries < 0 {
		c.Database.MaxRetries = 0
	} else if c.Database.MaxRetries == 0 {
		c.Database.MaxRetries = 1
	}
	if c.Database.RetryBackoffMs <= 0 {
		c.Database.RetryBackoffMs = 200
	}
	if c.Collection.Name == "" {
		c.Collection.Name = "podcast_chunks"
	}
	if c.Collection.KeyPrefix == "" {
		c.Collection.KeyPrefix = "podcastqa:"
	}
	if c.Collection.HNSWM <= 0 {
		c.Collection.HNSWM = 16
	}
	if c.Collection.HNSWEFConstruct <= 0 {
		c.Collection.HNSWEFConstruct = 200
	}
}

func (c *Config) applyModelDefaults() {
	if c.Embedding.Model == "" {
		c.Embedding.Model = "paraphrase-multilingual-MiniLM-L12-v2"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 384
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 64
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 1000
	}
	if c.LLM.Temperature <= 0 {
		c.LLM.Temperature = 0.2
	}
	if c.LLM.MaxRetries < 0 {
		c.LLM.MaxRetries = 0
	} else if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 1
	}
	if c.LLM.RetryBackoffMs <= 0 {
		c.LLM.RetryBackoffMs = 500
	}
	if c.LLM.Breaker.MaxFailures == 0 {
		c.LLM.Breaker.MaxFailures = 5
	}
	if c.LLM.Breaker.OpenTimeoutSec <= 0 {
		c.LLM.Breaker.OpenTimeoutSec = 30
	}
}

func (c *Config) applyRAGDefaults() {
	if c.RAG.DefaultLimit <= 0 {
		c.RAG.DefaultLimit = 5
	}
	if c.RAG.MaxLimit <= 0 {
		c.RAG.MaxLimit = 20
	}
	if c.RAG.MaxContextChars <= 0 {
		c.RAG.MaxContextChars = 6000
	}
	if c.RAG.MaxQueryChars <= 0 {
		c.RAG.MaxQueryChars = 2000
	}
	if c.RAG.EmbedTimeoutMs <= 0 {
		c.RAG.EmbedTimeoutMs = 10000
	}
	if c.RAG.SearchTimeoutMs <= 0 {
		c.RAG.SearchTimeoutMs = 5000
	}
	if c.RAG.LLMTimeoutMs <= 0 {
		c.RAG.LLMTimeoutMs = 30000
	}
	if c.Health.ProbeTimeoutMs <= 0 {
		c.Health.ProbeTimeoutMs = 1000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case DriverValkey, DriverRedis:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", c.Database.Driver)
		}
	case DriverQdrant:
		if c.Database.QdrantURL == "" {
			return fmt.Errorf("database.qdrant_url is required for driver %q", DriverQdrant)
		}
	default:
		return fmt.Errorf("database.driver must be one of valkey, redis, qdrant, got %q", c.Database.Driver)
	}
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url is required")
	}
	if c.RAG.DefaultLimit > c.RAG.MaxLimit {
		return fmt.Errorf("rag.default_limit (%d) must not exceed rag.max_limit (%d)",
			c.RAG.DefaultLimit, c.RAG.MaxLimit)
	}
	if c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be in (0, 2], got %g", c.LLM.Temperature)
	}
	return nil
}

// EmbedTimeout returns the per-call embedding timeout.
func (r RAGConfig) EmbedTimeout() time.Duration { return ms(r.EmbedTimeoutMs) }

// SearchTimeout returns the per-call vector search timeout.
func (r RAGConfig) SearchTimeout() time.Duration { return ms(r.SearchTimeoutMs) }

// LLMTimeout returns the per-call language model timeout.
func (r RAGConfig) LLMTimeout() time.Duration { return ms(r.LLMTimeoutMs) }

// ProbeTimeout returns the health probe timeout.
func (h HealthConfig) ProbeTimeout() time.Duration { return ms(h.ProbeTimeoutMs) }

// RetryBackoff returns the delay before the first store retry.
func (d DatabaseConfig) RetryBackoff() time.Duration { return ms(d.RetryBackoffMs) }

// RetryBackoff returns the delay before the first LLM retry.
func (l LLMConfig) RetryBackoff() time.Duration { return ms(l.RetryBackoffMs) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

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
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
