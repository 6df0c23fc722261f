package podcastqa

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type endpoint struct {
	baseURL string
	apiKey  string
	model   string
}

type clientConfig struct {
	driver    string // "valkey", "redis" or "qdrant"
	addrs     []string
	password  string
	qdrantURL string
	qdrantKey string

	collection string
	keyPrefix  string

	embedder         Embedder
	embeddingServer  *endpoint
	vectorDimensions int

	llm            LanguageModel
	llmServer      *endpoint
	llmMaxTokens   int
	llmTemperature float32

	defaultLimit    int
	maxLimit        int
	maxContextChars int
	llmTimeout      time.Duration

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithValkey stores chunks in a Valkey instance with the search module.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "valkey"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedis stores chunks in a Redis Stack instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithQdrant stores chunks in a Qdrant collection reached over REST.
func WithQdrant(url, apiKey string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "qdrant"
		c.qdrantURL = url
		c.qdrantKey = apiKey
	})
}

// WithCollection sets the chunk collection name. Default: podcast_chunks.
func WithCollection(name string) Option {
	return optionFunc(func(c *clientConfig) {
		c.collection = name
	})
}

// WithEmbeddingServer embeds queries through an OpenAI-compatible
// embeddings endpoint.
func WithEmbeddingServer(baseURL, apiKey, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.embeddingServer = &endpoint{baseURL: baseURL, apiKey: apiKey, model: model}
	})
}

// WithEmbedder sets a custom embedding provider. It takes precedence over
// WithEmbeddingServer.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithVectorDimensions sets the expected embedding size. Default: 384.
func WithVectorDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.vectorDimensions = dim
	})
}

// WithOpenAI synthesizes answers through an OpenAI-compatible chat endpoint.
func WithOpenAI(baseURL, apiKey, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.llmServer = &endpoint{baseURL: baseURL, apiKey: apiKey, model: model}
	})
}

// WithLLMParams bounds the answer length and fixes the sampling temperature
// for WithOpenAI. Defaults: 1000 tokens, 0.2.
func WithLLMParams(maxTokens int, temperature float32) Option {
	return optionFunc(func(c *clientConfig) {
		c.llmMaxTokens = maxTokens
		c.llmTemperature = temperature
	})
}

// WithLanguageModel sets a custom language model. It takes precedence over
// WithOpenAI.
func WithLanguageModel(m LanguageModel) Option {
	return optionFunc(func(c *clientConfig) {
		c.llm = m
	})
}

// WithLimits bounds the number of retrieved chunks. Defaults: 5 and 20.
func WithLimits(defaultLimit, maxLimit int) Option {
	return optionFunc(func(c *clientConfig) {
		c.defaultLimit = defaultLimit
		c.maxLimit = maxLimit
	})
}

// WithMaxContextChars sets the context size budget in characters. Default: 6000.
func WithMaxContextChars(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxContextChars = n
	})
}

// WithLLMTimeout bounds each language model call. Default: 30s.
func WithLLMTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.llmTimeout = d
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

func (c *clientConfig) applyDefaults() {
	if c.collection == "" {
		c.collection = "podcast_chunks"
	}
	if c.keyPrefix == "" {
		c.keyPrefix = "podcastqa:"
	}
	if c.vectorDimensions <= 0 {
		c.vectorDimensions = 384
	}
	if c.defaultLimit <= 0 {
		c.defaultLimit = 5
	}
	if c.maxLimit <= 0 {
		c.maxLimit = 20
	}
	if c.llmTimeout <= 0 {
		c.llmTimeout = 30 * time.Second
	}
	if c.llmMaxTokens <= 0 {
		c.llmMaxTokens = 1000
	}
	if c.llmTemperature <= 0 {
		c.llmTemperature = 0.2
	}
}
