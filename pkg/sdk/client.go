package podcastqa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	dbRedis "github.com/kailas-cloud/podcastqa/internal/db/redis"
	"github.com/kailas-cloud/podcastqa/internal/domain"
	"github.com/kailas-cloud/podcastqa/internal/repository/chunk"
	"github.com/kailas-cloud/podcastqa/internal/repository/qdrant"
	"github.com/kailas-cloud/podcastqa/internal/retry"
	openaiTransport "github.com/kailas-cloud/podcastqa/internal/transport/openai"
	"github.com/kailas-cloud/podcastqa/internal/usecase/contextasm"
	embeddinguc "github.com/kailas-cloud/podcastqa/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/podcastqa/internal/usecase/health"
	raguc "github.com/kailas-cloud/podcastqa/internal/usecase/rag"
	"github.com/kailas-cloud/podcastqa/internal/usecase/retrieval"
	"github.com/kailas-cloud/podcastqa/internal/usecase/synthesis"
)

const defaultReadinessTimeout = 10 * time.Second

var errNoLanguageModel = errors.New(
	"podcastqa: language model not configured (use WithOpenAI or WithLanguageModel)",
)

// Internal interfaces, replaced by fakes in tests.
type pipeline interface {
	Answer(ctx context.Context, query string, limit int) (domain.AnswerResult, error)
	SearchOnly(ctx context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.SourceCitation, error)
	DefaultLimit() int
}

type healthSource interface {
	Status(ctx context.Context, probe bool) domain.HealthStatus
}

// Client is the podcastqa library entry point.
type Client struct {
	pipeline pipeline
	health   healthSource
	hasLLM   bool
	closeFn  func()
	obs      *observer
}

// New creates a Client and waits for the vector store to answer.
// The provided context is used for the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}
	cfg.applyDefaults()

	if cfg.embedder == nil && cfg.embeddingServer == nil {
		return nil, errors.New("podcastqa: embedder required (use WithEmbeddingServer or WithEmbedder)")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	idx, closeFn, err := openIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c := wireClient(idx, cfg)
	c.closeFn = closeFn
	c.obs = obs
	return c, nil
}

type vectorIndex interface {
	domain.VectorIndex
	healthuc.CollectionChecker
}

func openIndex(ctx context.Context, cfg *clientConfig) (vectorIndex, func(), error) {
	policy := retry.Policy{MaxRetries: 1, Backoff: 200 * time.Millisecond}

	switch cfg.driver {
	case "valkey", "redis":
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("podcastqa: create %s store: %w", cfg.driver, err)
		}
		if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("podcastqa: database not ready: %w", err)
		}
		repo := chunk.New(store, chunk.Options{
			KeyPrefix:  cfg.keyPrefix,
			Collection: cfg.collection,
			Dimensions: cfg.vectorDimensions,
			MaxLimit:   cfg.maxLimit,
			Retry:      policy,
		}, zap.NewNop())
		return repo, store.Close, nil
	case "qdrant":
		repo := qdrant.New(qdrant.Config{
			URL:        cfg.qdrantURL,
			APIKey:     cfg.qdrantKey,
			Collection: cfg.collection,
			Dimensions: cfg.vectorDimensions,
			MaxLimit:   cfg.maxLimit,
			Retry:      policy,
		}, zap.NewNop())
		return repo, func() {}, nil
	case "":
		return nil, nil, errors.New("podcastqa: vector store required (use WithValkey, WithRedis or WithQdrant)")
	default:
		return nil, nil, fmt.Errorf("podcastqa: unknown driver %q", cfg.driver)
	}
}

func wireClient(idx vectorIndex, cfg *clientConfig) *Client {
	logger := zap.NewNop()
	tracker := healthuc.NewTracker(healthuc.DefaultProbeTimeout, logger,
		domain.ComponentEmbedder, domain.ComponentVectorIndex, domain.ComponentLLM)
	tracker.SetProbe(domain.ComponentVectorIndex, healthuc.IndexProbe(idx))
	tracker.SetDetail(domain.ComponentVectorIndex, "collection", cfg.collection)

	var base domain.Embedder
	model := "custom"
	if cfg.embedder != nil {
		base = &embedderAdapter{inner: cfg.embedder}
	} else {
		model = cfg.embeddingServer.model
		base = openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
			APIKey:  cfg.embeddingServer.apiKey,
			BaseURL: cfg.embeddingServer.baseURL,
			Model:   model,
			Logger:  logger,
		})
	}
	tracker.SetDetail(domain.ComponentEmbedder, "model", model)
	embedder := embeddinguc.NewLazyEmbedder(base, embeddinguc.Options{
		Model:      model,
		Dimensions: cfg.vectorDimensions,
		Health:     tracker,
	}, logger)

	retriever := retrieval.New(embedder, idx, retrieval.Options{
		EmbedTimeout:  10 * time.Second,
		SearchTimeout: 5 * time.Second,
		Health:        tracker,
	}, logger)

	var llm domain.LanguageModel = noLanguageModel{}
	switch {
	case cfg.llm != nil:
		llm = &llmAdapter{inner: cfg.llm}
	case cfg.llmServer != nil:
		chat := openaiTransport.NewChat(&openaiTransport.ChatConfig{
			APIKey:      cfg.llmServer.apiKey,
			BaseURL:     cfg.llmServer.baseURL,
			Model:       cfg.llmServer.model,
			MaxTokens:   cfg.llmMaxTokens,
			Temperature: cfg.llmTemperature,
			Logger:      logger,
		})
		tracker.SetProbe(domain.ComponentLLM, healthuc.ModelProbe(chat, openaiTransport.IsAuthError))
		tracker.SetDetail(domain.ComponentLLM, "model", cfg.llmServer.model)
		llm = chat
	}

	synthesizer := synthesis.New(llm, synthesis.Options{
		Timeout:   cfg.llmTimeout,
		Retry:     retry.Policy{MaxRetries: 1, Backoff: 500 * time.Millisecond},
		Transient: openaiTransport.IsTransient,
		Fatal:     openaiTransport.IsAuthError,
		Health:    tracker,
	}, logger)

	p := raguc.New(retriever, contextasm.New(cfg.maxContextChars), synthesizer, raguc.Options{
		DefaultLimit: cfg.defaultLimit,
		MaxLimit:     cfg.maxLimit,
	}, logger)

	return &Client{
		pipeline: p,
		health:   tracker,
		hasLLM:   cfg.llm != nil || cfg.llmServer != nil,
	}
}

// Close releases all resources.
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// Ask answers query from the top limit transcript chunks. A limit of zero
// selects the default.
func (c *Client) Ask(ctx context.Context, query string, limit int) (ans Answer, err error) {
	start := time.Now()
	defer func() { c.obs.observe("ask", start, err) }()

	if !c.hasLLM {
		return Answer{}, errNoLanguageModel
	}
	if limit == 0 {
		limit = c.pipeline.DefaultLimit()
	}
	res, err := c.pipeline.Answer(ctx, query, limit)
	if err != nil {
		return Answer{}, fmt.Errorf("ask: %w", err)
	}
	return Answer{Query: res.Query, Text: res.Answer, Sources: toSources(res.Sources)}, nil
}

// Search returns the closest chunks without generating an answer. An empty
// tag searches all podcasts.
func (c *Client) Search(ctx context.Context, query string, limit int, tag string) (sources []Source, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search", start, err) }()

	if limit == 0 {
		limit = c.pipeline.DefaultLimit()
	}
	res, err := c.pipeline.SearchOnly(ctx, query, limit, domain.SearchFilter{Tag: tag})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return toSources(res), nil
}

// Health probes the store and the language model and reports component states.
func (c *Client) Health(ctx context.Context) HealthStatus {
	st := c.health.Status(ctx, true)
	out := HealthStatus{
		Status:     string(st.Status),
		Components: make(map[string]ComponentHealth, len(st.Components)),
	}
	for name, comp := range st.Components {
		out.Components[name] = ComponentHealth{
			State:     string(comp.State),
			LastError: comp.LastError,
			Details:   comp.Details,
		}
	}
	return out
}

func toSources(in []domain.SourceCitation) []Source {
	out := make([]Source, len(in))
	for i, s := range in {
		out[i] = Source{Title: s.Title, Tag: s.Tag, Score: s.Score, Preview: s.ContentPreview}
	}
	return out
}

// embedderAdapter wraps public Embedder to satisfy internal domain.Embedder.
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

// llmAdapter wraps public LanguageModel to satisfy domain.LanguageModel.
type llmAdapter struct {
	inner LanguageModel
}

func (a *llmAdapter) Complete(ctx context.Context, req domain.Completion) (domain.CompletionResult, error) {
	text, err := a.inner.Complete(ctx, req.System, req.Prompt)
	if err != nil {
		return domain.CompletionResult{}, fmt.Errorf("complete: %w", err)
	}
	return domain.CompletionResult{Text: text}, nil
}

// noLanguageModel stands in when only search is used.
type noLanguageModel struct{}

func (noLanguageModel) Complete(context.Context, domain.Completion) (domain.CompletionResult, error) {
	return domain.CompletionResult{}, errNoLanguageModel
}
