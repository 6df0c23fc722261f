// Package embedding owns the query embedder lifecycle: lazy single-flight
// model load, fail-fast after a failed load, and state reporting.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/podcastqa/internal/domain"
	"github.com/kailas-cloud/podcastqa/internal/metrics"
)

const (
	// DefaultBatchSize is the maximum number of texts sent in one batch request.
	DefaultBatchSize = 64
	// DefaultLoadTimeout bounds the probe embedding performed on first use.
	DefaultLoadTimeout = 60 * time.Second

	// probeText exercises both the corpus language and English.
	probeText = "Проверка модели / model check"
)

type loadState int

const (
	stateNotLoaded loadState = iota
	stateLoaded
	stateFailed
)

// Options configures a LazyEmbedder.
type Options struct {
	Model string
	// Dimensions is the expected vector size; zero accepts what the probe returns.
	Dimensions  int
	BatchSize   int
	LoadTimeout time.Duration
	Health      domain.HealthReporter
}

// LazyEmbedder defers the model load to the first call. Concurrent first
// callers share one load. A failed load is sticky: later calls return
// domain.ErrModelUnavailable without touching the model again.
type LazyEmbedder struct {
	inner       domain.Embedder
	model       string
	want        int
	batchSize   int
	loadTimeout time.Duration
	health      domain.HealthReporter
	logger      *zap.Logger

	group singleflight.Group

	mu      sync.RWMutex
	state   loadState
	dim     int
	loadErr error
}

// NewLazyEmbedder wraps inner with lazy load and state tracking.
func NewLazyEmbedder(inner domain.Embedder, opts Options, logger *zap.Logger) *LazyEmbedder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	if opts.Health == nil {
		opts.Health = domain.NopHealthReporter{}
	}
	return &LazyEmbedder{
		inner:       inner,
		model:       opts.Model,
		want:        opts.Dimensions,
		batchSize:   opts.BatchSize,
		loadTimeout: opts.LoadTimeout,
		health:      opts.Health,
		logger:      logger,
	}
}

// Model returns the model identifier.
func (e *LazyEmbedder) Model() string { return e.model }

// Dimension returns the vector size observed at load, or 0 before load.
func (e *LazyEmbedder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dim
}

// Loaded reports whether the model has been loaded successfully.
func (e *LazyEmbedder) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state == stateLoaded
}

// Load triggers the model load if it has not happened yet and waits for it.
func (e *LazyEmbedder) Load(ctx context.Context) error {
	e.mu.RLock()
	state, loadErr := e.state, e.loadErr
	e.mu.RUnlock()

	switch state {
	case stateLoaded:
		return nil
	case stateFailed:
		return loadErr
	}

	// The load outlives a cancelled first caller so the others still get it.
	ch := e.group.DoChan("load", func() (any, error) {
		return nil, e.load(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return stageErr(ctx.Err())
	}
}

func (e *LazyEmbedder) load(ctx context.Context) error {
	e.mu.RLock()
	if e.state != stateNotLoaded {
		defer e.mu.RUnlock()
		return e.loadErr
	}
	e.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, e.loadTimeout)
	defer cancel()

	e.logger.Info("Loading embedding model", zap.String("model", e.model))
	start := time.Now()

	res, err := e.inner.Embed(ctx, probeText)
	if err == nil && len(res.Embedding) == 0 {
		err = errors.New("probe returned an empty vector")
	}
	if err == nil {
		err = domain.CheckDimension(res.Embedding, e.want)
	}

	duration := time.Since(start)
	metrics.EmbeddingModelLoadDuration.Observe(duration.Seconds())

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.state = stateFailed
		e.loadErr = fmt.Errorf("%w: load %s: %w", domain.ErrModelUnavailable, e.model, err)
		e.health.MarkFailed(domain.ComponentEmbedder, err)
		e.logger.Error("Embedding model load failed",
			zap.String("model", e.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return e.loadErr
	}

	e.state = stateLoaded
	e.dim = len(res.Embedding)
	e.health.MarkReady(domain.ComponentEmbedder)
	e.logger.Info("Embedding model loaded",
		zap.String("model", e.model),
		zap.Int("dimensions", e.dim),
		zap.Duration("duration", duration),
	)
	return nil
}

// Embed loads the model on first use and embeds text.
func (e *LazyEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := e.Load(ctx); err != nil {
		return domain.EmbeddingResult{}, err
	}

	res, err := e.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, e.callFailed(ctx, err)
	}
	e.health.MarkReady(domain.ComponentEmbedder)
	return res, nil
}

// BatchEmbed loads the model on first use and embeds texts in sub-batches
// of at most BatchSize.
func (e *LazyEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	if err := e.Load(ctx); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}
	for offset := 0; offset < len(texts); offset += e.batchSize {
		end := min(offset+e.batchSize, len(texts))

		res, err := domain.BatchEmbed(ctx, e.inner, texts[offset:end])
		if err != nil {
			e.logger.Error("Batch embedding request failed",
				zap.String("model", e.model),
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", end-offset),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, e.callFailed(ctx, err)
		}
		if len(res.Embeddings) != end-offset {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("%w: batch at %d returned %d vectors for %d texts",
				domain.ErrModelUnavailable, offset, len(res.Embeddings), end-offset)
		}

		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}

	e.health.MarkReady(domain.ComponentEmbedder)
	return out, nil
}

// callFailed classifies a post-load failure. Timeouts keep the current state,
// other failures mark the embedder degraded.
func (e *LazyEmbedder) callFailed(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: embed: %w", domain.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("embed: %w", err)
	}
	e.health.MarkDegraded(domain.ComponentEmbedder, err)
	return fmt.Errorf("%w: embed: %w", domain.ErrModelUnavailable, err)
}

func stageErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: waiting for embedding model: %w", domain.ErrTimeout, err)
	}
	return fmt.Errorf("waiting for embedding model: %w", err)
}
