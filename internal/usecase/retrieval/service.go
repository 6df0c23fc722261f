// Package retrieval composes the embedder and the vector index into a
// ranked chunk retriever.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/podcastqa/internal/domain"
	"github.com/kailas-cloud/podcastqa/internal/metrics"
)

// Options holds per-stage timeouts. Zero disables the timeout.
type Options struct {
	EmbedTimeout  time.Duration
	SearchTimeout time.Duration
	Health        domain.HealthReporter
}

// Service embeds a query and searches the collection.
type Service struct {
	embed         Embedder
	index         Index
	embedTimeout  time.Duration
	searchTimeout time.Duration
	health        domain.HealthReporter
	logger        *zap.Logger
}

// New creates a retrieval service.
func New(embed Embedder, index Index, opts Options, logger *zap.Logger) *Service {
	if opts.Health == nil {
		opts.Health = domain.NopHealthReporter{}
	}
	return &Service{
		embed:         embed,
		index:         index,
		embedTimeout:  opts.EmbedTimeout,
		searchTimeout: opts.SearchTimeout,
		health:        opts.Health,
		logger:        logger,
	}
}

// Retrieve returns at most limit chunks ordered by non-increasing score,
// ties by ingestion order. An empty collection yields an empty slice.
func (s *Service) Retrieve(
	ctx context.Context, query string, limit int, filter domain.SearchFilter,
) ([]domain.ScoredChunk, error) {
	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	chunks, err := s.search(ctx, vector, limit, filter)
	if err != nil {
		return nil, err
	}

	chunks = domain.RankChunks(chunks)
	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

func (s *Service) embedQuery(ctx context.Context, query string) ([]float32, error) {
	ctx, cancel := withTimeout(ctx, s.embedTimeout)
	defer cancel()

	start := time.Now()
	res, err := s.embed.Embed(ctx, query)
	metrics.RAGStageDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", timeoutErr(ctx, err))
	}

	domain.UsageFromContext(ctx).AddEmbeddingTokens(res.TotalTokens)
	return res.Embedding, nil
}

func (s *Service) search(
	ctx context.Context, vector []float32, limit int, filter domain.SearchFilter,
) ([]domain.ScoredChunk, error) {
	ctx, cancel := withTimeout(ctx, s.searchTimeout)
	defer cancel()

	start := time.Now()
	chunks, err := s.index.Search(ctx, vector, limit, filter)
	metrics.RAGStageDuration.WithLabelValues("search").Observe(time.Since(start).Seconds())
	if err != nil {
		err = timeoutErr(ctx, err)
		s.reportIndexFailure(err)
		return nil, fmt.Errorf("search index: %w", err)
	}

	s.health.MarkReady(domain.ComponentVectorIndex)
	return chunks, nil
}

func (s *Service) reportIndexFailure(err error) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, context.Canceled):
		return
	case errors.Is(err, domain.ErrIndexUnavailable), errors.Is(err, domain.ErrVectorDimMismatch):
		s.health.MarkFailed(domain.ComponentVectorIndex, err)
	default:
		s.health.MarkDegraded(domain.ComponentVectorIndex, err)
	}
	s.logger.Warn("Vector search failed", zap.Error(err))
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// timeoutErr tags a stage failure caused by the stage deadline with ErrTimeout.
func timeoutErr(ctx context.Context, err error) error {
	if errors.Is(err, domain.ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return err
}
