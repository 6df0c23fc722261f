// Package chunk stores podcast chunks as Valkey/Redis hashes and searches
// them through an FT vector index.
package chunk

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/podcastqa/internal/db"
	"github.com/kailas-cloud/podcastqa/internal/domain"
	"github.com/kailas-cloud/podcastqa/internal/retry"
)

// Hash field names.
const (
	fieldTitle   = "title"
	fieldTag     = "tag"
	fieldContent = "__content"
	fieldSeq     = "__seq"
	fieldVector  = "__vector"
)

var returnFields = []string{fieldTitle, fieldTag, fieldContent, fieldSeq}

// store is the consumer interface for chunk storage (ISP).
type store interface {
	Ping(ctx context.Context) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Options configures the repository.
type Options struct {
	KeyPrefix  string
	Collection string
	// Dimensions is the vector size of the collection; 0 skips the check.
	Dimensions int
	MaxLimit   int
	HNSW       HNSWConfig
	Retry      retry.Policy
	// Requests counts store calls by op and status (optional).
	Requests *prometheus.CounterVec
}

// Repo implements domain.VectorIndex on a db.Store.
type Repo struct {
	store  store
	opts   Options
	logger *zap.Logger
}

var _ domain.VectorIndex = (*Repo)(nil)

// New creates a chunk repository.
func New(s store, opts Options, logger *zap.Logger) *Repo {
	return &Repo{store: s, opts: opts, logger: logger}
}

// Collection returns the configured collection name.
func (r *Repo) Collection() string { return r.opts.Collection }

// Search runs a KNN query against the collection.
func (r *Repo) Search(
	ctx context.Context, vector []float32, limit int, filter domain.SearchFilter,
) ([]domain.ScoredChunk, error) {
	if limit < 1 || (r.opts.MaxLimit > 0 && limit > r.opts.MaxLimit) {
		return nil, domain.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", r.opts.MaxLimit))
	}
	if err := domain.CheckDimension(vector, r.opts.Dimensions); err != nil {
		return nil, err
	}

	q := &db.KNNQuery{
		IndexName:    indexName(r.opts.KeyPrefix, r.opts.Collection),
		VectorField:  fieldVector,
		Vector:       vector,
		K:            limit,
		ReturnFields: returnFields,
	}
	if filter.Tag != "" {
		q.Filters = []db.TagFilter{{Field: fieldTag, Value: filter.Tag}}
	}

	var sr *db.SearchResult
	err := r.withRetry(ctx, "search", func(ctx context.Context) error {
		var err error
		sr, err = r.store.SearchKNN(ctx, q)
		return err
	})
	if errors.Is(err, db.ErrIndexNotFound) {
		r.logger.Debug("Collection index missing, returning no results",
			zap.String("collection", r.opts.Collection))
		return nil, nil
	}
	if err != nil {
		return nil, classify("search "+r.opts.Collection, err)
	}

	return r.toScoredChunks(sr, limit), nil
}

// Upsert stores chunks in a single pipelined round-trip.
func (r *Repo) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		if c.ID == "" {
			return domain.NewValidationError("id", "is required")
		}
		if err := domain.CheckDimension(c.Vector, r.opts.Dimensions); err != nil {
			return fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		items[i] = db.HashSetItem{
			Key: chunkKey(r.opts.KeyPrefix, r.opts.Collection, c.ID),
			Fields: map[string]string{
				fieldTitle:   c.Title,
				fieldTag:     c.Tag,
				fieldContent: c.Content,
				fieldSeq:     strconv.FormatInt(c.Seq, 10),
				fieldVector:  db.EncodeVector(c.Vector),
			},
		}
	}

	err := r.withRetry(ctx, "upsert", func(ctx context.Context) error {
		return r.store.HSetMulti(ctx, items)
	})
	if err != nil {
		return classify("upsert "+r.opts.Collection, err)
	}
	return nil
}

// EnsureCollection creates the FT index for name unless it exists.
// Only cosine distance is supported by this backend's score mapping.
func (r *Repo) EnsureCollection(ctx context.Context, name string, dim int, metric domain.Distance) error {
	if metric != domain.DistanceCosine {
		return domain.NewValidationError("distance", fmt.Sprintf("%q is not supported, use cosine", metric))
	}

	def, err := buildIndex(r.opts.KeyPrefix, name, dim, r.opts.HNSW)
	if err != nil {
		return fmt.Errorf("build index %s: %w", name, err)
	}

	var exists bool
	err = r.withRetry(ctx, "index_info", func(ctx context.Context) error {
		var err error
		exists, err = r.store.IndexExists(ctx, def.Name)
		return err
	})
	if err != nil {
		return classify("index info "+name, err)
	}
	if exists {
		r.logger.Info("Collection already exists", zap.String("collection", name))
		return nil
	}

	err = r.withRetry(ctx, "create_index", func(ctx context.Context) error {
		return r.store.CreateIndex(ctx, def)
	})
	if err != nil && !errors.Is(err, db.ErrIndexExists) {
		return classify("create index "+name, err)
	}

	r.logger.Info("Collection created",
		zap.String("collection", name),
		zap.Int("dimensions", dim),
		zap.String("distance", string(metric)),
	)
	return nil
}

// Ping checks store connectivity without retrying.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		r.count("ping", err)
		return classify("ping", err)
	}
	r.count("ping", nil)
	return nil
}

// HasCollection reports whether the collection index exists.
func (r *Repo) HasCollection(ctx context.Context) (bool, error) {
	ok, err := r.store.IndexExists(ctx, indexName(r.opts.KeyPrefix, r.opts.Collection))
	if err != nil {
		return false, classify("index info", err)
	}
	return ok, nil
}

// withRetry retries connection-level failures once more per policy.
func (r *Repo) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := retry.Do(ctx, r.opts.Retry, db.IsConnectionError, func(ctx context.Context) error {
		err := fn(ctx)
		r.count(op, err)
		return err
	}, func(attempt int, err error) {
		r.logger.Warn("Vector store call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	})
	return err
}

func (r *Repo) count(op string, err error) {
	if r.opts.Requests == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.opts.Requests.WithLabelValues("redis", op, status).Inc()
}

func (r *Repo) toScoredChunks(sr *db.SearchResult, limit int) []domain.ScoredChunk {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}

	prefix := collectionPrefix(r.opts.KeyPrefix, r.opts.Collection)
	out := make([]domain.ScoredChunk, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		seq, _ := strconv.ParseInt(e.Fields[fieldSeq], 10, 64)
		out = append(out, domain.ScoredChunk{
			Chunk: domain.Chunk{
				ID:      strings.TrimPrefix(e.Key, prefix),
				Title:   e.Fields[fieldTitle],
				Tag:     e.Fields[fieldTag],
				Content: e.Fields[fieldContent],
				Seq:     seq,
			},
			Score: e.Score,
		})
	}

	out = domain.RankChunks(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// classify maps store errors to domain errors.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	case db.IsConnectionError(err):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrIndexUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
