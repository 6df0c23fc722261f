// Package ingest loads podcast transcript chunks from JSON Lines into the
// vector index.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/kailas-cloud/podcastqa/internal/domain"
	dombatch "github.com/kailas-cloud/podcastqa/internal/domain/batch"
)

// DefaultBatchSize is the number of records embedded and stored together.
const DefaultBatchSize = 64

// maxLineBytes bounds a single input line.
const maxLineBytes = 4 << 20

// Options configures a Service.
type Options struct {
	Collection string
	BatchSize  int
	// StartSeq offsets the sequence numbers assigned to records, so a later
	// run can append after an earlier one without reordering ties.
	StartSeq int64
}

// Report is the outcome of a run. Problems lists skipped and failed records.
type Report struct {
	Summary  dombatch.Summary
	Problems []dombatch.Result
}

// Service embeds records in batches and upserts them.
type Service struct {
	embed  Embedder
	index  Index
	opts   Options
	logger *zap.Logger
}

// New creates an ingestion service.
func New(embed Embedder, index Index, opts Options, logger *zap.Logger) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Service{embed: embed, index: index, opts: opts, logger: logger}
}

// Prepare loads the embedding model and creates the collection with the
// model's dimension and cosine distance.
func (s *Service) Prepare(ctx context.Context) (int, error) {
	if err := s.embed.Load(ctx); err != nil {
		return 0, fmt.Errorf("load embedder: %w", err)
	}
	dim := s.embed.Dimension()
	if err := s.index.EnsureCollection(ctx, s.opts.Collection, dim, domain.DistanceCosine); err != nil {
		return 0, fmt.Errorf("ensure collection %s: %w", s.opts.Collection, err)
	}
	return dim, nil
}

type pending struct {
	chunk domain.Chunk
	line  int
}

// Run reads records from r until EOF. Malformed records are skipped and
// reported. A batch that fails to embed or store aborts the run, since the
// model or the store is then unusable for the rest of the input.
func (s *Service) Run(ctx context.Context, r io.Reader) (Report, error) {
	var rep Report
	batch := make([]pending, 0, s.opts.BatchSize)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)

	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}

		rec, err := ParseRecord(raw)
		if err == nil {
			var c domain.Chunk
			c, err = rec.ToChunk(s.opts.StartSeq + int64(line))
			if err == nil {
				batch = append(batch, pending{chunk: c, line: line})
			}
		}
		if err != nil {
			res := dombatch.NewSkipped(rec.ID, line, err)
			rep.add(res)
			s.logger.Warn("Skipping record", zap.Int("line", line), zap.Error(err))
			continue
		}

		if len(batch) == s.opts.BatchSize {
			if err := s.flush(ctx, batch, &rep); err != nil {
				return rep, err
			}
			batch = batch[:0]
		}
	}
	if err := sc.Err(); err != nil {
		return rep, fmt.Errorf("read input at line %d: %w", line+1, err)
	}

	if len(batch) > 0 {
		if err := s.flush(ctx, batch, &rep); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

func (s *Service) flush(ctx context.Context, batch []pending, rep *Report) error {
	texts := make([]string, len(batch))
	for i := range batch {
		texts[i] = batch[i].chunk.Content
	}

	emb, err := s.embed.BatchEmbed(ctx, texts)
	if err == nil && len(emb.Embeddings) != len(batch) {
		err = fmt.Errorf("embedder returned %d vectors for %d texts", len(emb.Embeddings), len(batch))
	}
	if err != nil {
		return s.fail(batch, rep, fmt.Errorf("vectorize: %w", err))
	}
	rep.Summary.Tokens += emb.TotalTokens

	chunks := make([]domain.Chunk, len(batch))
	for i := range batch {
		chunks[i] = batch[i].chunk
		chunks[i].Vector = emb.Embeddings[i]
	}
	if err := s.index.Upsert(ctx, chunks); err != nil {
		return s.fail(batch, rep, fmt.Errorf("upsert: %w", err))
	}

	for i := range batch {
		rep.add(dombatch.NewOK(batch[i].chunk.ID, batch[i].line))
	}
	s.logger.Info("Batch stored",
		zap.Int("batch", len(batch)),
		zap.Int("stored", rep.Summary.Stored),
		zap.Int("skipped", rep.Summary.Skipped),
		zap.Int("last_line", batch[len(batch)-1].line),
	)
	return nil
}

func (s *Service) fail(batch []pending, rep *Report, err error) error {
	for i := range batch {
		rep.add(dombatch.NewError(batch[i].chunk.ID, batch[i].line, err))
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("ingestion canceled: %w", err)
	}
	return fmt.Errorf("batch ending at line %d: %w", batch[len(batch)-1].line, err)
}

func (r *Report) add(res dombatch.Result) {
	r.Summary.Add(res)
	if res.Status() != dombatch.StatusOK {
		r.Problems = append(r.Problems, res)
	}
}
