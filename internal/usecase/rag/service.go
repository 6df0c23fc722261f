// Package rag drives the question answering pipeline:
// validate, retrieve, assemble, synthesize.
package rag

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/podcastqa/internal/domain"
	"github.com/kailas-cloud/podcastqa/internal/metrics"
)

// Stage is a step of the per-request state machine.
type Stage string

// Pipeline stages in execution order. Any failure moves to StageFailed.
const (
	StageValidating   Stage = "validating"
	StageRetrieving   Stage = "retrieving"
	StageAssembling   Stage = "assembling"
	StageSynthesizing Stage = "synthesizing"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// Defaults for Options.
const (
	DefaultLimit         = 5
	DefaultMaxLimit      = 20
	DefaultMaxQueryChars = 2000
)

// Options bounds request parameters.
type Options struct {
	DefaultLimit  int
	MaxLimit      int
	MaxQueryChars int
}

// StageError is a pipeline failure tagged with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return string(e.Stage) + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// Service is the stateless pipeline facade.
type Service struct {
	retriever   Retriever
	assembler   Assembler
	synthesizer Synthesizer
	opts        Options
	logger      *zap.Logger
}

// New creates a pipeline service.
func New(r Retriever, a Assembler, s Synthesizer, opts Options, logger *zap.Logger) *Service {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultLimit
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = DefaultMaxLimit
	}
	if opts.MaxQueryChars <= 0 {
		opts.MaxQueryChars = DefaultMaxQueryChars
	}
	return &Service{retriever: r, assembler: a, synthesizer: s, opts: opts, logger: logger}
}

// DefaultLimit is the limit used when a request omits one.
func (s *Service) DefaultLimit() int { return s.opts.DefaultLimit }

// MaxLimit is the largest accepted limit.
func (s *Service) MaxLimit() int { return s.opts.MaxLimit }

// Answer runs the full pipeline. An empty retrieval yields NoResultsAnswer
// and a failed synthesis yields ApologyAnswer, both without sources. Sources
// are exactly the chunks of the context sent to the model.
func (s *Service) Answer(ctx context.Context, query string, limit int) (domain.AnswerResult, error) {
	start := time.Now()
	res, err := s.answer(ctx, query, limit)
	s.finish("answer", start, err, zap.Int("sources", len(res.Sources)))
	return res, err
}

func (s *Service) answer(ctx context.Context, query string, limit int) (domain.AnswerResult, error) {
	query, err := s.validate(query, limit)
	if err != nil {
		return domain.AnswerResult{}, &StageError{Stage: StageValidating, Err: err}
	}

	chunks, err := s.retrieve(ctx, query, limit, domain.SearchFilter{})
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if len(chunks) == 0 {
		return domain.AnswerResult{Query: query, Answer: NoResultsAnswer, Sources: []domain.SourceCitation{}}, nil
	}

	c := s.assemble(chunks)
	if c.IsEmpty() {
		// Every chunk is larger than the budget.
		return domain.AnswerResult{Query: query, Answer: NoResultsAnswer, Sources: []domain.SourceCitation{}}, nil
	}

	answer, err := s.synthesize(ctx, query, c)
	if err != nil {
		if errors.Is(err, domain.ErrSynthesisFailed) {
			s.logger.Warn("Answer synthesis failed, returning apology",
				zap.String("query", truncate(query)),
				zap.Strings("withheld_sources", chunkIDs(c.Chunks)),
				zap.Error(err),
			)
			return domain.AnswerResult{Query: query, Answer: ApologyAnswer, Sources: []domain.SourceCitation{}}, nil
		}
		return domain.AnswerResult{}, err
	}

	return domain.AnswerResult{Query: query, Answer: answer, Sources: domain.CitationsFrom(c.Chunks)}, nil
}

// SearchOnly retrieves citations without calling the language model.
func (s *Service) SearchOnly(
	ctx context.Context, query string, limit int, filter domain.SearchFilter,
) ([]domain.SourceCitation, error) {
	start := time.Now()
	out, err := s.searchOnly(ctx, query, limit, filter)
	s.finish("search", start, err, zap.Int("results", len(out)))
	return out, err
}

func (s *Service) searchOnly(
	ctx context.Context, query string, limit int, filter domain.SearchFilter,
) ([]domain.SourceCitation, error) {
	query, err := s.validate(query, limit)
	if err != nil {
		return nil, &StageError{Stage: StageValidating, Err: err}
	}
	chunks, err := s.retrieve(ctx, query, limit, filter)
	if err != nil {
		return nil, err
	}
	return domain.CitationsFrom(chunks), nil
}

func (s *Service) validate(query string, limit int) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", domain.NewValidationError("query", "must not be empty")
	}
	if n := utf8.RuneCountInString(query); n > s.opts.MaxQueryChars {
		return "", domain.NewValidationError("query",
			"must be at most "+strconv.Itoa(s.opts.MaxQueryChars)+" characters")
	}
	if limit < 1 || limit > s.opts.MaxLimit {
		return "", domain.NewValidationError("limit",
			"must be between 1 and "+strconv.Itoa(s.opts.MaxLimit))
	}
	return query, nil
}

func (s *Service) retrieve(
	ctx context.Context, query string, limit int, filter domain.SearchFilter,
) ([]domain.ScoredChunk, error) {
	defer observe(StageRetrieving, time.Now())
	chunks, err := s.retriever.Retrieve(ctx, query, limit, filter)
	if err != nil {
		return nil, &StageError{Stage: StageRetrieving, Err: err}
	}
	return chunks, nil
}

func (s *Service) assemble(chunks []domain.ScoredChunk) domain.Context {
	defer observe(StageAssembling, time.Now())
	c := s.assembler.Assemble(chunks)
	metrics.RAGContextChunks.Observe(float64(len(c.Chunks)))
	return c
}

func (s *Service) synthesize(ctx context.Context, query string, c domain.Context) (string, error) {
	defer observe(StageSynthesizing, time.Now())
	answer, err := s.synthesizer.Synthesize(ctx, query, c)
	if err != nil {
		return "", &StageError{Stage: StageSynthesizing, Err: err}
	}
	return answer, nil
}

// finish records the outcome of a request.
func (s *Service) finish(mode string, start time.Time, err error, fields ...zap.Field) {
	outcome := string(StageDone)
	if err != nil {
		outcome = outcomeOf(err)
	}
	metrics.RAGQueriesTotal.WithLabelValues(mode, outcome).Inc()

	fields = append(fields,
		zap.String("mode", mode),
		zap.String("outcome", outcome),
		zap.Duration("duration", time.Since(start)),
	)
	if err == nil {
		s.logger.Info("Query finished", fields...)
		return
	}

	var se *StageError
	if errors.As(err, &se) {
		fields = append(fields, zap.String("stage", string(se.Stage)))
	}
	fields = append(fields, zap.Error(err))
	if errors.Is(err, domain.ErrValidation) {
		s.logger.Info("Query rejected", fields...)
		return
	}
	s.logger.Error("Query failed", fields...)
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, domain.ErrIndexUnavailable):
		return "index_unavailable"
	default:
		return string(StageFailed)
	}
}

func observe(stage Stage, start time.Time) {
	metrics.RAGStageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
}

func chunkIDs(chunks []domain.ScoredChunk) []string {
	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = chunks[i].ID
	}
	return ids
}

func truncate(s string) string {
	return domain.Preview(s, 50)
}
