// Package synthesis asks the language model for an answer grounded in the
// assembled context.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kailas-cloud/podcastqa/internal/domain"
	"github.com/kailas-cloud/podcastqa/internal/metrics"
	"github.com/kailas-cloud/podcastqa/internal/retry"
)

// ErrEmptyAnswer is returned when the model replies with blank text.
var ErrEmptyAnswer = errors.New("model returned an empty answer")

// BreakerSettings configures the circuit breaker around the model.
type BreakerSettings struct {
	// MaxFailures consecutive transient failures open the breaker. Zero disables it.
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Options configures a Service.
type Options struct {
	// Timeout bounds each model call. Zero disables it.
	Timeout time.Duration
	Retry   retry.Policy
	// Transient reports errors worth one more attempt.
	Transient retry.Classifier
	// Fatal reports errors that make the model unusable (bad credentials).
	Fatal   retry.Classifier
	Breaker BreakerSettings
	Health  domain.HealthReporter
}

// Service synthesizes answers with an explicit retry policy and a circuit breaker.
type Service struct {
	llm       domain.LanguageModel
	timeout   time.Duration
	policy    retry.Policy
	transient retry.Classifier
	fatal     retry.Classifier
	breaker   *gobreaker.CircuitBreaker
	health    domain.HealthReporter
	logger    *zap.Logger
}

// New creates a synthesis service.
func New(llm domain.LanguageModel, opts Options, logger *zap.Logger) *Service {
	if opts.Transient == nil {
		opts.Transient = isDeadline
	}
	if opts.Fatal == nil {
		opts.Fatal = func(error) bool { return false }
	}
	if opts.Health == nil {
		opts.Health = domain.NopHealthReporter{}
	}

	s := &Service{
		llm:       llm,
		timeout:   opts.Timeout,
		policy:    opts.Retry,
		transient: opts.Transient,
		fatal:     opts.Fatal,
		health:    opts.Health,
		logger:    logger,
	}
	if opts.Breaker.MaxFailures > 0 {
		s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    domain.ComponentLLM,
			Timeout: opts.Breaker.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= opts.Breaker.MaxFailures
			},
			// Only transient failures count against the breaker.
			IsSuccessful: func(err error) bool {
				return err == nil || !opts.Transient(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
	}
	return s
}

// Synthesize returns the model's answer to query grounded in c. Every failure
// wraps domain.ErrSynthesisFailed.
func (s *Service) Synthesize(ctx context.Context, query string, c domain.Context) (string, error) {
	req := domain.Completion{System: systemPrompt, Prompt: BuildPrompt(query, c)}

	var res domain.CompletionResult
	err := retry.Do(ctx, s.policy, s.retryable,
		func(ctx context.Context) error {
			out, err := s.attempt(ctx, req)
			if err != nil {
				return err
			}
			res = out
			return nil
		},
		func(attempt int, err error) {
			metrics.LLMRetriesTotal.Inc()
			s.logger.Warn("Retrying LLM call", zap.Int("attempt", attempt), zap.Error(err))
		},
	)
	if err == nil && strings.TrimSpace(res.Text) == "" {
		err = ErrEmptyAnswer
	}
	if err != nil {
		s.reportFailure(err)
		return "", fmt.Errorf("%w: %w", domain.ErrSynthesisFailed, err)
	}

	s.health.MarkReady(domain.ComponentLLM)
	domain.UsageFromContext(ctx).AddLLMTokens(res.PromptTokens + res.CompletionTokens)
	return res.Text, nil
}

func (s *Service) attempt(ctx context.Context, req domain.Completion) (domain.CompletionResult, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	call := func() (domain.CompletionResult, error) { return s.llm.Complete(ctx, req) }

	var (
		res domain.CompletionResult
		err error
	)
	if s.breaker == nil {
		res, err = call()
	} else {
		var out any
		out, err = s.breaker.Execute(func() (any, error) { return call() })
		if err == nil {
			res = out.(domain.CompletionResult)
		}
	}

	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
		err = fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return res, err
}

func (s *Service) retryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	return s.transient(err)
}

// reportFailure keeps the model ready on transient failures and records the
// error; bad credentials fail it; anything else degrades it.
func (s *Service) reportFailure(err error) {
	switch {
	case errors.Is(err, context.Canceled):
		return
	case s.fatal(err):
		s.health.MarkFailed(domain.ComponentLLM, err)
		s.logger.Error("LLM rejected credentials", zap.Error(err))
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		s.health.MarkDegraded(domain.ComponentLLM, err)
		s.logger.Warn("LLM circuit open", zap.Error(err))
	case s.transient(err):
		s.health.RecordError(domain.ComponentLLM, err)
		s.logger.Warn("LLM call failed", zap.Error(err))
	default:
		s.health.MarkDegraded(domain.ComponentLLM, err)
		s.logger.Error("LLM call failed", zap.Error(err))
	}
}

func isDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
