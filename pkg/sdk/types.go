package podcastqa

import "context"

// Embedder converts text to a vector embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token counts.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// LanguageModel completes a grounded prompt.
type LanguageModel interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Source is a transcript chunk an answer was grounded on.
type Source struct {
	Title   string
	Tag     string
	Score   float64
	Preview string
}

// Answer is the result of Ask.
type Answer struct {
	Query   string
	Text    string
	Sources []Source
}

// ComponentHealth is the observed state of one pipeline component.
type ComponentHealth struct {
	State     string // uninitialized, ready, degraded, failed
	LastError string
	Details   map[string]string
}

// HealthStatus is the aggregated pipeline health.
type HealthStatus struct {
	Status     string // healthy, degraded, error
	Components map[string]ComponentHealth
}
