package domain

import "context"

// Completion is a single-turn chat request to a language model.
type Completion struct {
	System string
	Prompt string
}

// CompletionResult is the model's reply and token usage.
type CompletionResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// LanguageModel generates text from a prompt.
type LanguageModel interface {
	Complete(ctx context.Context, req Completion) (CompletionResult, error)
}
