package rag

import (
	"context"

	"github.com/kailas-cloud/podcastqa/internal/domain"
)

// Retriever returns ranked chunks for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.ScoredChunk, error)
}

// Assembler packs ranked chunks into a bounded context.
type Assembler interface {
	Assemble(chunks []domain.ScoredChunk) domain.Context
}

// Synthesizer turns a query and its context into an answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, c domain.Context) (string, error)
}
