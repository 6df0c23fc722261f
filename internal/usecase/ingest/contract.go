package ingest

import (
	"context"

	"github.com/kailas-cloud/podcastqa/internal/domain"
)

// Embedder vectorizes chunk contents. Load resolves the model dimension.
type Embedder interface {
	Load(ctx context.Context) error
	Dimension() int
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Index stores chunks in the target collection.
type Index interface {
	EnsureCollection(ctx context.Context, name string, dim int, metric domain.Distance) error
	Upsert(ctx context.Context, chunks []domain.Chunk) error
}
