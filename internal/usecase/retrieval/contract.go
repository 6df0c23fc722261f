package retrieval

import (
	"context"

	"github.com/kailas-cloud/podcastqa/internal/domain"
)

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Index runs nearest-neighbor search over the chunk collection.
type Index interface {
	Search(ctx context.Context, vector []float32, limit int, filter domain.SearchFilter) ([]domain.ScoredChunk, error)
}
