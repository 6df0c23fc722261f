package domain

import "context"

// Distance is the similarity metric of a collection.
type Distance string

const (
	// DistanceCosine is cosine similarity, the metric used for sentence embeddings.
	DistanceCosine Distance = "cosine"
	// DistanceDot is inner product.
	DistanceDot Distance = "dot"
	// DistanceEuclid is Euclidean distance.
	DistanceEuclid Distance = "euclid"
)

// SearchFilter narrows a similarity search. The zero value matches everything.
type SearchFilter struct {
	// Tag restricts results to chunks with exactly this podcast tag.
	Tag string
}

// VectorIndex holds one named collection of chunks and answers
// nearest-neighbor queries over it.
//
// Search returns at most limit chunks by descending score, ties broken by
// ascending Seq. An out-of-range limit is an ErrValidation, a vector of the
// wrong size is an ErrVectorDimMismatch, an unreachable store is an
// ErrIndexUnavailable and a missing collection yields no results.
type VectorIndex interface {
	Search(ctx context.Context, vector []float32, limit int, filter SearchFilter) ([]ScoredChunk, error)
	Upsert(ctx context.Context, chunks []Chunk) error
	EnsureCollection(ctx context.Context, name string, dim int, metric Distance) error
	Ping(ctx context.Context) error
}
