package domain

import "sort"

// Chunk is a stored unit of podcast transcript text. Vector is set at ingestion.
type Chunk struct {
	ID      string
	Title   string
	Tag     string
	Content string
	Vector  []float32
	// Seq is the ingestion sequence number; it breaks score ties.
	Seq int64
}

// ScoredChunk is a Chunk returned by a similarity search.
type ScoredChunk struct {
	Chunk
	Score float64
	Rank  int
}

// RankChunks orders chunks by descending score, keeping ingestion order among
// equal scores, and rewrites Rank to match the final position.
func RankChunks(chunks []ScoredChunk) []ScoredChunk {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		return chunks[i].Seq < chunks[j].Seq
	})
	for i := range chunks {
		chunks[i].Rank = i
	}
	return chunks
}

// Context is the ordered, size-bounded set of chunks used to ground an answer.
type Context struct {
	Chunks []ScoredChunk
	// Chars is the total content size in runes.
	Chars int
	// Budget is the maximum allowed Chars; zero means unlimited.
	Budget int
}

// IsEmpty reports whether the context carries no chunks.
func (c Context) IsEmpty() bool { return len(c.Chunks) == 0 }
