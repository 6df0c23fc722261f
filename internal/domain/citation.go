package domain

import "math"

// PreviewRunes is the maximum length of a citation content preview.
const PreviewRunes = 200

// SourceCitation is a chunk reference returned to the caller.
type SourceCitation struct {
	Title          string  `json:"title"`
	Tag            string  `json:"tag"`
	Score          float64 `json:"score"`
	ContentPreview string  `json:"content_preview"`
}

// AnswerResult is the outcome of a RAG query.
type AnswerResult struct {
	Query   string           `json:"query"`
	Answer  string           `json:"answer"`
	Sources []SourceCitation `json:"sources"`
}

// NewCitation builds a citation from a scored chunk.
func NewCitation(c *ScoredChunk) SourceCitation {
	return SourceCitation{
		Title:          c.Title,
		Tag:            c.Tag,
		Score:          math.Round(c.Score*1000) / 1000,
		ContentPreview: Preview(c.Content, PreviewRunes),
	}
}

// CitationsFrom converts chunks to citations preserving order.
func CitationsFrom(chunks []ScoredChunk) []SourceCitation {
	out := make([]SourceCitation, len(chunks))
	for i := range chunks {
		out[i] = NewCitation(&chunks[i])
	}
	return out
}

// Preview truncates s to n runes, appending "..." when truncated.
func Preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
