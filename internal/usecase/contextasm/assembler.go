// Package contextasm packs ranked chunks into a size-bounded LLM context.
package contextasm

import (
	"unicode/utf8"

	"github.com/kailas-cloud/podcastqa/internal/domain"
)

// DefaultMaxChars is the default context budget in runes.
const DefaultMaxChars = 6000

type dedupKey struct {
	title   string
	content string
}

// Assemble walks chunks in the given order, drops duplicates (same title and
// content) and stops at the first chunk that would overflow maxChars.
// maxChars <= 0 means no budget.
func Assemble(chunks []domain.ScoredChunk, maxChars int) domain.Context {
	out := domain.Context{Budget: max(maxChars, 0)}
	seen := make(map[dedupKey]struct{}, len(chunks))

	for i := range chunks {
		c := &chunks[i]
		key := dedupKey{title: c.Title, content: c.Content}
		if _, dup := seen[key]; dup {
			continue
		}

		size := utf8.RuneCountInString(c.Content)
		if maxChars > 0 && out.Chars+size > maxChars {
			break
		}

		seen[key] = struct{}{}
		out.Chunks = append(out.Chunks, *c)
		out.Chars += size
	}

	return out
}

// Assembler binds a fixed budget to Assemble.
type Assembler struct {
	maxChars int
}

// New creates an Assembler. maxChars == 0 selects DefaultMaxChars and a
// negative value disables the budget.
func New(maxChars int) *Assembler {
	if maxChars == 0 {
		maxChars = DefaultMaxChars
	}
	return &Assembler{maxChars: maxChars}
}

// MaxChars returns the configured budget.
func (a *Assembler) MaxChars() int { return a.maxChars }

// Assemble builds a context within the configured budget.
func (a *Assembler) Assemble(chunks []domain.ScoredChunk) domain.Context {
	return Assemble(chunks, a.maxChars)
}
