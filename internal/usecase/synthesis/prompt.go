package synthesis

import (
	"strconv"
	"strings"

	"github.com/kailas-cloud/podcastqa/internal/domain"
)

const systemPrompt = "You are a helpful AI assistant that answers questions about podcast content " +
	"using only the transcript excerpts you are given."

const instructions = `Instructions:
- Answer only from the context above. Do not use outside knowledge.
- If the context does not contain enough information, say so clearly.
- Refer to sources as [Source N]. Never cite a source that is not listed above.
- Reply in the language of the question.`

// BuildPrompt renders the grounding prompt: numbered sources, the question,
// then the grounding rules.
func BuildPrompt(query string, c domain.Context) string {
	var b strings.Builder
	b.WriteString("Context from podcast transcripts:\n\n")
	for i, ch := range c.Chunks {
		b.WriteString("[Source ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("] Title: '")
		b.WriteString(ch.Title)
		b.WriteString("', Tag: '")
		b.WriteString(ch.Tag)
		b.WriteString("'\nContent: ")
		b.WriteString(ch.Content)
		b.WriteString("\n\n")
	}
	b.WriteString("User question: ")
	b.WriteString(query)
	b.WriteString("\n\n")
	b.WriteString(instructions)
	b.WriteString("\n\nAnswer:")
	return b.String()
}
