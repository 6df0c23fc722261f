package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kailas-cloud/podcastqa/internal/domain"
)

// Record is one line of the JSON Lines input.
type Record struct {
	ID           string          `json:"id"`
	PodcastTitle string          `json:"podcast_title"`
	PodcastTag   json.RawMessage `json:"podcast_tag"`
	Content      string          `json:"content"`
}

// chunkNamespace scopes generated chunk IDs.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("podcastqa/chunk"))

// ParseRecord decodes and validates one input line.
func ParseRecord(line []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return Record{}, domain.NewValidationError("line", "invalid JSON: "+err.Error())
	}
	if strings.TrimSpace(rec.Content) == "" {
		return rec, domain.NewValidationError("content", "is required")
	}
	if strings.TrimSpace(rec.PodcastTitle) == "" {
		return rec, domain.NewValidationError("podcast_title", "is required")
	}
	return rec, nil
}

// Tag returns the podcast tag as a string. A list of tags is joined with ", ".
func (r Record) Tag() (string, error) {
	raw := r.PodcastTag
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return "", domain.NewValidationError("podcast_tag", "must be a string or a list of strings")
	}
	return strings.Join(list, ", "), nil
}

// ChunkID returns the record ID, or a stable ID derived from title and
// content when the input has none, so re-ingesting a file overwrites.
func (r Record) ChunkID() string {
	if id := strings.TrimSpace(r.ID); id != "" {
		return id
	}
	return uuid.NewSHA1(chunkNamespace, []byte(r.PodcastTitle+"\x00"+r.Content)).String()
}

// ToChunk converts the record into a chunk without a vector.
func (r Record) ToChunk(seq int64) (domain.Chunk, error) {
	tag, err := r.Tag()
	if err != nil {
		return domain.Chunk{}, fmt.Errorf("record %s: %w", r.ChunkID(), err)
	}
	return domain.Chunk{
		ID:      r.ChunkID(),
		Title:   r.PodcastTitle,
		Tag:     tag,
		Content: r.Content,
		Seq:     seq,
	}, nil
}
