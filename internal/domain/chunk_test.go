package domain

import (
	"errors"
	"testing"
)

func TestRankChunks_DescendingScoreStableOnTies(t *testing.T) {
	chunks := []ScoredChunk{
		{Chunk: Chunk{ID: "c", Seq: 3}, Score: 0.5},
		{Chunk: Chunk{ID: "a", Seq: 1}, Score: 0.9},
		{Chunk: Chunk{ID: "d", Seq: 4}, Score: 0.5},
		{Chunk: Chunk{ID: "b", Seq: 2}, Score: 0.5},
	}

	got := RankChunks(chunks)

	wantIDs := []string{"a", "b", "c", "d"}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
		if got[i].Rank != i {
			t.Errorf("position %d: expected rank %d, got %d", i, i, got[i].Rank)
		}
	}
}

func TestRankChunks_Empty(t *testing.T) {
	if got := RankChunks(nil); len(got) != 0 {
		t.Errorf("expected empty, got %d", len(got))
	}
}

func TestNewCitation_RoundsAndTruncates(t *testing.T) {
	long := make([]rune, 250)
	for i := range long {
		long[i] = '播'
	}
	c := ScoredChunk{
		Chunk: Chunk{Title: "EP 12", Tag: "web3", Content: string(long)},
		Score: 0.87654,
	}

	got := NewCitation(&c)

	if got.Score != 0.877 {
		t.Errorf("expected score 0.877, got %v", got.Score)
	}
	if n := len([]rune(got.ContentPreview)); n != PreviewRunes+3 {
		t.Errorf("expected %d runes, got %d", PreviewRunes+3, n)
	}
	if got.Title != "EP 12" || got.Tag != "web3" {
		t.Errorf("unexpected title/tag: %+v", got)
	}
}

func TestPreview_ShortTextUnchanged(t *testing.T) {
	if got := Preview("short", 200); got != "short" {
		t.Errorf("expected unchanged text, got %q", got)
	}
}

func TestValidationError_IsErrValidation(t *testing.T) {
	err := NewValidationError("limit", "must be positive")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if err.Error() != "validation failed: limit must be positive" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
