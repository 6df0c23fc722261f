package chunk

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/podcastqa/internal/db"
	"github.com/kailas-cloud/podcastqa/internal/domain"
)

func TestSearch_RanksAndMapsFields(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchKNNFn = func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
		if q.IndexName != "podcastqa:podcast_chunks:idx" {
			t.Errorf("index = %q", q.IndexName)
		}
		if q.K != 3 {
			t.Errorf("K = %d, want 3", q.K)
		}
		return &db.SearchResult{Total: 3, Entries: []db.SearchEntry{
			{Key: "podcastqa:podcast_chunks:b", Score: 0.8, Fields: map[string]string{
				"title": "Ep B", "tag": "web3", "__content": "wallets", "__seq": "7",
			}},
			{Key: "podcastqa:podcast_chunks:a", Score: 0.8, Fields: map[string]string{
				"title": "Ep A", "tag": "web3", "__content": "keys", "__seq": "2",
			}},
			{Key: "podcastqa:podcast_chunks:c", Score: 0.95, Fields: map[string]string{
				"title": "Ep C", "tag": "ai", "__content": "models", "__seq": "9",
			}},
		}}, nil
	}

	got, err := repo.Search(context.Background(), testVector(), 3, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantIDs := []string{"c", "a", "b"}
	if len(got) != len(wantIDs) {
		t.Fatalf("got %d results, want %d", len(got), len(wantIDs))
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Errorf("result[%d].ID = %q, want %q", i, got[i].ID, id)
		}
		if got[i].Rank != i {
			t.Errorf("result[%d].Rank = %d", i, got[i].Rank)
		}
	}
	if got[1].Title != "Ep A" || got[1].Content != "keys" || got[1].Seq != 2 {
		t.Errorf("fields not mapped: %+v", got[1].Chunk)
	}
}

func TestSearch_TagFilter(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchKNNFn = func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
		if len(q.Filters) != 1 || q.Filters[0].Field != "tag" || q.Filters[0].Value != "web3" {
			t.Errorf("filters = %+v", q.Filters)
		}
		return &db.SearchResult{}, nil
	}

	if _, err := repo.Search(context.Background(), testVector(), 5, domain.SearchFilter{Tag: "web3"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSearch_LimitOutOfRange(t *testing.T) {
	for _, limit := range []int{0, -1, 21} {
		repo, ms := newTestRepo(t)
		_, err := repo.Search(context.Background(), testVector(), limit, domain.SearchFilter{})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("limit %d: expected ErrValidation, got %v", limit, err)
		}
		if ms.searchCalls != 0 {
			t.Errorf("limit %d: store called %d times", limit, ms.searchCalls)
		}
	}
}

func TestSearch_DimensionMismatch(t *testing.T) {
	repo, ms := newTestRepo(t)

	_, err := repo.Search(context.Background(), []float32{1, 2}, 5, domain.SearchFilter{})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
	if ms.searchCalls != 0 {
		t.Error("store must not be queried with a mismatched vector")
	}
}

func TestSearch_MissingIndexIsEmpty(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchKNNFn = func(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
		return nil, db.ErrIndexNotFound
	}

	got, err := repo.Search(context.Background(), testVector(), 5, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("missing collection should not be an error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
}

func TestSearch_ConnectionErrorRetriedOnce(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchKNNFn = func(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
		return nil, &db.Error{Op: db.OpSearch, Err: errors.New("connection refused")}
	}

	_, err := repo.Search(context.Background(), testVector(), 5, domain.SearchFilter{})
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
	if ms.searchCalls != 2 {
		t.Errorf("search calls = %d, want 2 (one retry)", ms.searchCalls)
	}
}

func TestSearch_RecoversOnRetry(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchKNNFn = func(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
		if ms.searchCalls == 1 {
			return nil, &db.Error{Op: db.OpSearch, Err: errors.New("connection reset")}
		}
		return &db.SearchResult{Total: 1, Entries: []db.SearchEntry{
			{Key: "podcastqa:podcast_chunks:x", Score: 0.5, Fields: map[string]string{"__seq": "1"}},
		}}, nil
	}

	got, err := repo.Search(context.Background(), testVector(), 5, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "x" {
		t.Errorf("unexpected results %+v", got)
	}
}

func TestSearch_ServerErrorNotRetried(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchKNNFn = func(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
		return nil, &db.Error{Op: db.OpSearch, Err: errors.New("ERR syntax"), Server: true}
	}

	_, err := repo.Search(context.Background(), testVector(), 5, domain.SearchFilter{})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, domain.ErrIndexUnavailable) {
		t.Error("server error must not be reported as unavailable")
	}
	if ms.searchCalls != 1 {
		t.Errorf("search calls = %d, want 1", ms.searchCalls)
	}
}

func TestSearch_Timeout(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchKNNFn = func(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
		return nil, connErr()
	}

	_, err := repo.Search(context.Background(), testVector(), 5, domain.SearchFilter{})
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestUpsert_WritesHashes(t *testing.T) {
	repo, ms := newTestRepo(t)
	var written []db.HashSetItem
	ms.hsetMultiFn = func(_ context.Context, items []db.HashSetItem) error {
		written = items
		return nil
	}

	err := repo.Upsert(context.Background(), []domain.Chunk{
		{ID: "ep1-0", Title: "Ep 1", Tag: "ai", Content: "hello", Vector: testVector(), Seq: 3},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(written) != 1 {
		t.Fatalf("written %d items, want 1", len(written))
	}
	item := written[0]
	if item.Key != "podcastqa:podcast_chunks:ep1-0" {
		t.Errorf("key = %q", item.Key)
	}
	if item.Fields["__seq"] != "3" || item.Fields["tag"] != "ai" {
		t.Errorf("fields = %v", item.Fields)
	}
	if len(item.Fields["__vector"]) != 16 {
		t.Errorf("vector bytes = %d, want 16", len(item.Fields["__vector"]))
	}
}

func TestUpsert_RejectsWrongDimension(t *testing.T) {
	repo, _ := newTestRepo(t)
	err := repo.Upsert(context.Background(), []domain.Chunk{{ID: "a", Vector: []float32{1}}})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestEnsureCollection_CreatesOnce(t *testing.T) {
	repo, ms := newTestRepo(t)
	created := false
	ms.indexExistsFn = func(context.Context, string) (bool, error) { return created, nil }
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		if def.VectorDim() != 4 {
			t.Errorf("dim = %d, want 4", def.VectorDim())
		}
		created = true
		return nil
	}
	ctx := context.Background()

	for range 2 {
		if err := repo.EnsureCollection(ctx, "podcast_chunks", 4, domain.DistanceCosine); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ms.createCalls != 1 {
		t.Errorf("create calls = %d, want 1", ms.createCalls)
	}
}

func TestEnsureCollection_RaceTolerated(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.createIndexFn = func(context.Context, *db.IndexDefinition) error { return db.ErrIndexExists }

	if err := repo.EnsureCollection(context.Background(), "podcast_chunks", 4, domain.DistanceCosine); err != nil {
		t.Fatalf("concurrent creation should be tolerated: %v", err)
	}
}

func TestEnsureCollection_UnsupportedMetric(t *testing.T) {
	repo, _ := newTestRepo(t)
	err := repo.EnsureCollection(context.Background(), "c", 4, domain.DistanceEuclid)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestPing_Unavailable(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.pingFn = func(context.Context) error {
		return &db.Error{Op: db.OpPing, Err: errors.New("connection refused")}
	}

	if err := repo.Ping(context.Background()); !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}
