package podcastqa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/podcastqa/internal/domain"
)

type fakePipeline struct {
	answer    domain.AnswerResult
	citations []domain.SourceCitation
	err       error
	gotLimit  int
	gotFilter domain.SearchFilter
}

func (f *fakePipeline) Answer(_ context.Context, _ string, limit int) (domain.AnswerResult, error) {
	f.gotLimit = limit
	return f.answer, f.err
}

func (f *fakePipeline) SearchOnly(
	_ context.Context, _ string, limit int, filter domain.SearchFilter,
) ([]domain.SourceCitation, error) {
	f.gotLimit, f.gotFilter = limit, filter
	return f.citations, f.err
}

func (f *fakePipeline) DefaultLimit() int { return 5 }

type fakeHealth struct{ st domain.HealthStatus }

func (f fakeHealth) Status(context.Context, bool) domain.HealthStatus { return f.st }

func TestNew_NoEmbedder(t *testing.T) {
	_, err := New(context.Background(), WithValkey("localhost:6379", ""))
	if err == nil {
		t.Fatal("expected error when no embedder configured")
	}
}

func TestNew_NoStore(t *testing.T) {
	_, err := New(context.Background(), WithEmbeddingServer("http://localhost:8080/v1", "", "m"))
	if err == nil {
		t.Fatal("expected error when no store configured")
	}
}

func TestOpenIndex_UnknownDriver(t *testing.T) {
	_, _, err := openIndex(context.Background(), &clientConfig{driver: "unknown"})
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestClientOptions(t *testing.T) {
	cfg := &clientConfig{}
	WithValkey("localhost:6379", "secret").apply(cfg)
	if cfg.driver != "valkey" || cfg.addrs[0] != "localhost:6379" || cfg.password != "secret" {
		t.Errorf("valkey cfg = %+v", cfg)
	}

	WithQdrant("http://localhost:6333", "key").apply(cfg)
	if cfg.driver != "qdrant" || cfg.qdrantURL != "http://localhost:6333" || cfg.qdrantKey != "key" {
		t.Errorf("qdrant cfg = %+v", cfg)
	}

	WithLimits(3, 10).apply(cfg)
	WithMaxContextChars(1000).apply(cfg)
	WithLLMTimeout(5 * time.Second).apply(cfg)
	WithLLMParams(256, 0.5).apply(cfg)
	if cfg.llmMaxTokens != 256 || cfg.llmTemperature != 0.5 {
		t.Errorf("llm params = %d/%g", cfg.llmMaxTokens, cfg.llmTemperature)
	}
	if cfg.defaultLimit != 3 || cfg.maxLimit != 10 || cfg.maxContextChars != 1000 || cfg.llmTimeout != 5*time.Second {
		t.Errorf("limits cfg = %+v", cfg)
	}

	logger := slog.Default()
	WithLogger(logger).apply(cfg)
	if cfg.logger != logger {
		t.Error("expected logger to be set")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &clientConfig{}
	cfg.applyDefaults()
	if cfg.collection != "podcast_chunks" || cfg.vectorDimensions != 384 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.defaultLimit != 5 || cfg.maxLimit != 20 || cfg.llmTimeout != 30*time.Second {
		t.Errorf("limits = %d/%d/%s", cfg.defaultLimit, cfg.maxLimit, cfg.llmTimeout)
	}
	if cfg.llmMaxTokens != 1000 || cfg.llmTemperature != 0.2 {
		t.Errorf("llm params = %d/%g", cfg.llmMaxTokens, cfg.llmTemperature)
	}
}

func newQdrantServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/points/search") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"result":[{"id":1,"score":0.9,"payload":{`+
			`"chunk_id":"c1","podcast_title":"Show","podcast_tag":"web3","content":"Staking basics.","seq":1}}]}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newChatServer answers chat completions with "ok" and hands back each
// request body.
func newChatServer(t *testing.T) (*httptest.Server, <-chan map[string]any) {
	t.Helper()
	bodies := make(chan map[string]any, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode chat request: %v", err)
		}
		bodies <- body
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c","object":"chat.completion","model":"m",`+
			`"choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}],`+
			`"usage":{"prompt_tokens":5,"completion_tokens":1,"total_tokens":6}}`)
	}))
	t.Cleanup(srv.Close)
	return srv, bodies
}

func TestClient_AskSendsLLMParams(t *testing.T) {
	embed := embedFunc(func(context.Context, string) (EmbeddingResult, error) {
		return EmbeddingResult{Embedding: []float32{1, 0, 0}, TotalTokens: 1}, nil
	})

	tests := []struct {
		name            string
		opts            []Option
		wantMaxTokens   float64
		wantTemperature float64
	}{
		{name: "defaults", wantMaxTokens: 1000, wantTemperature: 0.2},
		{name: "custom", opts: []Option{WithLLMParams(256, 0.5)}, wantMaxTokens: 256, wantTemperature: 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qdrantSrv := newQdrantServer(t)
			chatSrv, bodies := newChatServer(t)

			opts := append([]Option{
				WithQdrant(qdrantSrv.URL, ""),
				WithEmbedder(embed),
				WithVectorDimensions(3),
				WithOpenAI(chatSrv.URL+"/v1", "key", "m"),
			}, tt.opts...)
			c, err := New(context.Background(), opts...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer c.Close()

			ans, err := c.Ask(context.Background(), "what is staking?", 1)
			if err != nil {
				t.Fatalf("Ask: %v", err)
			}
			if ans.Text != "ok" || len(ans.Sources) != 1 {
				t.Errorf("answer = %+v", ans)
			}

			body := <-bodies
			if body["max_tokens"] != tt.wantMaxTokens {
				t.Errorf("max_tokens = %v, want %v", body["max_tokens"], tt.wantMaxTokens)
			}
			if temp, ok := body["temperature"].(float64); !ok || math.Abs(temp-tt.wantTemperature) > 1e-6 {
				t.Errorf("temperature = %v, want %v", body["temperature"], tt.wantTemperature)
			}
		})
	}
}

func TestClient_Ask(t *testing.T) {
	p := &fakePipeline{answer: domain.AnswerResult{
		Query:   "q",
		Answer:  "a [Source 1]",
		Sources: []domain.SourceCitation{{Title: "Show", Tag: "web3", Score: 0.9, ContentPreview: "text"}},
	}}
	c := &Client{pipeline: p, hasLLM: true}

	ans, err := c.Ask(context.Background(), "q", 0)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if p.gotLimit != 5 {
		t.Errorf("limit = %d, want default 5", p.gotLimit)
	}
	if ans.Text != "a [Source 1]" || len(ans.Sources) != 1 || ans.Sources[0].Preview != "text" {
		t.Errorf("answer = %+v", ans)
	}
}

func TestClient_Ask_NoLanguageModel(t *testing.T) {
	c := &Client{pipeline: &fakePipeline{}}
	if _, err := c.Ask(context.Background(), "q", 3); !errors.Is(err, errNoLanguageModel) {
		t.Fatalf("err = %v, want errNoLanguageModel", err)
	}
}

func TestClient_Search_WrapsErrors(t *testing.T) {
	p := &fakePipeline{err: fmt.Errorf("search: %w", domain.ErrIndexUnavailable)}
	c := &Client{pipeline: p}

	_, err := c.Search(context.Background(), "q", 4, "web3")
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("err = %v, want ErrIndexUnavailable", err)
	}
	if p.gotLimit != 4 || p.gotFilter.Tag != "web3" {
		t.Errorf("limit = %d, filter = %+v", p.gotLimit, p.gotFilter)
	}
}

func TestClient_Health(t *testing.T) {
	c := &Client{health: fakeHealth{st: domain.HealthStatus{
		Status: domain.Degraded,
		Components: map[string]domain.ComponentStatus{
			domain.ComponentEmbedder: {State: domain.StateUninitialized},
			domain.ComponentLLM:      {State: domain.StateReady, Details: map[string]string{"model": "m"}},
		},
	}}}

	st := c.Health(context.Background())
	if st.Status != "degraded" {
		t.Errorf("status = %q", st.Status)
	}
	if st.Components["embedder"].State != "uninitialized" || st.Components["llm"].Details["model"] != "m" {
		t.Errorf("components = %+v", st.Components)
	}
}

func TestClient_Close_NoStore(t *testing.T) {
	c := &Client{}
	c.Close()
}

func TestEmbedderAdapter(t *testing.T) {
	adapter := &embedderAdapter{inner: embedFunc(func(context.Context, string) (EmbeddingResult, error) {
		return EmbeddingResult{Embedding: []float32{1, 2, 3}, TotalTokens: 10}, nil
	})}
	res, err := adapter.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embedding) != 3 || res.TotalTokens != 10 {
		t.Errorf("result = %+v", res)
	}
}

func TestLLMAdapter(t *testing.T) {
	var gotSystem string
	adapter := &llmAdapter{inner: completeFunc(func(_ context.Context, system, _ string) (string, error) {
		gotSystem = system
		return "answer", nil
	})}
	res, err := adapter.Complete(context.Background(), domain.Completion{System: "sys", Prompt: "p"})
	if err != nil || res.Text != "answer" || gotSystem != "sys" {
		t.Errorf("res = %+v, err = %v, system = %q", res, err, gotSystem)
	}
}

func TestObserver_NilSafe(t *testing.T) {
	var obs *observer
	obs.observe("test", time.Now(), nil)
	obs.observe("test", time.Now(), errors.New("err"))
}

func TestObserver_WithPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := newObserver(nil, reg)
	if err != nil {
		t.Fatalf("newObserver: %v", err)
	}

	obs.observe("ask", time.Now().Add(-10*time.Millisecond), nil)
	obs.observe("ask", time.Now(), errors.New("fail"))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "podcastqa_sdk_operations_total" {
			found = true
			if len(f.GetMetric()) != 2 {
				t.Errorf("expected 2 metric samples, got %d", len(f.GetMetric()))
			}
		}
	}
	if !found {
		t.Error("podcastqa_sdk_operations_total not found")
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{domain.NewValidationError("limit", "must be positive"), "invalid"},
		{fmt.Errorf("embed: %w", ErrTimeout), "timeout"},
		{fmt.Errorf("search: %w", ErrIndexUnavailable), "unavailable"},
		{errNoLanguageModel, "error"},
	}
	for _, tt := range tests {
		if got := statusOf(tt.err); got != tt.want {
			t.Errorf("statusOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestObserver_ReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := newObserver(nil, reg); err != nil {
		t.Fatalf("first newObserver: %v", err)
	}
	if _, err := newObserver(nil, reg); err != nil {
		t.Fatalf("second newObserver: %v", err)
	}
}

type embedFunc func(ctx context.Context, text string) (EmbeddingResult, error)

func (f embedFunc) Embed(ctx context.Context, text string) (EmbeddingResult, error) { return f(ctx, text) }

type completeFunc func(ctx context.Context, system, prompt string) (string, error)

func (f completeFunc) Complete(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}
