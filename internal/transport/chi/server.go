// Package chi is the HTTP surface: chat, search, health and metrics
// endpoints on a chi router.
package chi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/podcastqa/internal/domain"
	logpkg "github.com/kailas-cloud/podcastqa/internal/logger"
)

// maxBodyBytes caps the chat request body.
const maxBodyBytes = 64 << 10

// Pipeline is the question answering service.
type Pipeline interface {
	Answer(ctx context.Context, query string, limit int) (domain.AnswerResult, error)
	SearchOnly(ctx context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.SourceCitation, error)
	DefaultLimit() int
}

// HealthSource reports component health.
type HealthSource interface {
	Status(ctx context.Context, probe bool) domain.HealthStatus
}

// ChatRequest is the body of POST /api/chat. A missing limit selects the default.
type ChatRequest struct {
	Query string `json:"query"`
	Limit *int   `json:"limit,omitempty"`
}

// SearchResponse is the body of GET /api/search.
type SearchResponse struct {
	Query   string                  `json:"query"`
	Results []domain.SourceCitation `json:"results"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status     domain.OverallStatus      `json:"status"`
	Components map[string]map[string]any `json:"components"`
}

// Server implements the API handlers.
type Server struct {
	pipeline Pipeline
	health   HealthSource
	probe    bool
	logger   *zap.Logger
}

// NewServer creates an HTTP API server. probe enables reachability probes on
// every health request.
func NewServer(pipeline Pipeline, health HealthSource, probe bool, logger *zap.Logger) *Server {
	return &Server{pipeline: pipeline, health: health, probe: probe, logger: logger}
}

// Chat handles POST /api/chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body")
		return
	}

	limit := s.pipeline.DefaultLimit()
	if req.Limit != nil {
		limit = *req.Limit
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	res, err := s.pipeline.Answer(ctx, req.Query, limit)
	if err != nil {
		handleDomainError(w, logpkg.FromContext(r.Context()), err)
		return
	}

	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusOK, res)
}

// Search handles GET /api/search?query=...&limit=...&tag=....
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := s.pipeline.DefaultLimit()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, "Invalid limit: must be an integer")
			return
		}
		limit = n
	}

	query := q.Get("query")
	ctx, usage := domain.NewContextWithUsage(r.Context())
	results, err := s.pipeline.SearchOnly(ctx, query, limit, domain.SearchFilter{Tag: q.Get("tag")})
	if err != nil {
		handleDomainError(w, logpkg.FromContext(r.Context()), err)
		return
	}

	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusOK, SearchResponse{Query: query, Results: results})
}

// Health handles GET /api/health. Degraded is still 200; error is 503.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	st := s.health.Status(r.Context(), s.probe)

	components := make(map[string]map[string]any, len(st.Components))
	for name, c := range st.Components {
		body := make(map[string]any, len(c.Details)+2)
		for k, v := range c.Details {
			body[k] = v
		}
		body["status"] = c.State
		if c.LastError != "" {
			body["error"] = c.LastError
		}
		components[name] = body
	}

	httpStatus := http.StatusOK
	if st.Status == domain.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: st.Status, Components: components})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// NotFound answers unknown API routes with a JSON error.
func (s *Server) NotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, CodeBadRequest, "not found")
}

func setUsageHeaders(w http.ResponseWriter, usage *domain.Usage) {
	emb, llm := usage.Tokens()
	if emb > 0 {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(emb))
	}
	if llm > 0 {
		w.Header().Set("X-LLM-Tokens", strconv.Itoa(llm))
	}
}
