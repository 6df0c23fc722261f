// Package qdrant implements the chunk index on a Qdrant server over its REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/podcastqa/internal/domain"
	"github.com/kailas-cloud/podcastqa/internal/retry"
)

// Payload keys, shared with existing collections.
const (
	payloadTitle   = "podcast_title"
	payloadTag     = "podcast_tag"
	payloadContent = "content"
	payloadSeq     = "seq"
	payloadChunkID = "chunk_id"
)

// Config holds connection parameters.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	// Dimensions is the vector size of the collection; 0 skips the check.
	Dimensions int
	MaxLimit   int
	Timeout    time.Duration
	Retry      retry.Policy
	Requests   *prometheus.CounterVec
}

// Repo implements domain.VectorIndex on Qdrant.
type Repo struct {
	cfg    Config
	base   string
	client *http.Client
	logger *zap.Logger
}

var _ domain.VectorIndex = (*Repo)(nil)

// New creates a Qdrant repository.
func New(cfg Config, logger *zap.Logger) *Repo {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Repo{
		cfg:    cfg,
		base:   strings.TrimRight(cfg.URL, "/"),
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Collection returns the configured collection name.
func (r *Repo) Collection() string { return r.cfg.Collection }

// statusError is a non-2xx reply from Qdrant.
type statusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// transient reports whether a Qdrant call is worth retrying: transport
// failures and overload replies.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Status == http.StatusTooManyRequests || se.Status >= 500
	}
	return true
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

type searchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
	Filter      *filter   `json:"filter,omitempty"`
}

type filter struct {
	Must []fieldCondition `json:"must"`
}

type fieldCondition struct {
	Key   string `json:"key"`
	Match struct {
		Value string `json:"value"`
	} `json:"match"`
}

type searchResponse struct {
	Result []struct {
		ID      any            `json:"id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

// Search queries the collection for the nearest chunks.
func (r *Repo) Search(
	ctx context.Context, vector []float32, limit int, f domain.SearchFilter,
) ([]domain.ScoredChunk, error) {
	if limit < 1 || (r.cfg.MaxLimit > 0 && limit > r.cfg.MaxLimit) {
		return nil, domain.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", r.cfg.MaxLimit))
	}
	if err := domain.CheckDimension(vector, r.cfg.Dimensions); err != nil {
		return nil, err
	}

	req := searchRequest{Vector: vector, Limit: limit, WithPayload: true}
	if f.Tag != "" {
		cond := fieldCondition{Key: payloadTag}
		cond.Match.Value = f.Tag
		req.Filter = &filter{Must: []fieldCondition{cond}}
	}

	var resp searchResponse
	err := r.call(ctx, "search", http.MethodPost, r.collectionPath(r.cfg.Collection)+"/points/search", req, &resp)
	if isNotFound(err) {
		r.logger.Debug("Collection missing, returning no results", zap.String("collection", r.cfg.Collection))
		return nil, nil
	}
	if err != nil {
		return nil, classify("search "+r.cfg.Collection, err)
	}

	out := make([]domain.ScoredChunk, 0, len(resp.Result))
	for _, hit := range resp.Result {
		out = append(out, domain.ScoredChunk{
			Chunk: domain.Chunk{
				ID:      payloadString(hit.Payload, payloadChunkID, fmt.Sprint(hit.ID)),
				Title:   payloadString(hit.Payload, payloadTitle, ""),
				Tag:     tagFromPayload(hit.Payload),
				Content: payloadString(hit.Payload, payloadContent, ""),
				Seq:     payloadInt(hit.Payload, payloadSeq),
			},
			Score: min(1, max(0, hit.Score)),
		})
	}

	out = domain.RankChunks(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type point struct {
	ID      any            `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Upsert writes chunks and waits for Qdrant to apply them.
func (r *Repo) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]point, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		if c.ID == "" {
			return domain.NewValidationError("id", "is required")
		}
		if err := domain.CheckDimension(c.Vector, r.cfg.Dimensions); err != nil {
			return fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		points[i] = point{
			ID:     PointID(c.ID),
			Vector: c.Vector,
			Payload: map[string]any{
				payloadChunkID: c.ID,
				payloadTitle:   c.Title,
				payloadTag:     c.Tag,
				payloadContent: c.Content,
				payloadSeq:     c.Seq,
			},
		}
	}

	body := map[string]any{"points": points}
	if err := r.call(ctx, "upsert", http.MethodPut, r.collectionPath(r.cfg.Collection)+"/points?wait=true", body, nil); err != nil {
		return classify("upsert "+r.cfg.Collection, err)
	}
	return nil
}

type collectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// EnsureCollection creates the collection and its tag index unless the
// collection exists. An existing collection of another size is an error.
func (r *Repo) EnsureCollection(ctx context.Context, name string, dim int, metric domain.Distance) error {
	if dim <= 0 {
		return domain.NewValidationError("dimensions", "must be positive")
	}
	distance, err := qdrantDistance(metric)
	if err != nil {
		return err
	}

	var info collectionInfo
	err = r.call(ctx, "collection_info", http.MethodGet, r.collectionPath(name), nil, &info)
	switch {
	case err == nil:
		if got := info.Result.Config.Params.Vectors.Size; got != 0 && got != dim {
			return fmt.Errorf("collection %s: %w: has %d, want %d", name, domain.ErrVectorDimMismatch, got, dim)
		}
		r.logger.Info("Collection already exists", zap.String("collection", name))
		return nil
	case !isNotFound(err):
		return classify("collection info "+name, err)
	}

	create := map[string]any{"vectors": map[string]any{"size": dim, "distance": distance}}
	if err := r.call(ctx, "create_collection", http.MethodPut, r.collectionPath(name), create, nil); err != nil {
		return classify("create collection "+name, err)
	}

	index := map[string]any{"field_name": payloadTag, "field_schema": "keyword"}
	if err := r.call(ctx, "create_index", http.MethodPut, r.collectionPath(name)+"/index?wait=true", index, nil); err != nil {
		r.logger.Warn("Failed to create tag index", zap.String("collection", name), zap.Error(err))
	}

	r.logger.Info("Collection created",
		zap.String("collection", name),
		zap.Int("dimensions", dim),
		zap.String("distance", distance),
	)
	return nil
}

// Ping checks that Qdrant answers, without retrying.
func (r *Repo) Ping(ctx context.Context) error {
	err := r.do(ctx, http.MethodGet, "/collections", nil, nil)
	r.count("ping", err)
	if err != nil {
		return classify("ping", err)
	}
	return nil
}

// HasCollection reports whether the configured collection exists.
func (r *Repo) HasCollection(ctx context.Context) (bool, error) {
	err := r.do(ctx, http.MethodGet, r.collectionPath(r.cfg.Collection), nil, nil)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, classify("collection info", err)
	}
	return true, nil
}

// PointID maps a chunk ID to a Qdrant point ID: unsigned integers are used
// as-is, anything else becomes a name-based UUID.
func PointID(id string) any {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return n
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

func (r *Repo) collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

func (r *Repo) call(ctx context.Context, op, method, path string, body, out any) error {
	return retry.Do(ctx, r.cfg.Retry, transient, func(ctx context.Context) error {
		err := r.do(ctx, method, path, body, out)
		r.count(op, err)
		return err
	}, func(attempt int, err error) {
		r.logger.Warn("Qdrant call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	})
}

func (r *Repo) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("marshal request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.base+path, reader)
	if err != nil {
		return retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.cfg.APIKey != "" {
		req.Header.Set("api-key", r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Permanent(fmt.Errorf("decode %s response: %w", path, err))
	}
	return nil
}

func (r *Repo) count(op string, err error) {
	if r.cfg.Requests == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.cfg.Requests.WithLabelValues("qdrant", op, status).Inc()
}

func classify(op string, err error) error {
	var se *statusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	case errors.As(err, &se) && se.Status < 500 && se.Status != http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrIndexUnavailable, err)
	}
}

func qdrantDistance(m domain.Distance) (string, error) {
	switch m {
	case domain.DistanceCosine:
		return "Cosine", nil
	case domain.DistanceDot:
		return "Dot", nil
	case domain.DistanceEuclid:
		return "Euclid", nil
	default:
		return "", domain.NewValidationError("distance", fmt.Sprintf("unknown metric %q", m))
	}
}

func payloadString(p map[string]any, key, fallback string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return fallback
}

// tagFromPayload reads the tag, joining list-valued tags with ", ".
func tagFromPayload(p map[string]any) string {
	switch v := p[payloadTag].(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

func payloadInt(p map[string]any, key string) int64 {
	if v, ok := p[key].(float64); ok {
		return int64(v)
	}
	return 0
}
