package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/podcastqa/internal/config"
	dbRedis "github.com/kailas-cloud/podcastqa/internal/db/redis"
	"github.com/kailas-cloud/podcastqa/internal/domain"
	logpkg "github.com/kailas-cloud/podcastqa/internal/logger"
	"github.com/kailas-cloud/podcastqa/internal/metrics"
	"github.com/kailas-cloud/podcastqa/internal/repository/chunk"
	"github.com/kailas-cloud/podcastqa/internal/repository/embcache"
	"github.com/kailas-cloud/podcastqa/internal/repository/qdrant"
	"github.com/kailas-cloud/podcastqa/internal/retry"
	chiTransport "github.com/kailas-cloud/podcastqa/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/podcastqa/internal/transport/openai"
	"github.com/kailas-cloud/podcastqa/internal/usecase/contextasm"
	embeddinguc "github.com/kailas-cloud/podcastqa/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/podcastqa/internal/usecase/health"
	raguc "github.com/kailas-cloud/podcastqa/internal/usecase/rag"
	"github.com/kailas-cloud/podcastqa/internal/usecase/retrieval"
	"github.com/kailas-cloud/podcastqa/internal/usecase/synthesis"
	"github.com/kailas-cloud/podcastqa/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting podcastqa API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("collection", cfg.Collection.Name),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("llm_model", cfg.LLM.Model),
	)

	metrics.Register()

	tracker := healthuc.NewTracker(cfg.Health.ProbeTimeout(), logger,
		domain.ComponentEmbedder, domain.ComponentVectorIndex, domain.ComponentLLM)

	ctx := context.Background()
	idx, kv, closeStore := openIndex(ctx, cfg, logger)
	defer closeStore()

	tracker.SetProbe(domain.ComponentVectorIndex, healthuc.IndexProbe(idx))
	tracker.SetDetail(domain.ComponentVectorIndex, "driver", cfg.Database.Driver)
	tracker.SetDetail(domain.ComponentVectorIndex, "collection", cfg.Collection.Name)

	embedder := buildEmbedder(cfg, cfg.Embedding.QueryInstruction, kv, tracker, logger)
	tracker.SetDetail(domain.ComponentEmbedder, "model", cfg.Embedding.Model)
	tracker.SetDetail(domain.ComponentEmbedder, "dimensions", strconv.Itoa(cfg.Embedding.Dimensions))

	chat := openaiTransport.NewChat(&openaiTransport.ChatConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Logger:      logger,
	})
	tracker.SetProbe(domain.ComponentLLM, healthuc.ModelProbe(chat, openaiTransport.IsAuthError))
	tracker.SetDetail(domain.ComponentLLM, "model", cfg.LLM.Model)

	retriever := retrieval.New(embedder, idx, retrieval.Options{
		EmbedTimeout:  cfg.RAG.EmbedTimeout(),
		SearchTimeout: cfg.RAG.SearchTimeout(),
		Health:        tracker,
	}, logger)

	synthesizer := synthesis.New(chat, synthesis.Options{
		Timeout: cfg.RAG.LLMTimeout(),
		Retry: retry.Policy{
			MaxRetries: cfg.LLM.MaxRetries,
			Backoff:    cfg.LLM.RetryBackoff(),
		},
		Transient: openaiTransport.IsTransient,
		Fatal:     openaiTransport.IsAuthError,
		Breaker: synthesis.BreakerSettings{
			MaxFailures: cfg.LLM.Breaker.MaxFailures,
			OpenTimeout: time.Duration(cfg.LLM.Breaker.OpenTimeoutSec) * time.Second,
		},
		Health: tracker,
	}, logger)

	pipeline := raguc.New(retriever, contextasm.New(cfg.RAG.MaxContextChars), synthesizer, raguc.Options{
		DefaultLimit:  cfg.RAG.DefaultLimit,
		MaxLimit:      cfg.RAG.MaxLimit,
		MaxQueryChars: cfg.RAG.MaxQueryChars,
	}, logger)

	server := chiTransport.NewServer(pipeline, tracker, cfg.Health.Probe, logger)
	handler := chiTransport.NewRouter(server, chiTransport.RouterOptions{
		APIKeys:     cfg.Auth.APIKeys,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		StaticDir:   cfg.HTTP.StaticDir,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// vectorIndex is what the server needs from a store: search plus the
// reachability checks behind /api/health.
type vectorIndex interface {
	domain.VectorIndex
	healthuc.CollectionChecker
}

// cacheStore backs the embedding cache. Nil when the driver has no KV side.
type cacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// openIndex connects the configured vector store. The returned cleanup closes it.
func openIndex(ctx context.Context, cfg config.Config, logger *zap.Logger) (vectorIndex, cacheStore, func()) {
	policy := retry.Policy{
		MaxRetries: cfg.Database.MaxRetries,
		Backoff:    cfg.Database.RetryBackoff(),
	}

	if cfg.Database.Driver == config.DriverQdrant {
		repo := qdrant.New(qdrant.Config{
			URL:        cfg.Database.QdrantURL,
			APIKey:     cfg.Database.QdrantAPIKey,
			Collection: cfg.Collection.Name,
			Dimensions: cfg.Embedding.Dimensions,
			MaxLimit:   cfg.RAG.MaxLimit,
			Retry:      policy,
			Requests:   metrics.IndexRequestsTotal,
		}, logger)
		return repo, nil, func() {}
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}

	// An unreachable store is reported by /api/health rather than failing startup.
	readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(ctx, readiness); err != nil {
		logger.Warn("Database not ready, continuing", zap.Error(err))
	} else {
		logger.Info("Connected to database", zap.Strings("addrs", cfg.Database.Addrs))
	}

	repo := chunk.New(store, chunk.Options{
		KeyPrefix:  cfg.Collection.KeyPrefix,
		Collection: cfg.Collection.Name,
		Dimensions: cfg.Embedding.Dimensions,
		MaxLimit:   cfg.RAG.MaxLimit,
		HNSW: chunk.HNSWConfig{
			M:           cfg.Collection.HNSWM,
			EFConstruct: cfg.Collection.HNSWEFConstruct,
		},
		Retry:    policy,
		Requests: metrics.IndexRequestsTotal,
	}, logger)

	var kv cacheStore
	if cfg.Embedding.Cache {
		kv = store
	}
	return repo, kv, store.Close
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instruction -> Lazy.
func buildEmbedder(
	cfg config.Config,
	instruction string,
	kv cacheStore,
	health domain.HealthReporter,
	logger *zap.Logger,
) *embeddinguc.LazyEmbedder {
	var embedder domain.Embedder = openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:  cfg.Embedding.APIKey,
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
		Logger:  logger,
	})

	if kv != nil {
		embedder = embcache.New(embedder, kv, cfg.Collection.KeyPrefix, cfg.Embedding.Model,
			embcache.DefaultTTL, metrics.EmbeddingCacheTotal, logger)
	}

	// Instruction prefix sits outside the cache so the key includes it.
	if instruction != "" {
		embedder = domain.NewInstructionEmbedder(embedder, instruction)
	}

	return embeddinguc.NewLazyEmbedder(embedder, embeddinguc.Options{
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
		Health:     health,
	}, logger)
}
