package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/podcastqa/internal/config"
	dbRedis "github.com/kailas-cloud/podcastqa/internal/db/redis"
	"github.com/kailas-cloud/podcastqa/internal/domain"
	logpkg "github.com/kailas-cloud/podcastqa/internal/logger"
	"github.com/kailas-cloud/podcastqa/internal/metrics"
	"github.com/kailas-cloud/podcastqa/internal/repository/chunk"
	"github.com/kailas-cloud/podcastqa/internal/repository/qdrant"
	"github.com/kailas-cloud/podcastqa/internal/retry"
	openaiTransport "github.com/kailas-cloud/podcastqa/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/podcastqa/internal/usecase/embedding"
	"github.com/kailas-cloud/podcastqa/internal/usecase/ingest"
)

func main() {
	input := flag.String("input", "data/chunks.jsonl", "JSON Lines file with podcast chunks")
	batchSize := flag.Int("batch", 0, "records per embed/upsert batch (default: embedding.batch_size)")
	startSeq := flag.Int64("start-seq", 0, "sequence offset for appended runs")
	flag.Parse()

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

	if err := run(cfg, *input, *batchSize, *startSeq, logger); err != nil {
		logger.Error("Ingestion failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, input string, batchSize int, startSeq int64, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	f, err := os.Open(filepath.Clean(input))
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	index, closeStore, err := openIndex(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var base domain.Embedder = openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:  cfg.Embedding.APIKey,
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
		Logger:  logger,
	})
	if cfg.Embedding.DocumentInstruction != "" {
		base = domain.NewInstructionEmbedder(base, cfg.Embedding.DocumentInstruction)
	}
	if batchSize <= 0 {
		batchSize = cfg.Embedding.BatchSize
	}
	embedder := embeddinguc.NewLazyEmbedder(base, embeddinguc.Options{
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  batchSize,
	}, logger)

	svc := ingest.New(embedder, index, ingest.Options{
		Collection: cfg.Collection.Name,
		BatchSize:  batchSize,
		StartSeq:   startSeq,
	}, logger)

	dim, err := svc.Prepare(ctx)
	if err != nil {
		return err
	}
	logger.Info("Collection ready",
		zap.String("collection", cfg.Collection.Name),
		zap.Int("dimensions", dim),
		zap.String("model", cfg.Embedding.Model),
	)

	start := time.Now()
	rep, err := svc.Run(ctx, f)
	for _, p := range rep.Problems {
		logger.Warn("Record not stored",
			zap.Int("line", p.Line()),
			zap.String("id", p.ID()),
			zap.String("status", string(p.Status())),
			zap.Error(p.Err()),
		)
	}
	logger.Info("Ingestion finished",
		zap.String("input", input),
		zap.Int("stored", rep.Summary.Stored),
		zap.Int("skipped", rep.Summary.Skipped),
		zap.Int("failed", rep.Summary.Failed),
		zap.Int("embedding_tokens", rep.Summary.Tokens),
		zap.Duration("elapsed", time.Since(start)),
	)
	return err
}

// openIndex connects the configured store and waits until it answers.
func openIndex(ctx context.Context, cfg config.Config, logger *zap.Logger) (ingest.Index, func(), error) {
	policy := retry.Policy{
		MaxRetries: cfg.Database.MaxRetries,
		Backoff:    cfg.Database.RetryBackoff(),
	}
	readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second

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
		if err := waitFor(ctx, readiness, repo.Ping); err != nil {
			return nil, nil, fmt.Errorf("qdrant not ready: %w", err)
		}
		return repo, func() {}, nil
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create store: %w", err)
	}
	if err := store.WaitForReady(ctx, readiness); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("database not ready: %w", err)
	}
	logger.Info("Connected to database", zap.Strings("addrs", cfg.Database.Addrs))

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
	return repo, store.Close, nil
}

// waitFor polls ping until it succeeds or timeout expires.
func waitFor(ctx context.Context, timeout time.Duration, ping func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		err := ping(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for store: %w", err)
		case <-ticker.C:
		}
	}
}
