package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"resumerag/internal/adapter/provider/llm/openai"
	"resumerag/internal/api"
	"resumerag/internal/cache"
	"resumerag/internal/db/postgres"
	redisdb "resumerag/internal/db/redis"
	"resumerag/internal/domain/query"
	"resumerag/internal/domain/retrieval"
	"resumerag/internal/ingest"
	"resumerag/internal/platform/config"
	applog "resumerag/internal/platform/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Config load failed: %v\n", err)
		os.Exit(1)
	}

	applog.Init(applog.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	// ── 简历登记库（可选） ──
	var resumeStore *postgres.ResumeStore
	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			applog.Fatalf("❌ Failed to connect to database: %v", err)
		}
		defer db.Close()

		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetimeSeconds) * time.Second)

		if err := db.Ping(); err != nil {
			applog.Fatalf("❌ Failed to ping database: %v", err)
		}
		applog.Info("✅ Connected to PostgreSQL")

		resumeStore = postgres.NewResumeStore(db)
		migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := resumeStore.EnsureTable(migrateCtx); err != nil {
			applog.Warnf("⚠️  Failed to ensure resumes table: %v", err)
		} else {
			applog.Info("✅ Resumes table ready")
		}
		migrateCancel()
	} else {
		applog.Info("ℹ️  No DATABASE_URL set, resume registry disabled")
	}

	// ── Redis 持久缓存层 ──
	opt, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		applog.Fatalf("❌ Invalid REDIS_URL: %v", err)
	}
	redisClient := goredis.NewClient(opt)
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		applog.Fatalf("❌ Redis connection failed: %v", err)
	}
	pingCancel()
	applog.Info("✅ Connected to Redis")

	cacheLayer, err := cache.New(cache.Config{
		EmbeddingCapacity: cfg.Cache.EmbeddingCapacity,
		AnswerCapacity:    cfg.Cache.AnswerCapacity,
		AnswerTTL:         time.Duration(cfg.Cache.AnswerTTLSeconds) * time.Second,
	}, redisdb.NewCacheStore(redisClient))
	if err != nil {
		applog.Fatalf("❌ Failed to build cache layer: %v", err)
	}
	applog.Infof("✅ Cache layer ready (embeddings: %d, answers: %d, ttl: %ds)",
		cfg.Cache.EmbeddingCapacity, cfg.Cache.AnswerCapacity, cfg.Cache.AnswerTTLSeconds)

	// ── Embedding 链：OpenAI 上游 + 两级缓存 ──
	rcfg := cfg.Retrieval
	baseEmbedder := retrieval.NewOpenAIEmbedder(retrieval.OpenAIEmbedderConfig{
		BaseURL:    cfg.OpenAI.BaseURL,
		APIKey:     cfg.OpenAI.APIKey,
		Model:      rcfg.EmbeddingModel,
		Dims:       rcfg.EmbeddingDims,
		BatchSize:  rcfg.EmbeddingBatchSize,
		MaxRetries: rcfg.EmbedMaxRetries,
	})
	embedder := retrieval.NewCachedEmbedder(baseEmbedder, cacheLayer, rcfg.EmbeddingBatchSize, rcfg.EmbedConcurrency)
	applog.Infof("✅ Embedder initialized (model: %s, dims: %d)", rcfg.EmbeddingModel, rcfg.EmbeddingDims)

	// ── 语料与检索 ──
	corpus := retrieval.NewCorpus()
	retriever, err := retrieval.NewRetriever(corpus, embedder, &rcfg)
	if err != nil {
		applog.Fatalf("❌ Failed to build retriever: %v", err)
	}

	source := ingest.NewDirectorySource(rcfg.ResumeDir, ingest.NewRegistry())
	ingestor, err := ingest.NewIngestor(corpus, embedder, source, cacheLayer, resumeStore, rcfg)
	if err != nil {
		applog.Fatalf("❌ Failed to build ingestor: %v", err)
	}
	if err := ingestor.Restore(); err != nil {
		applog.Warnf("⚠️  Snapshot restore failed, starting with empty corpus: %v", err)
	}

	// ── 查询引擎 ──
	provider := openai.New(openai.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
	})
	generator := query.NewLLMGenerator(provider, cfg.LLM.Model, cfg.LLM.Temperature, cfg.LLM.MaxTokens)
	engine, err := query.NewEngine(retriever, generator, cacheLayer, rcfg)
	if err != nil {
		applog.Fatalf("❌ Failed to build query engine: %v", err)
	}
	applog.Infof("✅ Query engine ready (model: %s, top_k: %d, weights: %.1f/%.1f)",
		cfg.LLM.Model, rcfg.TopK, rcfg.VectorWeight, rcfg.KeywordWeight)

	// ── HTTP 服务 ──
	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	serverConfig.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	server := api.NewServer(serverConfig, engine, retriever, ingestor, corpus, resumeStore)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		applog.Info("🔄 Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			applog.Errorf("❌ Server shutdown error: %v", err)
		}
	}()

	if err := server.Start(); err != nil && err.Error() != "http: Server closed" {
		applog.Fatalf("❌ Server error: %v", err)
	}

	applog.Info("👋 Server stopped")
}
