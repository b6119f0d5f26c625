package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kira-labs/kira/internal/config"
	dbRedis "github.com/kira-labs/kira/internal/db/redis"
	"github.com/kira-labs/kira/internal/domain"
	logpkg "github.com/kira-labs/kira/internal/logger"
	"github.com/kira-labs/kira/internal/metrics"
	cacherepo "github.com/kira-labs/kira/internal/repository/cache"
	documentrepo "github.com/kira-labs/kira/internal/repository/document"
	"github.com/kira-labs/kira/internal/repository/embcache"
	gazetterepo "github.com/kira-labs/kira/internal/repository/gazette"
	"github.com/kira-labs/kira/internal/repository/policyfs"
	chiTransport "github.com/kira-labs/kira/internal/transport/chi"
	geminiProvider "github.com/kira-labs/kira/internal/transport/gemini"
	openaiProvider "github.com/kira-labs/kira/internal/transport/openai"
	analysisuc "github.com/kira-labs/kira/internal/usecase/analysis"
	assistantuc "github.com/kira-labs/kira/internal/usecase/assistant"
	dashboarduc "github.com/kira-labs/kira/internal/usecase/dashboard"
	gazetteuc "github.com/kira-labs/kira/internal/usecase/gazette"
	healthuc "github.com/kira-labs/kira/internal/usecase/health"
	"github.com/kira-labs/kira/internal/usecase/llm"
	policyqauc "github.com/kira-labs/kira/internal/usecase/policyqa"
	"github.com/kira-labs/kira/internal/usecase/rag"
	"github.com/kira-labs/kira/internal/usecase/ranking"
	"github.com/kira-labs/kira/internal/version"
)

// legacyGazetteFile is the dataset name shipped alongside the policy tree.
const legacyGazetteFile = "Gazetted_data_18-02-2026.json"

func main() {
	// Load configuration based on ENV
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

	logger.Info("Starting kira API server",
		zap.String("version", version.Info()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("llm_provider", cfg.LLM.Provider),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		// Services degrade to the on-disk policy tree and skip caching while Redis is away.
		logger.Warn("Database not ready, continuing degraded", zap.Error(err))
	} else {
		logger.Info("Connected to database")
	}

	// Register metrics explicitly (no init())
	metrics.RegisterHTTPMetrics()
	metrics.RegisterLLMMetrics()

	// LLM orchestration: adapters -> failover client -> embedding cache
	client := llm.NewClient(cfg.LLM.Provider, cfg.ProviderConfigs(), providerFactory(logger), llm.RetryConfig{
		Timeout:    time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		MaxRetries: cfg.LLM.Retries(),
		Backoff:    time.Duration(cfg.LLM.BackoffMS) * time.Millisecond,
	}, logger)
	if client.Primary() == "" {
		logger.Warn("No credentialed LLM provider, generation will use fallbacks",
			zap.String("mode", cfg.LLM.Provider))
	} else {
		logger.Info("LLM client ready",
			zap.String("primary", client.Primary()),
			zap.Strings("order", client.Order()),
		)
	}

	embedder := embcache.New(
		client, store,
		cfg.Database.KeyPrefix+"emb:", client.Primary(),
		time.Duration(cfg.Cache.EmbeddingTTL)*time.Second,
		metrics.EmbeddingCacheTotal, logger,
	)

	// Repositories
	cache := cacherepo.New(store, cfg.Cache.Namespace, cfg.Cache.TTL())
	policies := policyfs.New(cfg.Data.PoliciesPath, logger)
	documents := documentrepo.New(store, policies, documentrepo.Config{
		KeyPrefix:  cfg.Database.KeyPrefix,
		IndexName:  cfg.Database.VectorIndex,
		Dimensions: primaryDimensions(cfg, client.Primary()),
		Provider:   client.Primary(),
	}, logger)
	if err := documents.EnsureIndex(ctx); err != nil {
		logger.Warn("Policy index unavailable", zap.Error(err))
	}
	if cfg.Data.SeedStore {
		go seedDocuments(ctx, documents, embedder, cfg.Retrieval.EmbedCharLimit, logger)
	}

	gazettes := gazetterepo.New([]string{
		cfg.Data.GazettesFile,
		filepath.Join(cfg.Data.PoliciesPath, legacyGazetteFile),
	}, logger)
	if err := gazettes.Load(); err != nil {
		logger.Warn("Gazette dataset not loaded", zap.Error(err))
	}
	if cfg.Data.WatchGazette {
		go func() {
			if err := gazettes.Watch(ctx); err != nil {
				logger.Warn("Gazette watcher stopped", zap.Error(err))
			}
		}()
	}

	// Use cases
	ranker := ranking.NewRanker(embedder, ranking.Config{
		ChunkSize:      cfg.Retrieval.ChunkSize,
		ChunkOverlap:   cfg.Retrieval.ChunkOverlap,
		CandidateLimit: cfg.Retrieval.CandidateLimit,
		TopK:           cfg.Retrieval.TopK,
		LexicalWeight:  cfg.Retrieval.LexicalWeight,
		SemanticWeight: cfg.Retrieval.SemanticWeight,
		EmbedCharLimit: cfg.Retrieval.EmbedCharLimit,
		Parallelism:    cfg.Retrieval.Parallelism,
	}, logger)
	retriever := rag.New(documents, documents, embedder, rag.Config{
		MaxResults:          cfg.Retrieval.MaxResults,
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
		VectorSearch:        cfg.Retrieval.VectorSearch,
	}, logger)

	gazetteSvc := gazetteuc.New(gazettes, client, ranker, gazetteuc.Config{
		ChunkSize:    cfg.Retrieval.AnalysisChunkSize,
		ChunkOverlap: cfg.Retrieval.AnalysisOverlap,
	}, logger)
	analysisSvc := analysisuc.New(retriever, client, gazetteSvc, cache, logger)
	assistantSvc := assistantuc.New(retriever, client, cache, logger)
	policyQASvc := policyqauc.New(gazettes, ranker, client, logger)
	dashboardSvc := dashboarduc.New(documents, cache, logger)
	healthSvc := healthuc.New(cache, documents, client)

	server := chiTransport.NewServer(cfg.AppName, chiTransport.Services{
		Dashboard: dashboardSvc,
		Analysis:  analysisSvc,
		Assistant: assistantSvc,
		PolicyQA:  policyQASvc,
		Gazettes:  gazetteSvc,
		Records:   gazettes,
		Readiness: healthSvc,
	})

	auth := chiTransport.NewAuthenticator(chiTransport.AuthConfig{
		APIKeys:   cfg.Auth.APIKeys,
		JWTSecret: cfg.Auth.JWTSecret,
		Issuer:    cfg.Auth.JWTIssuer,
		Audience:  cfg.Auth.JWTAudience,
		Disabled:  cfg.Auth.Disabled || env == "dev",
	})
	if auth.Disabled() {
		if env == "prod" {
			logger.Fatal("Authentication is not configured: set auth.jwt_secret or auth.api_keys")
		}
		logger.Warn("Authentication disabled", zap.String("env", env))
	}

	handler := chiTransport.NewRouter(server, chiTransport.RouterConfig{
		Env:             env,
		CORSOrigins:     cfg.CORS.Origins,
		MaxRequestBytes: int64(cfg.Limits.MaxRequestSizeBytes),
		MetricsEnabled:  cfg.HTTP.MetricsEnabled,
		RateLimiter:     chiTransport.NewRateLimiter(cache, cfg.Limits.RateLimitPerMinute),
		Auth:            auth,
		Logger:          logger,
	})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
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
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// providerFactory maps a provider name to its adapter. Mega and OpenAI share the
// OpenAI-compatible adapter; Gemini uses its own.
func providerFactory(logger *zap.Logger) llm.Factory {
	return func(pc domain.ProviderConfig) domain.Provider {
		if pc.Name == domain.ProviderGemini {
			return geminiProvider.NewProvider(pc, logger)
		}
		return openaiProvider.NewProvider(pc, logger)
	}
}

func primaryDimensions(cfg config.Config, primary string) int {
	for _, pc := range cfg.ProviderConfigs() {
		if pc.Name == primary {
			return pc.Dimensions
		}
	}
	return 0
}

func seedDocuments(
	ctx context.Context,
	documents *documentrepo.Repo,
	embedder domain.Embedder,
	embedCharLimit int,
	logger *zap.Logger,
) {
	n, err := documents.Seed(ctx, embedder, embedCharLimit)
	if err != nil {
		logger.Warn("Policy store seeding failed", zap.Error(err))
		return
	}
	logger.Info("Policy store seeded", zap.Int("documents", n))
}
