package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/config"
	"github.com/stemsi/exstem-examgen/internal/database"
	"github.com/stemsi/exstem-examgen/internal/generation"
	"github.com/stemsi/exstem-examgen/internal/handler"
	"github.com/stemsi/exstem-examgen/internal/lease"
	"github.com/stemsi/exstem-examgen/internal/llm"
	"github.com/stemsi/exstem-examgen/internal/logger"
	"github.com/stemsi/exstem-examgen/internal/repository"
	"github.com/stemsi/exstem-examgen/internal/retrieval"
	"github.com/stemsi/exstem-examgen/internal/router"
	"github.com/stemsi/exstem-examgen/internal/service"
	"github.com/stemsi/exstem-examgen/internal/validator"
	"github.com/stemsi/exstem-examgen/internal/worker"
	"golang.org/x/sync/semaphore"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("model", cfg.LLMModel).
		Bool("rag", cfg.RAGEnabled).
		Msg("Starting ExStem exercise generator")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	ownerRepo := repository.NewOwnerRepository(pool)
	exerciseRepo := repository.NewExerciseRepository(pool)
	docRepo := repository.NewDocRepository(pool)
	resultRepo := repository.NewResultRepository(pool)
	genStore := repository.NewGenerationStore(pool)

	owner, err := ownerRepo.EnsureDefault(ctx, cfg.DefaultOwnerID, cfg.DefaultOwnerName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure default owner")
	}
	log.Info().Str("owner_id", owner.ID.String()).Msg("Default owner ready")

	// ─── Model Client ──────────────────────────────────────────────────
	llmClient := llm.NewClient(llm.ClientConfig{
		BaseURL:        cfg.LLMBaseURL,
		APIKey:         cfg.LLMAPIKey,
		Model:          cfg.LLMModel,
		EmbeddingModel: cfg.EmbeddingModel,
		EnableThinking: cfg.LLMEnableThinking,
		MaxRetries:     cfg.LLMMaxRetries,
		Timeout:        cfg.LLMTimeout,
	})

	// ─── Concurrency Guard ─────────────────────────────────────────────
	var guard lease.Guard
	if cfg.LeaseBackend == "memory" {
		guard = lease.NewMemoryGuard(cfg.LeaseTTL)
		log.Warn().Msg("Using in-process lease guard; run a single instance only")
	} else {
		guard = lease.NewRedisGuard(rdb, cfg.LeaseTTL, log)
	}

	// ─── Knowledge Retrieval ───────────────────────────────────────────
	var (
		augmenter *generation.Augmenter
		indexer   service.DocIndexer
		retriever generation.Retriever
	)
	if cfg.RAGEnabled {
		qdrant := retrieval.NewQdrant(cfg.QdrantURL, cfg.QdrantCollection, cfg.QdrantAPIKey, nil)
		retriever = retrieval.NewRetriever(llmClient, qdrant, cfg.RAGTopK, log)
		augmenter = generation.NewAugmenter(retriever, llmClient, cfg.RAGCurate, log)
		indexer = retrieval.NewIndexer(llmClient, qdrant, log)
	}

	// ─── Generation Pipeline ───────────────────────────────────────────
	coordinator := generation.NewCoordinator(genStore, guard, cfg.FinalizeTimeout, log)
	streamer := generation.NewStreamer(llmClient, log)
	analyzer := generation.NewAnalyzer(llmClient, log)
	completions := semaphore.NewWeighted(int64(cfg.CompletionConcurrency))

	pipeline := generation.NewPipeline(generation.PipelineDeps{
		Coordinator: coordinator,
		Analyzer:    analyzer,
		Augmenter:   augmenter,
		Streamer:    streamer,
		Completer:   generation.NewCompleter(llmClient, completions, cfg.CompletionPerRun, log),
		Timeout:     cfg.PipelineTimeout,
	}, log)

	// ─── Initialize Services ──────────────────────────────────────────
	generationService := service.NewGenerationService(pipeline, analyzer, cfg.RAGEnabled, log)
	exerciseService := service.NewExerciseService(exerciseRepo, resultRepo, rdb, log)
	docService := service.NewDocService(cfg, docRepo, coordinator, streamer, indexer, log)
	chatService := service.NewChatService(llmClient, retriever, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Exercise: handler.NewExerciseHandler(generationService, exerciseService, docService, owner.ID, log),
		Doc:      handler.NewDocHandler(docService, owner.ID, log),
		Chat:     handler.NewChatHandler(chatService, log),
		WS:       handler.NewWSHandler(generationService, owner.ID, log, cfg.AllowedOrigins),
		System:   handler.NewSystemHandler(pool, rdb, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	resultWorker := worker.NewResultWorker(pool, rdb, log)
	reconcileWorker := worker.NewReconcileWorker(genStore, guard, cfg.ReconcileInterval, cfg.LeaseTTL, log)

	go resultWorker.Start(workerCtx)
	go reconcileWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	// No WriteTimeout: generation streams can run up to PIPELINE_TIMEOUT.
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests. In-flight runs get the finalize
	// window to commit or fail.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.FinalizeTimeout+5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for the result queue to drain.
	workerCancel()
	time.Sleep(2 * time.Second)

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
