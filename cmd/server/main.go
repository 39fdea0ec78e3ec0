// Package main is the entrypoint for the video generation orchestrator.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/videogen/orchestrator/internal/api"
	"github.com/videogen/orchestrator/internal/api/handler"
	mw "github.com/videogen/orchestrator/internal/api/middleware"
	"github.com/videogen/orchestrator/internal/cache"
	"github.com/videogen/orchestrator/internal/collaborator"
	"github.com/videogen/orchestrator/internal/collaborator/local"
	"github.com/videogen/orchestrator/internal/config"
	"github.com/videogen/orchestrator/internal/orchestrator"
	"github.com/videogen/orchestrator/internal/pipeline"
	"github.com/videogen/orchestrator/internal/store"
	"github.com/videogen/orchestrator/pkg/models"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Build the pipeline graph — a cyclic or inconsistent topology is a
	// startup failure, never a runtime one
	graph, err := pipeline.New(pipeline.DefaultDefinitions(pipeline.Overrides{
		MaxRetries:   cfg.Pipeline.MaxRetries,
		RetryBackoff: cfg.Pipeline.RetryBackoff,
	}))
	if err != nil {
		return fmt.Errorf("build pipeline graph: %w", err)
	}
	slog.Info("pipeline graph validated", "stages", len(graph.Order()))

	// 6. Register collaborators
	validator := local.NewValidator(local.ValidatorConfig{
		MinLength:    cfg.Validation.MinInputLength,
		MaxLength:    cfg.Validation.MaxInputLength,
		BlockedTerms: cfg.Validation.BlockedTerms,
	})
	collabs := collaborator.NewRegistry()
	registerCollaborators(collabs, graph, validator, cfg.Collaborators)

	// 7. Create store, executor, orchestrator
	pgStore := store.NewPostgresStore(pool)
	executor := orchestrator.NewExecutor(pgStore, collabs, graph)
	registry, err := orchestrator.NewRegistry(cfg.Pipeline.JobRegistryCapacity)
	if err != nil {
		return fmt.Errorf("create job registry: %w", err)
	}
	orch := orchestrator.New(pgStore, redisCache, graph, executor, registry)

	// 8. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, cfg.Pipeline.RateLimitPerMinute)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: handler.NewHealthHandler(pgStore, redisCache),
		ReadyHandler:  handler.NewReadyHandler(pgStore),

		ValidateHandler: handler.NewValidateHandler(validator),
		ProcessHandler:  handler.NewProcessHandler(validator, orch),
		StatusHandler:   handler.NewStatusHandler(orch),
		CancelHandler:   handler.NewCancelHandler(orch),

		SceneAnalyzeHandler:     stageHandler(collabs, graph, models.StageSceneAnalysis),
		StoryboardHandler:       stageHandler(collabs, graph, models.StageStoryboard),
		CharacterHandler:        stageHandler(collabs, graph, models.StageCharacterGeneration),
		ConsistencyCheckHandler: consistencyHandler(collabs, graph),
		KeyframeHandler:         stageHandler(collabs, graph, models.StageKeyframeGeneration),
		VideoHandler:            stageHandler(collabs, graph, models.StageVideoGeneration),
		VoiceoverHandler:        stageHandler(collabs, graph, models.StageVoiceoverGeneration),
		ComposeHandler:          stageHandler(collabs, graph, models.StageComposition),

		GenerateVideoHandler:    handler.NewGenerateVideoHandler(validator, orch),
		GenerationStatusHandler: handler.NewGenerationStatusHandler(orch),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout; in-flight jobs get the same window to
	// settle their state before the process exits.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := orch.Drain(shutdownCtx); err != nil {
		slog.Warn("jobs still running at shutdown deadline", "error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// registerCollaborators binds the in-process validator and one HTTP client
// per external generation service, each under its stage's concurrency cap.
func registerCollaborators(reg *collaborator.Registry, graph *pipeline.Graph, validator *local.Validator, cfg config.CollaboratorConfig) {
	limit := func(name models.StageName) int64 {
		def, _ := graph.Definition(name)
		return def.MaxConcurrent
	}

	reg.Register(models.StageValidation, validator, limit(models.StageValidation))

	endpoints := map[models.StageName]string{
		models.StageLanguageDetection:   cfg.LanguageDetectionURL,
		models.StageTranslation:         cfg.TranslationURL,
		models.StageSceneAnalysis:       cfg.SceneAnalysisURL,
		models.StageStoryboard:          cfg.StoryboardURL,
		models.StageCharacterGeneration: cfg.CharacterGenerationURL,
		models.StageKeyframeGeneration:  cfg.KeyframeGenerationURL,
		models.StageVideoGeneration:     cfg.VideoGenerationURL,
		models.StageVoiceoverGeneration: cfg.VoiceoverGenerationURL,
		models.StageComposition:         cfg.CompositionURL,
	}
	for stage, endpoint := range endpoints {
		reg.Register(stage, collaborator.NewHTTPCollaborator(string(stage), endpoint), limit(stage))
	}
}

func stageHandler(collabs *collaborator.Registry, graph *pipeline.Graph, stage models.StageName) http.HandlerFunc {
	def, _ := graph.Definition(stage)
	return handler.NewStageInvokeHandler(collabs, stage, def.Timeout)
}

func consistencyHandler(collabs *collaborator.Registry, graph *pipeline.Graph) http.HandlerFunc {
	def, _ := graph.Definition(models.StageCharacterGeneration)
	return handler.NewConsistencyCheckHandler(collabs, def.Timeout)
}
