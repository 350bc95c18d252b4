// Package main is the entrypoint for the PatentHound API server.
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

	"github.com/patenthound/patenthound/internal/api"
	"github.com/patenthound/patenthound/internal/api/handler"
	mw "github.com/patenthound/patenthound/internal/api/middleware"
	"github.com/patenthound/patenthound/internal/api/response"
	"github.com/patenthound/patenthound/internal/cache"
	"github.com/patenthound/patenthound/internal/config"
	"github.com/patenthound/patenthound/internal/intake"
	"github.com/patenthound/patenthound/internal/patents"
	"github.com/patenthound/patenthound/internal/research"
	"github.com/patenthound/patenthound/internal/scheduler"
	"github.com/patenthound/patenthound/internal/store"
	"github.com/patenthound/patenthound/internal/webhook"
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
	slog.Info("config loaded",
		"research_provider", cfg.Research.Provider,
		"patent_provider", cfg.Patents.Provider,
		"env", cfg.Server.Env)

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

	// 5. Create research and patent providers
	provider, err := research.NewProvider(cfg.Research)
	if err != nil {
		return fmt.Errorf("create research provider: %w", err)
	}
	slog.Info("research provider initialized", "provider", provider.Name())

	patentClient, err := patents.NewClient(cfg.Patents)
	if err != nil {
		return fmt.Errorf("create patent client: %w", err)
	}
	slog.Info("patent client initialized", "provider", patentClient.Name())

	// 6. Create store and services
	pgStore := store.NewPostgresStore(pool)

	sched := scheduler.New(pgStore, redisCache, provider, cfg.Scheduler.MaxConcurrentJobs)

	verifier, err := webhook.NewVerifier(cfg.Research.WebhookSecret)
	if err != nil {
		return fmt.Errorf("create webhook verifier: %w", err)
	}
	receiver := webhook.NewReceiver(pgStore, redisCache)

	searchClient := intake.NewTavilyClient(cfg.Search.TavilyBaseURL, cfg.Search.TavilyAPIKey, cfg.Search.Timeout)
	intakeSvc := intake.NewService(searchClient)

	// 7. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:       auth,
		RateLimit:  rateLimit,
		CronSecret: cfg.Scheduler.CronSecret,

		HealthHandler: healthHandler(pgStore, redisCache),

		ScheduleHandler:     handler.NewScheduleHandler(pgStore, sched, cfg.Scheduler.DefaultMaxRetries),
		ScheduleListHandler: handler.NewScheduleListHandler(pgStore),
		ListJobsHandler:     handler.NewListJobsHandler(pgStore),
		GetJobHandler:       handler.NewGetJobHandler(pgStore),
		StatusHandler:       handler.NewStatusHandler(sched),
		RetryHandler:        handler.NewRetryHandler(pgStore),
		ResultHandler:       handler.NewResultHandler(pgStore),
		GetPatentHandler:    handler.NewGetPatentHandler(patentClient, redisCache),

		CronHandler: handler.NewCronHandler(sched),

		ProviderWebhookHandler: handler.NewProviderWebhookHandler(verifier, receiver),
		ResearchWebhookHandler: handler.NewResearchWebhookHandler(receiver),
		IntakeHandler:          handler.NewIntakeHandler(intakeSvc),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
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

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
