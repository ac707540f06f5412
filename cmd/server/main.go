// @title           MulmoCast Backend API
// @version         1.0.0
// @description     Backend API for MulmoCast projects. It stores MulmoScript projects and templates, runs asynchronous generation jobs and serves the rendered outputs.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"mulmocast-backend/docs"
	"mulmocast-backend/internal/config"
	"mulmocast-backend/internal/database"
	"mulmocast-backend/internal/generation"
	"mulmocast-backend/internal/handlers"
	"mulmocast-backend/internal/logging"
	"mulmocast-backend/internal/render"
	"mulmocast-backend/internal/store"
	"mulmocast-backend/internal/supabase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Update Swagger docs with dynamic base URL
	if baseURL, err := url.Parse(cfg.BaseURL); err == nil && baseURL.Host != "" {
		docs.SwaggerInfo.Host = baseURL.Host
		if baseURL.Scheme == "https" {
			docs.SwaggerInfo.Schemes = []string{"https", "http"}
		} else {
			docs.SwaggerInfo.Schemes = []string{"http", "https"}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.SeedData {
		if err := store.Seed(ctx, st); err != nil {
			return fmt.Errorf("failed to seed data: %w", err)
		}
	}

	var renderer generation.Renderer = generation.SimulatedRenderer{
		ProcessingDelay: cfg.GenerationProcessingDelay,
		CompletionDelay: cfg.GenerationCompletionDelay,
	}
	if cfg.RenderAPIBaseURL != "" {
		client := render.NewClient(cfg.RenderAPIBaseURL, cfg.RenderAPIKey, cfg.RenderPollInterval)
		renderer = render.NewRenderer(client, logger)
		logger.Info("using external render service", "base_url", cfg.RenderAPIBaseURL)
	} else {
		logger.Warn("RENDER_API_BASE_URL not set, generation runs in simulated mode")
	}

	var artifacts generation.ArtifactStore = generation.NewMemoryArtifacts()
	publishers := []generation.Publisher{generation.NewLogPublisher(logger)}
	if cfg.SupabaseEnabled() {
		supabaseClient, err := supabase.NewClient(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize Supabase client: %w", err)
		}
		artifacts = supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseStorageBucket)
		publishers = append(publishers, supabase.NewEventPublisher(supabaseClient.Supabase, cfg.SupabaseEventsTable))
		logger.Info("supabase storage and events enabled", "bucket", cfg.SupabaseStorageBucket, "events_table", cfg.SupabaseEventsTable)
	}

	manager := generation.NewManager(st, renderer, artifacts, generation.Options{
		Workers:    cfg.GenerationWorkers,
		Timeout:    cfg.GenerationTimeout,
		Logger:     logger,
		Publishers: publishers,
	})
	defer manager.Close()

	recovered, err := manager.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover interrupted generations: %w", err)
	}
	if recovered > 0 {
		logger.Warn("marked interrupted generations as failed", "count", recovered)
	}

	router := handlers.NewRouter(handlers.Dependencies{
		Config:  cfg,
		Store:   st,
		Manager: manager,
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "environment", cfg.Environment, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// openStore returns the configured store, running migrations for SQL drivers.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.StoreDriver == config.StoreMemory {
		logger.Warn("using in-memory store, data is lost on restart")
		return store.NewMemoryStore(), nil
	}

	dialect, err := database.ParseDialect(cfg.StoreDriver)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, dialect, logger).Run(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("migrations completed successfully", "driver", cfg.StoreDriver)

	return database.NewSQLStore(db, dialect), nil
}
