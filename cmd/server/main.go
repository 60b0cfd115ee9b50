package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jkiprotich/medcase-pipeline/internal/config"
	"github.com/jkiprotich/medcase-pipeline/internal/converter"
	"github.com/jkiprotich/medcase-pipeline/internal/db"
	"github.com/jkiprotich/medcase-pipeline/internal/extraction"
	"github.com/jkiprotich/medcase-pipeline/internal/pipeline"
	"github.com/jkiprotich/medcase-pipeline/internal/repository"
	"github.com/jkiprotich/medcase-pipeline/internal/router"
	"github.com/jkiprotich/medcase-pipeline/internal/storage"
	"github.com/jkiprotich/medcase-pipeline/internal/utils"
	"github.com/jkiprotich/medcase-pipeline/internal/workspace"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger := utils.NewLogger(cfg.LogLevel)

	// Initialize database
	database, err := db.NewSQLiteDB(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close()

	// Run migrations
	if err := db.RunMigrations(cfg.DatabasePath); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}

	// Pre-signed upload targets
	issuer, err := storage.NewS3TargetIssuer(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize S3 target issuer", "error", err)
	}

	// Pipeline stages
	caseRepo := repository.NewCaseRepository(database)
	workspaces := workspace.NewManager(cfg.WorkspaceDir)
	convAdapter := converter.NewAdapter(converter.NewCommandConverter(cfg.ConverterCmd, cfg.ConverterDPI), logger)
	uploader := storage.NewCoordinator(issuer, cfg.RequestTimeout, cfg.UploadConcurrency, logger)
	extractor := extraction.NewClient(cfg.ExtractEndpoint, cfg.JobStatusEndpoint, cfg.PollInterval, cfg.MaxPollAttempts, cfg.RequestTimeout, logger)

	// Orchestrator
	svc := pipeline.NewService(workspaces, convAdapter, uploader, extractor, extraction.BuildPayload, caseRepo, cfg.MaxFileSize, logger)

	// Setup HTTP router
	handler := router.NewRouter(svc, caseRepo, cfg.MaxFileSize, logger)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("Starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
