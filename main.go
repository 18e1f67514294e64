package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/config"
	"github.com/ekaya-inc/census-engine/pkg/conversation"
	"github.com/ekaya-inc/census-engine/pkg/handlers"
	"github.com/ekaya-inc/census-engine/pkg/middleware"
	"github.com/ekaya-inc/census-engine/pkg/pipeline"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("bind_addr", cfg.BindAddr),
		zap.String("port", cfg.Port),
		zap.Bool("ocr_enabled", cfg.Extraction.OCRServiceURL != ""),
		zap.Int("batch_concurrency", cfg.Pipeline.BatchConcurrency),
		zap.Int("session_idle_ttl_minutes", cfg.Session.IdleTTLMinutes))

	pl, err := pipeline.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build pipeline", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := conversation.NewSessionStore(logger)
	store.StartCleanup(ctx,
		time.Duration(cfg.Session.SweepIntervalSeconds)*time.Second,
		time.Duration(cfg.Session.IdleTTLMinutes)*time.Minute)

	conversations := conversation.NewConversationService(store, pl.Generator(), pl.Mapper(), pl.Analyzer(), logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, store, logger).RegisterRoutes(mux)
	handlers.NewIngestHandler(pl, conversations, cfg.MaxUploadMB, logger).RegisterRoutes(mux)
	handlers.NewSessionsHandler(conversations, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting census-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsLocal() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
