// Package main provides the HTTP server for voxrecon.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/voxrecon/internal/config"
	"github.com/raphaelgruber/voxrecon/internal/embedding"
	"github.com/raphaelgruber/voxrecon/internal/metrics"
	"github.com/raphaelgruber/voxrecon/internal/server"
	"github.com/raphaelgruber/voxrecon/internal/service"
	"github.com/raphaelgruber/voxrecon/internal/store"
)

const version = "0.1.0"

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all persisted sessions on startup (testing only)")
	noStore := flag.Bool("no-store", false, "run without SurrealDB persistence")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.Level())
	defer func() { _ = cleanup() }()
	slog.SetDefault(logger)

	logger.Info("voxrecon-server starting",
		"version", version,
		"port", cfg.Port,
		"backend", cfg.Backend,
		"llm_provider", cfg.LLMProvider,
		"embed_provider", cfg.EmbedProvider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()
	registry, err := service.NewRegistry(cfg, collector, logger)
	if err != nil {
		logger.Error("failed to create providers", "error", err)
		os.Exit(1)
	}

	opts := []service.Option{
		service.WithCollector(collector),
		service.WithLogger(logger),
	}

	embedder, err := embedding.New(cfg)
	switch {
	case errors.Is(err, embedding.ErrDisabled):
		logger.Info("semantic memo matching disabled")
	case err != nil:
		logger.Error("failed to create text embedder", "error", err)
		os.Exit(1)
	default:
		opts = append(opts, service.WithEmbedder(embedder))
	}

	if !*noStore {
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		db, err := store.NewClient(connectCtx, store.ConfigFrom(cfg), logger)
		if err == nil {
			err = db.InitSchema(connectCtx)
		}
		if err == nil && *wipeDB {
			err = db.WipeData(connectCtx)
		}
		cancel()
		if err != nil {
			if db != nil {
				_ = db.Close(context.Background())
			}
			logger.Error("failed to initialize store", "url", cfg.SurrealDBURL, "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := db.Close(context.Background()); err != nil {
				logger.Error("failed to close store", "error", err)
			}
		}()
		opts = append(opts, service.WithStore(db))
	}

	svc := service.New(cfg, registry, opts...)
	srv := server.New(cfg.Port, version, svc, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("voxrecon-server stopped")
}
