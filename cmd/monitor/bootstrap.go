package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"reddit-stock-monitor/internal/config"
	"reddit-stock-monitor/internal/enrich"
	"reddit-stock-monitor/internal/logger"
	"reddit-stock-monitor/internal/price"
	"reddit-stock-monitor/internal/query"
	"reddit-stock-monitor/internal/reddit"
	"reddit-stock-monitor/internal/scheduler"
	"reddit-stock-monitor/internal/scheduler/schedobs"
	"reddit-stock-monitor/internal/server"
	"reddit-stock-monitor/internal/store"
	"reddit-stock-monitor/internal/trace"
)

// initializeSystem initializes environment, logger, and tracer
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	return nil
}

// loadConfig loads yaml configuration and environment secrets
func loadConfig(ctx context.Context) (*config.Config, *config.Secrets, error) {
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, nil, err
	}

	secrets, err := config.LoadSecrets()
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load secrets", err)
		return nil, nil, err
	}

	if secrets.RedditClientID == "" || secrets.RedditClientSecret == "" {
		logger.Warn(ctx, "No Reddit credentials configured, falling back to page scraping")
	}

	return cfg, secrets, nil
}

// initializeStore opens the database; an unreachable store is fatal.
func initializeStore(ctx context.Context, secrets *config.Secrets) (store.Store, error) {
	if secrets.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL missing")
	}

	st, err := store.Connect(ctx, secrets.DatabaseURL)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to connect to database", err)
		return nil, err
	}

	logger.Info(ctx, "Connected to database")
	return st, nil
}

// buildScheduler wires the analysis pipeline and the scheduler around it.
// The collector is shared with the HTTP server's live top-posts endpoint.
func buildScheduler(cfg *config.Config, secrets *config.Secrets, st store.Store, collector *reddit.Collector) *scheduler.Scheduler {
	enricher := enrich.NewEnricher(cfg, secrets)
	prices := price.NewLookup(cfg, secrets)

	pipe := schedobs.Wrap(scheduler.NewPipeline(collector, enricher, prices, st, cfg.Reddit.SearchLimit))
	return scheduler.New(cfg, st, pipe)
}

// buildServer wires the HTTP API over the store, scheduler, and collector
func buildServer(cfg *config.Config, st store.Store, sched *scheduler.Scheduler, collector *reddit.Collector) *server.Server {
	return server.New(cfg.Server.Port, query.NewService(st), sched, collector, cfg.Tickers)
}
