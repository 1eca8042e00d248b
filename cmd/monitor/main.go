package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reddit-stock-monitor/internal/logger"
	"reddit-stock-monitor/internal/reddit"
	"reddit-stock-monitor/internal/trace"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	must(initializeSystem())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, secrets, err := loadConfig(ctx)
	must(err)

	st, err := initializeStore(ctx, secrets)
	must(err)

	collector := reddit.NewCollector(cfg, secrets)

	sched := buildScheduler(cfg, secrets, st, collector)
	must(sched.Start(ctx))

	srv := buildServer(cfg, st, sched, collector)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	logger.Info(ctx, "Monitor started", "tickers", cfg.Tickers, "port", cfg.Server.Port)

	select {
	case <-sigc:
		logger.Info(ctx, "Shutting down...")
	case err := <-serverErr:
		if err != nil {
			logger.ErrorWithErr(ctx, "HTTP server exited", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithErr(shutdownCtx, "Server shutdown failed", err)
	}

	// Joins the loop; the in-flight cycle completes, then the store closes.
	sched.Stop()

	if err := trace.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithErr(shutdownCtx, "Tracer shutdown failed", err)
	}
}
