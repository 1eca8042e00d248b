package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reddit-stock-monitor/internal/config"
	"reddit-stock-monitor/internal/logger"
	"reddit-stock-monitor/internal/store"
)

// Scheduler owns the repeating analysis cycle. Each cycle runs every tracked
// ticker's pipeline concurrently, isolating per-ticker failures, then sleeps
// the poll interval measured from cycle completion.
type Scheduler struct {
	cfg      *config.Config
	store    store.Store
	pipeline Pipeline

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// New creates a scheduler. The pipeline is usually wrapped with schedobs.
func New(cfg *config.Config, st store.Store, pipeline Pipeline) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		store:    st,
		pipeline: pipeline,
	}
}

// Start verifies store connectivity, flips to running, and launches the
// background loop without blocking. Calling Start while running is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		logger.Warn(ctx, "Scheduler is already running")
		return nil
	}

	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("store unavailable: %w", err)
	}

	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})

	logger.Info(ctx, "Starting scheduler", "tickers", len(s.cfg.Tickers), "poll_seconds", s.cfg.PollSeconds)
	go s.loop()

	return nil
}

// Stop flips to stopped and joins the loop. An in-flight cycle completes;
// only the next cycle is prevented. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	<-done
	if err := s.store.Close(); err != nil {
		logger.ErrorWithErr(context.Background(), "Failed to close store", err)
	}
	logger.Info(context.Background(), "Scheduler stopped")
}

// IsRunning reports whether the background loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop() {
	defer close(s.done)

	ctx := context.Background()
	interval := time.Duration(s.cfg.PollSeconds) * time.Second
	backoff := time.Duration(s.cfg.ErrorBackoffSeconds) * time.Second

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		wait := interval
		if err := s.runCycle(ctx); err != nil {
			logger.ErrorWithErr(ctx, "Scheduled cycle failed", err)
			wait = backoff
		}

		select {
		case <-s.stopCh:
			return
		case <-time.After(wait):
		}
	}
}

// runCycle analyzes all tracked tickers concurrently, waits for every one to
// finish, then prunes stale records. A ticker's failure is logged at its own
// boundary and never delays or cancels the others.
func (s *Scheduler) runCycle(ctx context.Context) error {
	logger.Info(ctx, "Starting batch analysis", "tickers", len(s.cfg.Tickers))
	start := time.Now()

	var wg sync.WaitGroup
	for _, ticker := range s.cfg.Tickers {
		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Error(ctx, "Ticker pipeline panicked", "ticker", ticker, "panic", r)
				}
			}()
			if err := s.pipeline.AnalyzeTicker(ctx, ticker); err != nil {
				logger.ErrorWithErr(ctx, "Ticker analysis failed", err, "ticker", ticker)
			}
		}(ticker)
	}
	wg.Wait()

	logger.Info(ctx, "Batch analysis completed", "duration_ms", time.Since(start).Milliseconds())

	retention := time.Duration(s.cfg.RetentionDays) * 24 * time.Hour
	deleted, err := s.store.PruneOlderThan(ctx, retention)
	if err != nil {
		return fmt.Errorf("prune stale records: %w", err)
	}
	if deleted > 0 {
		logger.Info(ctx, "Pruned stale records", "deleted", deleted)
	}

	return nil
}

// ManualRun executes exactly one cycle synchronously, independent of the
// background loop's phase. The work is not cancelable once started.
func (s *Scheduler) ManualRun(ctx context.Context) error {
	logger.Info(ctx, "Manual analysis run requested")
	return s.runCycle(context.WithoutCancel(ctx))
}

// AnalyzeTicker runs one ticker's pipeline synchronously.
func (s *Scheduler) AnalyzeTicker(ctx context.Context, ticker string) error {
	return s.pipeline.AnalyzeTicker(ctx, ticker)
}
