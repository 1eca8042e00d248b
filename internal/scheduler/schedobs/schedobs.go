package schedobs

import (
	"context"
	"time"

	"reddit-stock-monitor/internal/logger"
	"reddit-stock-monitor/internal/scheduler"
	"reddit-stock-monitor/internal/trace"
)

type observablePipeline struct {
	pipeline scheduler.Pipeline
}

var _ scheduler.Pipeline = (*observablePipeline)(nil)

// Wrap decorates a pipeline with tracing and timing logs.
func Wrap(p scheduler.Pipeline) scheduler.Pipeline {
	return &observablePipeline{
		pipeline: p,
	}
}

func (op *observablePipeline) AnalyzeTicker(ctx context.Context, ticker string) error {
	ctx, span := trace.StartSpan(ctx, "pipeline.AnalyzeTicker")
	defer span.End()

	start := time.Now()

	logger.Info(ctx, "Starting ticker analysis",
		"ticker", ticker,
	)

	err := op.pipeline.AnalyzeTicker(ctx, ticker)
	if err != nil {
		logger.ErrorWithErr(ctx, "Ticker analysis failed", err,
			"ticker", ticker,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}

	logger.Info(ctx, "Ticker analysis succeeded",
		"ticker", ticker,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}
