package scheduler

import (
	"context"
	"fmt"
	"strings"

	"reddit-stock-monitor/internal/aggregate"
	"reddit-stock-monitor/internal/logger"
	"reddit-stock-monitor/internal/store"
	"reddit-stock-monitor/internal/types"
)

// Collector fetches raw mentions for a ticker.
type Collector interface {
	Collect(ctx context.Context, ticker string, limit int) ([]types.Mention, error)
}

// Enricher attaches sentiment and keywords to mentions. Never fails;
// per-mention failures are absorbed with default values.
type Enricher interface {
	Enrich(ctx context.Context, mentions []types.Mention) []types.Mention
}

// PriceSource returns a ticker's 24h change, or nil when unavailable.
type PriceSource interface {
	Change24h(ctx context.Context, ticker string) *float64
}

// Pipeline runs one ticker's full analysis chain.
type Pipeline interface {
	AnalyzeTicker(ctx context.Context, ticker string) error
}

// pipeline is the production chain: collect, enrich, price, aggregate, upsert.
type pipeline struct {
	collector   Collector
	enricher    Enricher
	prices      PriceSource
	store       store.Store
	searchLimit int
}

// NewPipeline creates the per-ticker analysis pipeline.
func NewPipeline(collector Collector, enricher Enricher, prices PriceSource, st store.Store, searchLimit int) Pipeline {
	return &pipeline{
		collector:   collector,
		enricher:    enricher,
		prices:      prices,
		store:       st,
		searchLimit: searchLimit,
	}
}

// AnalyzeTicker runs the chain for one ticker and replaces its stored record.
// The record is written even when no mentions were found, so reads reflect
// the latest cycle rather than stale data.
func (p *pipeline) AnalyzeTicker(ctx context.Context, ticker string) error {
	ticker = strings.ToUpper(ticker)

	mentions, err := p.collector.Collect(ctx, ticker, p.searchLimit)
	if err != nil {
		return fmt.Errorf("collect %s: %w", ticker, err)
	}

	enriched := p.enricher.Enrich(ctx, mentions)
	priceChange := p.prices.Change24h(ctx, ticker)

	rec := aggregate.Build(ticker, enriched, priceChange)
	if err := p.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("upsert %s: %w", ticker, err)
	}

	logger.Analysis(ctx, ticker, rec.Mentions, rec.Sentiment)
	return nil
}
