// Package query is the read-only access layer between the store and the HTTP
// API. It reshapes records into response envelopes and never mutates.
package query

import (
	"context"
	"strings"
	"time"

	"reddit-stock-monitor/internal/store"
	"reddit-stock-monitor/internal/types"
)

// Service serves snapshots over the store.
type Service struct {
	store store.Store
}

// NewService creates a query service
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// ListAll returns every ticker's snapshot with the total mention count.
func (s *Service) ListAll(ctx context.Context) (*types.StocksResponse, error) {
	records, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	stocks := make(map[string]types.StockSnapshot, len(records))
	totalMentions := 0
	for _, rec := range records {
		stocks[rec.Ticker] = rec.Snapshot()
		totalMentions += rec.Mentions
	}

	return &types.StocksResponse{
		Timestamp:     time.Now().Unix(),
		Stocks:        stocks,
		TotalMentions: totalMentions,
		Status:        "success",
	}, nil
}

// GetOne returns one ticker's snapshot, or store.ErrNotFound.
func (s *Service) GetOne(ctx context.Context, ticker string) (*types.StockDetailResponse, error) {
	ticker = strings.ToUpper(ticker)

	rec, err := s.store.Get(ctx, ticker)
	if err != nil {
		return nil, err
	}

	return &types.StockDetailResponse{
		Timestamp: time.Now().Unix(),
		Ticker:    ticker,
		Data:      rec.Snapshot(),
		Status:    "success",
	}, nil
}
