package store

import (
	"context"
	"errors"
	"time"

	"reddit-stock-monitor/internal/types"
)

// ErrNotFound is returned when no record exists for a ticker.
var ErrNotFound = errors.New("ticker not found")

// Store persists one TickerRecord per ticker. Upsert replaces the whole
// record; concurrent writes to different tickers never block each other.
type Store interface {
	// Upsert atomically replaces any existing record for the ticker,
	// stamping LastUpdated with the current time as part of the write.
	Upsert(ctx context.Context, rec types.TickerRecord) error

	// Get returns the record for a ticker, or ErrNotFound.
	Get(ctx context.Context, ticker string) (*types.TickerRecord, error)

	// GetAll returns all records in unspecified order.
	GetAll(ctx context.Context) ([]types.TickerRecord, error)

	// PruneOlderThan deletes records whose last update precedes now-d and
	// returns the number deleted.
	PruneOlderThan(ctx context.Context, d time.Duration) (int64, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	Close() error
}
