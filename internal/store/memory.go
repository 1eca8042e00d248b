package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"reddit-stock-monitor/internal/types"
)

// Compile-time check
var _ Store = (*Memory)(nil)

// Memory is an in-process Store with the same contract as Postgres. Reads see
// either the pre- or post-image of a concurrent write, never a partial one.
type Memory struct {
	mu   sync.RWMutex
	data map[string]types.TickerRecord
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]types.TickerRecord),
	}
}

func (m *Memory) Upsert(_ context.Context, rec types.TickerRecord) error {
	rec.Ticker = strings.ToUpper(rec.Ticker)
	rec.LastUpdated = time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[rec.Ticker] = rec
	return nil
}

func (m *Memory) Get(_ context.Context, ticker string) (*types.TickerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.data[strings.ToUpper(ticker)]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *Memory) GetAll(_ context.Context) ([]types.TickerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]types.TickerRecord, 0, len(m.data))
	for _, rec := range m.data {
		records = append(records, rec)
	}
	return records, nil
}

func (m *Memory) PruneOlderThan(_ context.Context, d time.Duration) (int64, error) {
	cutoff := time.Now().Add(-d)

	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for ticker, rec := range m.data {
		if rec.LastUpdated.Before(cutoff) {
			delete(m.data, ticker)
			deleted++
		}
	}
	return deleted, nil
}

func (m *Memory) Ping(_ context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	return nil
}
