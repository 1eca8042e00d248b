package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"reddit-stock-monitor/internal/types"
)

// Compile-time check
var _ Store = (*Postgres)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS stock_data (
	ticker           TEXT PRIMARY KEY,
	sentiment        DOUBLE PRECISION NOT NULL DEFAULT 0,
	mentions         INTEGER NOT NULL DEFAULT 0,
	price_change_24h DOUBLE PRECISION,
	key_words        JSONB NOT NULL DEFAULT '[]',
	posts            JSONB NOT NULL DEFAULT '[]',
	last_updated     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_stock_data_last_updated ON stock_data (last_updated);
`

// Postgres implements Store on a ticker-keyed table with JSONB document
// columns for posts and keywords.
type Postgres struct {
	db *sqlx.DB
}

// Connect opens the database, verifies connectivity, and ensures the schema.
// An unreachable database is a fatal startup condition for the caller.
func Connect(ctx context.Context, databaseURL string) (*Postgres, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

// row is the database shape of a TickerRecord
type row struct {
	Ticker         string    `db:"ticker"`
	Sentiment      float64   `db:"sentiment"`
	Mentions       int       `db:"mentions"`
	PriceChange24h *float64  `db:"price_change_24h"`
	KeyWords       []byte    `db:"key_words"`
	Posts          []byte    `db:"posts"`
	LastUpdated    time.Time `db:"last_updated"`
}

func (r row) toRecord() (types.TickerRecord, error) {
	rec := types.TickerRecord{
		Ticker:         r.Ticker,
		Sentiment:      r.Sentiment,
		Mentions:       r.Mentions,
		PriceChange24h: r.PriceChange24h,
		LastUpdated:    r.LastUpdated,
	}
	if err := json.Unmarshal(r.KeyWords, &rec.KeyWords); err != nil {
		return rec, fmt.Errorf("decode key_words for %s: %w", r.Ticker, err)
	}
	if err := json.Unmarshal(r.Posts, &rec.Posts); err != nil {
		return rec, fmt.Errorf("decode posts for %s: %w", r.Ticker, err)
	}
	return rec, nil
}

func (p *Postgres) Upsert(ctx context.Context, rec types.TickerRecord) error {
	keyWords, err := json.Marshal(emptyIfNil(rec.KeyWords))
	if err != nil {
		return fmt.Errorf("encode key_words: %w", err)
	}
	posts := rec.Posts
	if posts == nil {
		posts = []types.Mention{}
	}
	postsJSON, err := json.Marshal(posts)
	if err != nil {
		return fmt.Errorf("encode posts: %w", err)
	}

	query := `
		INSERT INTO stock_data (
			ticker, sentiment, mentions, price_change_24h, key_words, posts, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (ticker) DO UPDATE SET
			sentiment        = EXCLUDED.sentiment,
			mentions         = EXCLUDED.mentions,
			price_change_24h = EXCLUDED.price_change_24h,
			key_words        = EXCLUDED.key_words,
			posts            = EXCLUDED.posts,
			last_updated     = now()`

	_, err = p.db.ExecContext(ctx, query,
		strings.ToUpper(rec.Ticker), rec.Sentiment, rec.Mentions,
		rec.PriceChange24h, keyWords, postsJSON,
	)
	return err
}

func (p *Postgres) Get(ctx context.Context, ticker string) (*types.TickerRecord, error) {
	var r row
	query := `SELECT * FROM stock_data WHERE ticker = $1`

	err := p.db.GetContext(ctx, &r, query, strings.ToUpper(ticker))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec, err := r.toRecord()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (p *Postgres) GetAll(ctx context.Context) ([]types.TickerRecord, error) {
	var rows []row
	query := `SELECT * FROM stock_data`

	if err := p.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}

	records := make([]types.TickerRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (p *Postgres) PruneOlderThan(ctx context.Context, d time.Duration) (int64, error) {
	cutoff := time.Now().Add(-d)
	res, err := p.db.ExecContext(ctx, `DELETE FROM stock_data WHERE last_updated < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
