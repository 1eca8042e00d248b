package types

import "time"

// Mention is a single Reddit post referencing a ticker. Sentiment and
// Keywords stay at their zero values until enrichment runs.
type Mention struct {
	Title      string   `json:"title"`
	Score      int      `json:"score"`
	Comments   int      `json:"comments"`
	URL        string   `json:"url"`
	CreatedUTC float64  `json:"created_utc"`
	Subreddit  string   `json:"subreddit"`
	Selftext   string   `json:"selftext,omitempty"`
	Sentiment  float64  `json:"sentiment"`
	Keywords   []string `json:"keywords"`
}

// TickerRecord is the aggregated, persisted state for one ticker.
// Mentions always equals len(Posts); Sentiment is the mean over Posts.
type TickerRecord struct {
	Ticker         string    `json:"ticker"`
	Sentiment      float64   `json:"sentiment"`
	Mentions       int       `json:"mentions"`
	PriceChange24h *float64  `json:"price_change_24h"`
	KeyWords       []string  `json:"key_words"`
	Posts          []Mention `json:"posts"`
	LastUpdated    time.Time `json:"last_updated"`
}

// StockSnapshot is the per-ticker view embedded in API responses.
type StockSnapshot struct {
	Sentiment      float64   `json:"sentiment"`
	Mentions       int       `json:"mentions"`
	PriceChange24h *float64  `json:"price_change_24h"`
	KeyWords       []string  `json:"key_words"`
	Posts          []Mention `json:"posts"`
}

// Snapshot reshapes a record for an API response.
func (r TickerRecord) Snapshot() StockSnapshot {
	return StockSnapshot{
		Sentiment:      r.Sentiment,
		Mentions:       r.Mentions,
		PriceChange24h: r.PriceChange24h,
		KeyWords:       r.KeyWords,
		Posts:          r.Posts,
	}
}

type StocksResponse struct {
	Timestamp     int64                    `json:"timestamp"`
	Stocks        map[string]StockSnapshot `json:"stocks"`
	TotalMentions int                      `json:"total_mentions"`
	Status        string                   `json:"status"`
}

type StockDetailResponse struct {
	Timestamp int64         `json:"timestamp"`
	Ticker    string        `json:"ticker"`
	Data      StockSnapshot `json:"data"`
	Status    string        `json:"status"`
}

type TopPostsResponse struct {
	Timestamp int64                `json:"timestamp"`
	Posts     map[string][]Mention `json:"posts"`
	Status    string               `json:"status"`
}

type AnalyzeResponse struct {
	Timestamp int64  `json:"timestamp"`
	Ticker    string `json:"ticker,omitempty"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
