package price

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"reddit-stock-monitor/internal/config"
	"reddit-stock-monitor/internal/httpapi"
	"reddit-stock-monitor/internal/logger"
)

// Lookup fetches 24h price changes from the Alpha Vantage quote API.
// Failure is representable as "no data": Change24h returns nil and the
// aggregation proceeds without a price.
type Lookup struct {
	api    *httpapi.Client
	apiKey string
	retry  *httpapi.RetryConfig
}

// NewLookup creates a price lookup client
func NewLookup(cfg *config.Config, secrets *config.Secrets) *Lookup {
	return &Lookup{
		api: httpapi.NewClient(
			httpapi.WithBaseURL(cfg.Price.BaseURL),
			httpapi.WithTimeout(15*time.Second),
			httpapi.WithLogging(true),
		),
		apiKey: secrets.AlphaVantageKey,
		retry:  httpapi.DefaultRetryConfig(),
	}
}

type quoteResponse struct {
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
	Note        string `json:"Note"`
	Information string `json:"Information"`
}

// Change24h returns the ticker's daily percentage change, or nil on any
// failure (network error, unknown symbol, quota exhaustion, parse error).
func (l *Lookup) Change24h(ctx context.Context, ticker string) *float64 {
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", ticker)
	params.Set("apikey", l.apiKey)

	req := httpapi.NewRequest(http.MethodGet, "?"+params.Encode()).WithContext(ctx)
	resp, err := l.api.DoWithRetry(req, l.retry)
	if err != nil {
		logger.ErrorWithErr(ctx, "Price lookup request failed", err, "ticker", ticker)
		return nil
	}

	var quote quoteResponse
	if err := resp.ParseJSON(&quote); err != nil {
		logger.ErrorWithErr(ctx, "Price lookup response unparseable", err, "ticker", ticker)
		return nil
	}

	// Quota exhaustion and unknown symbols come back as 200s with an empty
	// quote and a Note/Information field.
	if quote.GlobalQuote.ChangePercent == "" {
		reason := quote.Note
		if reason == "" {
			reason = quote.Information
		}
		logger.Warn(ctx, "Price lookup returned no quote", "ticker", ticker, "reason", reason)
		return nil
	}

	change, err := parseChangePercent(quote.GlobalQuote.ChangePercent)
	if err != nil {
		logger.ErrorWithErr(ctx, "Price change unparseable", err, "ticker", ticker, "raw", quote.GlobalQuote.ChangePercent)
		return nil
	}
	return &change
}

// parseChangePercent parses values like "1.2345%" into a rounded percentage.
func parseChangePercent(raw string) (float64, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(raw), "%")
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("parse change percent %q: %w", raw, err)
	}
	return math.Round(v*100) / 100, nil
}
