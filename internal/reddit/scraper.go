package reddit

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"reddit-stock-monitor/internal/logger"
	"reddit-stock-monitor/internal/types"
)

// Scraper is the credential-less fallback collector. It scrapes old.reddit.com
// search pages, which carry the same posts the search API returns.
type Scraper struct {
	timeout time.Duration
}

// NewScraper creates a new fallback scraper
func NewScraper(timeout time.Duration) *Scraper {
	return &Scraper{timeout: timeout}
}

// SearchSubreddit scrapes search results for the ticker in one subreddit.
func (s *Scraper) SearchSubreddit(ctx context.Context, subreddit, ticker string, limit int) ([]types.Mention, error) {
	mentions := []types.Mention{}

	c := colly.NewCollector(
		colly.AllowedDomains("old.reddit.com"),
		colly.MaxDepth(1),
	)
	c.SetRequestTimeout(s.timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	})

	c.OnHTML("div.search-result-link", func(e *colly.HTMLElement) {
		if len(mentions) >= limit {
			return
		}

		m, ok := parseSearchResult(e.DOM, subreddit)
		if !ok {
			return
		}
		mentions = append(mentions, m)
	})

	c.OnError(func(r *colly.Response, err error) {
		logger.ErrorWithErr(ctx, "Reddit scrape error", err, "subreddit", subreddit, "url", r.Request.URL.String())
	})

	params := url.Values{}
	params.Set("q", ticker)
	params.Set("restrict_sr", "on")
	params.Set("t", "day")
	params.Set("sort", "new")

	searchURL := fmt.Sprintf("https://old.reddit.com/r/%s/search?%s", subreddit, params.Encode())
	if err := c.Visit(searchURL); err != nil {
		return nil, fmt.Errorf("failed to visit %s: %w", searchURL, err)
	}
	c.Wait()

	return mentions, nil
}

// parseSearchResult extracts one mention from a search result block. Results
// missing a title or link are skipped.
func parseSearchResult(sel *goquery.Selection, subreddit string) (types.Mention, bool) {
	titleLink := sel.Find("a.search-title").First()
	title := strings.TrimSpace(titleLink.Text())
	href, _ := titleLink.Attr("href")
	if title == "" || href == "" {
		return types.Mention{}, false
	}

	m := types.Mention{
		Title:     title,
		URL:       href,
		Subreddit: subreddit,
		Keywords:  []string{},
	}

	if score, ok := leadingInt(sel.Find("span.search-score").First().Text()); ok {
		m.Score = score
	}
	if comments, ok := leadingInt(sel.Find("a.search-comments").First().Text()); ok {
		m.Comments = comments
	}
	if datetime, ok := sel.Find("time").First().Attr("datetime"); ok {
		if t, err := time.Parse(time.RFC3339, datetime); err == nil {
			m.CreatedUTC = float64(t.Unix())
		}
	}

	return m, true
}

// leadingInt parses the number at the front of strings like "42 points".
func leadingInt(s string) (int, bool) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(fields[0], ",", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}
