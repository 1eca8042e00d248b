package reddit

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"reddit-stock-monitor/internal/config"
	"reddit-stock-monitor/internal/httpapi"
	"reddit-stock-monitor/internal/logger"
	"reddit-stock-monitor/internal/types"
)

const (
	defaultAPIBaseURL   = "https://oauth.reddit.com"
	defaultTokenURL     = "https://www.reddit.com/api/v1/access_token"
	maxSelftextLen      = 500
	tokenRefreshMargin  = time.Minute
	defaultTokenTimeout = 15 * time.Second
)

// Collector fetches raw ticker mentions from Reddit. With credentials it uses
// the OAuth search API; without them it falls back to scraping search pages.
type Collector struct {
	api        *httpapi.Client
	tokenAPI   *httpapi.Client
	scraper    *Scraper
	subreddits []string
	timeFilter string
	userAgent  string
	creds      credentials
	tokenURL   string
	tokenRetry *httpapi.RetryConfig

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

type credentials struct {
	clientID     string
	clientSecret string
}

func (c credentials) present() bool {
	return c.clientID != "" && c.clientSecret != ""
}

// NewCollector creates a collector from config and environment credentials.
func NewCollector(cfg *config.Config, secrets *config.Secrets) *Collector {
	return &Collector{
		api: httpapi.NewClient(
			httpapi.WithBaseURL(defaultAPIBaseURL),
			httpapi.WithTimeout(defaultTokenTimeout),
			httpapi.WithHeader("User-Agent", secrets.RedditUserAgent),
			httpapi.WithLogging(true),
		),
		tokenAPI: httpapi.NewClient(
			httpapi.WithTimeout(defaultTokenTimeout),
			httpapi.WithHeader("User-Agent", secrets.RedditUserAgent),
			httpapi.WithLogging(true),
		),
		scraper:    NewScraper(30 * time.Second),
		subreddits: cfg.Reddit.Subreddits,
		timeFilter: cfg.Reddit.TimeFilter,
		userAgent:  secrets.RedditUserAgent,
		creds: credentials{
			clientID:     secrets.RedditClientID,
			clientSecret: secrets.RedditClientSecret,
		},
		tokenURL:   defaultTokenURL,
		tokenRetry: httpapi.DefaultRetryConfig(),
	}
}

// Collect searches the configured subreddits for posts mentioning the ticker
// within the recent time window. A failing subreddit contributes zero posts;
// the error is logged, never raised.
func (c *Collector) Collect(ctx context.Context, ticker string, limit int) ([]types.Mention, error) {
	perSubreddit := limit / len(c.subreddits)
	if perSubreddit < 1 {
		perSubreddit = 1
	}

	mentions := []types.Mention{}
	for _, subreddit := range c.subreddits {
		posts, err := c.searchSubreddit(ctx, subreddit, ticker, perSubreddit)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to search subreddit", err, "subreddit", subreddit, "ticker", ticker)
			continue
		}
		mentions = append(mentions, posts...)
	}

	logger.Info(ctx, "Reddit collection completed", "ticker", ticker, "posts", len(mentions))
	return mentions, nil
}

// TopMentions returns each ticker's posts sorted by score descending.
func (c *Collector) TopMentions(ctx context.Context, tickers []string, limit int) map[string][]types.Mention {
	results := make(map[string][]types.Mention, len(tickers))
	for _, ticker := range tickers {
		posts, err := c.Collect(ctx, ticker, limit)
		if err != nil {
			continue
		}
		sort.SliceStable(posts, func(i, j int) bool {
			return posts[i].Score > posts[j].Score
		})
		if len(posts) > limit {
			posts = posts[:limit]
		}
		results[ticker] = posts
	}
	return results
}

func (c *Collector) searchSubreddit(ctx context.Context, subreddit, ticker string, limit int) ([]types.Mention, error) {
	if !c.creds.present() {
		return c.scraper.SearchSubreddit(ctx, subreddit, ticker, limit)
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", ticker)
	params.Set("restrict_sr", "1")
	params.Set("t", c.timeFilter)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("sort", "new")

	resp, err := c.api.GET(ctx, "/r/"+subreddit+"/search?"+params.Encode(), map[string]string{
		"Authorization": "Bearer " + token,
	})
	if err != nil {
		return nil, fmt.Errorf("search r/%s: %w", subreddit, err)
	}

	var list listing
	if err := resp.ParseJSON(&list); err != nil {
		return nil, fmt.Errorf("search r/%s: %w", subreddit, err)
	}

	mentions := make([]types.Mention, 0, len(list.Data.Children))
	for _, child := range list.Data.Children {
		m, ok := toMention(child.Data)
		if !ok {
			continue
		}
		mentions = append(mentions, m)
	}
	return mentions, nil
}

// token returns a cached app-only OAuth token, refreshing it near expiry.
func (c *Collector) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenRefreshMargin)) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	basic := base64.StdEncoding.EncodeToString([]byte(c.creds.clientID + ":" + c.creds.clientSecret))
	req := httpapi.NewRequest("POST", c.tokenURL).
		WithContext(ctx).
		WithForm(form).
		WithHeader("Authorization", "Basic "+basic)

	resp, err := c.tokenAPI.DoWithRetry(req, c.tokenRetry)
	if err != nil {
		return "", fmt.Errorf("reddit token request: %w", err)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := resp.ParseJSON(&tok); err != nil {
		return "", fmt.Errorf("reddit token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("reddit token response missing access_token")
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

// listing mirrors the subset of Reddit's search response we read.
type listing struct {
	Data struct {
		Children []struct {
			Data postData `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type postData struct {
	Title       string  `json:"title"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	Permalink   string  `json:"permalink"`
	CreatedUTC  float64 `json:"created_utc"`
	Subreddit   string  `json:"subreddit"`
	Selftext    string  `json:"selftext"`
}

// toMention converts a raw post, skipping entries with missing required
// fields rather than failing the whole listing.
func toMention(p postData) (types.Mention, bool) {
	if strings.TrimSpace(p.Title) == "" || p.Permalink == "" {
		return types.Mention{}, false
	}

	selftext := p.Selftext
	if utf8.RuneCountInString(selftext) > maxSelftextLen {
		selftext = string([]rune(selftext)[:maxSelftextLen])
	}

	return types.Mention{
		Title:      p.Title,
		Score:      p.Score,
		Comments:   p.NumComments,
		URL:        "https://reddit.com" + p.Permalink,
		CreatedUTC: p.CreatedUTC,
		Subreddit:  p.Subreddit,
		Selftext:   selftext,
		Keywords:   []string{},
	}, true
}
