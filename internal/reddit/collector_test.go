package reddit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reddit-stock-monitor/internal/httpapi"
)

func newTestClient(baseURL string) *httpapi.Client {
	opts := []httpapi.ClientOption{httpapi.WithTimeout(5 * time.Second)}
	if baseURL != "" {
		opts = append(opts, httpapi.WithBaseURL(baseURL))
	}
	return httpapi.NewClient(opts...)
}

// fakeReddit serves both the token endpoint and the search API.
type fakeReddit struct {
	srv        *httptest.Server
	tokenCalls atomic.Int64
	posts      []postData
}

func newFakeReddit(t *testing.T, posts []postData) *fakeReddit {
	t.Helper()
	f := &fakeReddit{posts: posts}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Basic ") {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fake-token",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("GET /r/{subreddit}/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fake-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var list listing
		for _, p := range f.posts {
			list.Data.Children = append(list.Data.Children, struct {
				Data postData `json:"data"`
			}{Data: p})
		}
		json.NewEncoder(w).Encode(list)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeReddit) collector(subreddits []string) *Collector {
	return &Collector{
		api:        newTestClient(f.srv.URL),
		tokenAPI:   newTestClient(""),
		subreddits: subreddits,
		timeFilter: "day",
		userAgent:  "test-agent",
		creds:      credentials{clientID: "id", clientSecret: "secret"},
		tokenURL:   f.srv.URL + "/api/v1/access_token",
		tokenRetry: &httpapi.RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond},
	}
}

func TestCollectGathersAcrossSubreddits(t *testing.T) {
	f := newFakeReddit(t, []postData{
		{Title: "AAPL to the moon", Score: 42, NumComments: 7, Permalink: "/r/stocks/1", Subreddit: "stocks"},
		{Title: "thoughts on AAPL?", Score: 3, NumComments: 1, Permalink: "/r/stocks/2", Subreddit: "stocks"},
	})
	c := f.collector([]string{"stocks", "investing"})

	mentions, err := c.Collect(context.Background(), "AAPL", 20)
	require.NoError(t, err)
	// each subreddit returns the same two fake posts
	assert.Len(t, mentions, 4)
	assert.Equal(t, "AAPL to the moon", mentions[0].Title)
	assert.Equal(t, "https://reddit.com/r/stocks/1", mentions[0].URL)
}

func TestCollectReusesCachedToken(t *testing.T) {
	f := newFakeReddit(t, []postData{
		{Title: "post", Permalink: "/r/stocks/1"},
	})
	c := f.collector([]string{"stocks"})

	_, err := c.Collect(context.Background(), "TSLA", 10)
	require.NoError(t, err)
	_, err = c.Collect(context.Background(), "TSLA", 10)
	require.NoError(t, err)

	assert.Equal(t, int64(1), f.tokenCalls.Load())
}

func TestTokenRetriesTransientFailure(t *testing.T) {
	var tokenAttempts atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		if tokenAttempts.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"access_token": "fake-token", "expires_in": 3600})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := &Collector{
		tokenAPI:   newTestClient(""),
		creds:      credentials{clientID: "id", clientSecret: "secret"},
		tokenURL:   srv.URL + "/api/v1/access_token",
		tokenRetry: &httpapi.RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond},
	}

	tok, err := c.token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fake-token", tok)
	assert.Equal(t, int64(2), tokenAttempts.Load())
}

func TestTokenRefreshNearExpiry(t *testing.T) {
	f := newFakeReddit(t, nil)
	c := f.collector([]string{"stocks"})
	c.accessToken = "stale"
	c.tokenExpiry = time.Now().Add(30 * time.Second)

	tok, err := c.token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fake-token", tok)
	assert.Equal(t, int64(1), f.tokenCalls.Load())
}

func TestCollectSkipsFailingSubreddit(t *testing.T) {
	f := newFakeReddit(t, []postData{
		{Title: "post", Permalink: "/r/stocks/1"},
	})
	c := f.collector([]string{"stocks", "does-not-matter"})

	// both subreddits resolve against the fake server, so simulate a failure
	// by pointing one collector at a closed server instead
	closed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	closed.Close()

	broken := f.collector([]string{"stocks"})
	broken.api = newTestClient(closed.URL)
	broken.accessToken = "fake-token"
	broken.tokenExpiry = time.Now().Add(time.Hour)

	mentions, err := broken.Collect(context.Background(), "AAPL", 10)
	require.NoError(t, err)
	assert.Empty(t, mentions)

	mentions, err = c.Collect(context.Background(), "AAPL", 10)
	require.NoError(t, err)
	assert.Len(t, mentions, 2)
}

func TestToMention(t *testing.T) {
	m, ok := toMention(postData{
		Title:       "GME squeeze",
		Score:       10,
		NumComments: 5,
		Permalink:   "/r/wallstreetbets/abc",
		CreatedUTC:  1700000000,
		Subreddit:   "wallstreetbets",
		Selftext:    "diamond hands",
	})
	require.True(t, ok)
	assert.Equal(t, "https://reddit.com/r/wallstreetbets/abc", m.URL)
	assert.Equal(t, "diamond hands", m.Selftext)
	assert.Equal(t, []string{}, m.Keywords)
}

func TestToMentionSkipsIncompletePosts(t *testing.T) {
	_, ok := toMention(postData{Title: "  ", Permalink: "/r/stocks/1"})
	assert.False(t, ok)

	_, ok = toMention(postData{Title: "no link"})
	assert.False(t, ok)
}

func TestToMentionTruncatesSelftext(t *testing.T) {
	long := strings.Repeat("x", 2000)
	m, ok := toMention(postData{Title: "long post", Permalink: "/p", Selftext: long})
	require.True(t, ok)
	assert.Len(t, m.Selftext, 500)
}

func TestToMentionTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("é", 600)
	m, ok := toMention(postData{Title: "multibyte post", Permalink: "/p", Selftext: long})
	require.True(t, ok)
	assert.Equal(t, 500, utf8.RuneCountInString(m.Selftext))
	assert.True(t, utf8.ValidString(m.Selftext))
}

func TestTopMentionsSortsByScore(t *testing.T) {
	f := newFakeReddit(t, []postData{
		{Title: "low", Score: 1, Permalink: "/1"},
		{Title: "high", Score: 99, Permalink: "/2"},
		{Title: "mid", Score: 50, Permalink: "/3"},
	})
	c := f.collector([]string{"stocks"})

	results := c.TopMentions(context.Background(), []string{"AAPL"}, 2)
	require.Len(t, results["AAPL"], 2)
	assert.Equal(t, "high", results["AAPL"][0].Title)
	assert.Equal(t, "mid", results["AAPL"][1].Title)
}
