package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reddit-stock-monitor/internal/config"
	"reddit-stock-monitor/internal/types"
)

// openAIReply wraps content in the chat-completions response shape.
func openAIReply(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(body)
}

func newTestEnricher(t *testing.T, handler http.HandlerFunc) *Enricher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	e := NewEnricher(config.Default(), &config.Secrets{OpenAIAPIKey: "test-key"})
	e.openAIURL = srv.URL
	e.claudeURL = srv.URL
	e.pause = time.Millisecond
	return e
}

func TestEnrichAttachesSentimentAndKeywords(t *testing.T) {
	e := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, openAIReply(`{"sentiment": 0.8, "keywords": ["earnings", "beat"]}`))
	})

	out := e.Enrich(context.Background(), []types.Mention{{Title: "AAPL crushes earnings"}})
	require.Len(t, out, 1)
	assert.Equal(t, 0.8, out[0].Sentiment)
	assert.Equal(t, []string{"earnings", "beat"}, out[0].Keywords)
}

func TestEnrichClampsSentiment(t *testing.T) {
	e := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, openAIReply(`{"sentiment": 3.5, "keywords": []}`))
	})

	out := e.Enrich(context.Background(), []types.Mention{{Title: "to the moon"}})
	assert.Equal(t, 1.0, out[0].Sentiment)

	e = newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, openAIReply(`{"sentiment": -2.0, "keywords": []}`))
	})

	out = e.Enrich(context.Background(), []types.Mention{{Title: "bankruptcy incoming"}})
	assert.Equal(t, -1.0, out[0].Sentiment)
}

func TestEnrichCapsKeywordsAtFive(t *testing.T) {
	e := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, openAIReply(`{"sentiment": 0.1, "keywords": ["a","b","c","d","e","f","g"]}`))
	})

	out := e.Enrich(context.Background(), []types.Mention{{Title: "keyword soup"}})
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, out[0].Keywords)
}

func TestEnrichDefaultsOnInvalidJSON(t *testing.T) {
	e := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, openAIReply(`the stock looks great, bullish!`))
	})

	out := e.Enrich(context.Background(), []types.Mention{{Title: "some post"}})
	assert.Equal(t, 0.0, out[0].Sentiment)
	assert.Equal(t, []string{}, out[0].Keywords)
}

func TestEnrichDefaultsOnServerError(t *testing.T) {
	e := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	out := e.Enrich(context.Background(), []types.Mention{{Title: "some post"}})
	assert.Equal(t, 0.0, out[0].Sentiment)
	assert.Equal(t, []string{}, out[0].Keywords)
}

func TestEnrichDefaultsWhenKeyMissing(t *testing.T) {
	e := NewEnricher(config.Default(), &config.Secrets{})

	out := e.Enrich(context.Background(), []types.Mention{{Title: "no credentials"}})
	require.Len(t, out, 1)
	assert.Equal(t, 0.0, out[0].Sentiment)
	assert.Equal(t, []string{}, out[0].Keywords)
}

func TestEnrichDoesNotMutateInput(t *testing.T) {
	e := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, openAIReply(`{"sentiment": 0.9, "keywords": ["moon"]}`))
	})

	in := []types.Mention{{Title: "original"}}
	e.Enrich(context.Background(), in)
	assert.Equal(t, 0.0, in[0].Sentiment)
	assert.Nil(t, in[0].Keywords)
}

func TestEnrichClaudeProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "claude-key", r.Header.Get("x-api-key"))
		body, _ := json.Marshal(map[string]any{
			"content": []map[string]string{
				{"text": `{"sentiment": -0.4, "keywords": ["selloff"]}`},
			},
		})
		w.Write(body)
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.LLM.Provider = "CLAUDE"
	e := NewEnricher(cfg, &config.Secrets{AnthropicAPIKey: "claude-key"})
	e.claudeURL = srv.URL

	out := e.Enrich(context.Background(), []types.Mention{{Title: "market dip"}})
	assert.Equal(t, -0.4, out[0].Sentiment)
	assert.Equal(t, []string{"selloff"}, out[0].Keywords)
}

func TestEnrichPacesAfterFailure(t *testing.T) {
	var calls atomic.Int64
	e := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, openAIReply(`{"sentiment": 0.6, "keywords": ["rebound"]}`))
	})
	e.pause = 100 * time.Millisecond

	start := time.Now()
	out := e.Enrich(context.Background(), []types.Mention{{Title: "first"}, {Title: "second"}})

	// the failed first call must not skip the pacing before the second
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 0.0, out[0].Sentiment)
	assert.Equal(t, 0.6, out[1].Sentiment)
}

func TestEnrichStopsPacingOnCanceledContext(t *testing.T) {
	e := newTestEnricher(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, openAIReply(`{"sentiment": 0.5, "keywords": []}`))
	})
	e.pause = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	out := e.Enrich(ctx, []types.Mention{{Title: "first"}, {Title: "second"}, {Title: "third"}})

	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, out, 3)
	for _, m := range out {
		assert.Equal(t, 0.0, m.Sentiment)
		assert.Equal(t, []string{}, m.Keywords)
	}
}

func TestBuildPromptTruncatesLongText(t *testing.T) {
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'x'
	}

	prompt := buildPrompt(string(long))
	assert.Less(t, len(prompt), 2500)
	assert.Contains(t, prompt, "...")
}

func TestBuildPromptTruncatesOnRuneBoundary(t *testing.T) {
	prompt := buildPrompt(strings.Repeat("é", 3000))
	assert.True(t, utf8.ValidString(prompt))
	assert.NotContains(t, prompt, string(utf8.RuneError))
}

func TestCapKeywordsDropsBlanks(t *testing.T) {
	assert.Equal(t, []string{"gme", "squeeze"}, capKeywords([]string{" gme ", "", "  ", "squeeze"}))
	assert.Equal(t, []string{}, capKeywords(nil))
}
