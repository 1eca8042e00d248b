package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"reddit-stock-monitor/internal/config"
	"reddit-stock-monitor/internal/httpapi"
	"reddit-stock-monitor/internal/logger"
	"reddit-stock-monitor/internal/trace"
	"reddit-stock-monitor/internal/types"
)

const (
	openAIEndpoint = "https://api.openai.com/v1/chat/completions"
	claudeEndpoint = "https://api.anthropic.com/v1/messages"
	maxKeywords    = 5
	maxPromptRunes = 2000
	callPause      = 1 * time.Second
)

// Enricher attaches a sentiment score and keyword list to mentions using an
// LLM. Failures are absorbed per mention: the mention keeps sentiment 0.0 and
// an empty keyword list.
type Enricher struct {
	cfg          *config.Config
	openAIKey    string
	anthropicKey string
	api          *httpapi.Client

	// endpoints and pause are fields so tests can point them at a local
	// server and skip the inter-call pacing
	openAIURL string
	claudeURL string
	pause     time.Duration
}

// analysis is the shape the LLM is asked to return per mention.
type analysis struct {
	Sentiment float64  `json:"sentiment"`
	Keywords  []string `json:"keywords"`
}

// NewEnricher creates a new enricher
func NewEnricher(cfg *config.Config, secrets *config.Secrets) *Enricher {
	return &Enricher{
		cfg:          cfg,
		openAIKey:    secrets.OpenAIAPIKey,
		anthropicKey: secrets.AnthropicAPIKey,
		api: httpapi.NewClient(
			httpapi.WithTimeout(60*time.Second),
			httpapi.WithLogging(true),
		),
		openAIURL: openAIEndpoint,
		claudeURL: claudeEndpoint,
		pause:     callPause,
	}
}

// Enrich analyzes each mention independently and returns the enriched copy.
// It never fails: a mention whose analysis errors keeps the default values.
// Calls are paced regardless of the previous call's outcome; a canceled
// context stops the pacing wait and leaves the rest of the batch at defaults.
func (e *Enricher) Enrich(ctx context.Context, mentions []types.Mention) []types.Mention {
	enriched := make([]types.Mention, len(mentions))
	copy(enriched, mentions)

	for i := range enriched {
		if i > 0 {
			select {
			case <-ctx.Done():
				for j := i; j < len(enriched); j++ {
					enriched[j].Sentiment = 0.0
					enriched[j].Keywords = []string{}
				}
				logger.Warn(ctx, "Enrichment canceled mid-batch", "remaining", len(enriched)-i)
				return enriched
			case <-time.After(e.pause):
			}
		}

		text := enriched[i].Title
		if enriched[i].Selftext != "" {
			text += " " + enriched[i].Selftext
		}

		result, err := e.analyzeText(ctx, text)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to analyze mention", err, "title", enriched[i].Title)
			enriched[i].Sentiment = 0.0
			enriched[i].Keywords = []string{}
			continue
		}

		enriched[i].Sentiment = clamp(result.Sentiment, -1, 1)
		enriched[i].Keywords = capKeywords(result.Keywords)
	}

	return enriched
}

func (e *Enricher) analyzeText(ctx context.Context, text string) (analysis, error) {
	ctx, span := trace.StartSpan(ctx, "enrich-mention")
	defer span.End()

	prompt := buildPrompt(text)

	switch strings.ToUpper(e.cfg.LLM.Provider) {
	case "OPENAI":
		return e.analyzeWithOpenAI(ctx, prompt)
	case "CLAUDE":
		return e.analyzeWithClaude(ctx, prompt)
	default:
		return analysis{}, fmt.Errorf("unsupported LLM provider: %s", e.cfg.LLM.Provider)
	}
}

const systemPrompt = "You are a financial analyst scoring social media posts about stocks. Respond ONLY with valid JSON."

func buildPrompt(text string) string {
	if utf8.RuneCountInString(text) > maxPromptRunes {
		text = string([]rune(text)[:maxPromptRunes]) + "..."
	}

	return fmt.Sprintf(`Analyze this social media post about a stock.

Post: %s

Return:
1. A sentiment score from -1.0 (very negative) to 1.0 (very positive)
2. Up to 5 keywords, preferring stock and investing terms

Respond ONLY with valid JSON matching this schema:
{"sentiment": 0.5, "keywords": ["keyword1", "keyword2"]}`, text)
}

func (e *Enricher) analyzeWithOpenAI(ctx context.Context, prompt string) (analysis, error) {
	if e.openAIKey == "" {
		return analysis{}, errors.New("OPENAI_API_KEY missing")
	}

	body := map[string]any{
		"model": e.cfg.LLM.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature": e.cfg.LLM.Temperature,
		"max_tokens":  e.cfg.LLM.MaxTokens,
	}

	resp, err := e.api.POST(ctx, e.openAIURL, body, map[string]string{
		"Authorization": "Bearer " + e.openAIKey,
	})
	if err != nil {
		return analysis{}, err
	}

	var r struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := resp.ParseJSON(&r); err != nil {
		return analysis{}, err
	}
	if len(r.Choices) == 0 {
		return analysis{}, errors.New("no choices")
	}

	return parseAnalysis(r.Choices[0].Message.Content)
}

func (e *Enricher) analyzeWithClaude(ctx context.Context, prompt string) (analysis, error) {
	if e.anthropicKey == "" {
		return analysis{}, errors.New("ANTHROPIC_API_KEY missing")
	}

	body := map[string]any{
		"model":      e.cfg.LLM.Model,
		"max_tokens": e.cfg.LLM.MaxTokens,
		"system":     systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	resp, err := e.api.POST(ctx, e.claudeURL, body, map[string]string{
		"x-api-key":         e.anthropicKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return analysis{}, err
	}

	var r struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := resp.ParseJSON(&r); err != nil {
		return analysis{}, err
	}
	if len(r.Content) == 0 {
		return analysis{}, errors.New("no content")
	}

	return parseAnalysis(r.Content[0].Text)
}

func parseAnalysis(content string) (analysis, error) {
	var result analysis
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &result); err != nil {
		return analysis{}, fmt.Errorf("invalid JSON response: %w", err)
	}
	return result, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func capKeywords(keywords []string) []string {
	out := make([]string, 0, maxKeywords)
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out = append(out, k)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}
