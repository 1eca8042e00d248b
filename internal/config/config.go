package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Tickers             []string `yaml:"tickers"`
	PollSeconds         int      `yaml:"poll_seconds"`
	ErrorBackoffSeconds int      `yaml:"error_backoff_seconds"`
	RetentionDays       int      `yaml:"retention_days"`
	Reddit              struct {
		Subreddits  []string `yaml:"subreddits"`
		SearchLimit int      `yaml:"search_limit"`
		TimeFilter  string   `yaml:"time_filter"`
	} `yaml:"reddit"`
	LLM struct {
		Provider    string  `yaml:"provider"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float32 `yaml:"temperature"`
	} `yaml:"llm"`
	Price struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"price"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

// Secrets holds credentials read from the environment once at startup.
type Secrets struct {
	RedditClientID     string `envconfig:"REDDIT_CLIENT_ID"`
	RedditClientSecret string `envconfig:"REDDIT_CLIENT_SECRET"`
	RedditUserAgent    string `envconfig:"REDDIT_USER_AGENT" default:"RedditStockMonitor/1.0"`
	OpenAIAPIKey       string `envconfig:"OPENAI_API_KEY"`
	AnthropicAPIKey    string `envconfig:"ANTHROPIC_API_KEY"`
	AlphaVantageKey    string `envconfig:"ALPHA_VANTAGE_API_KEY" default:"demo"`
	DatabaseURL        string `envconfig:"DATABASE_URL"`
}

func (c *Config) Validate() error {
	if len(c.Tickers) == 0 {
		return errors.New("tickers cannot be empty")
	}
	for _, t := range c.Tickers {
		if len(t) < 1 || len(t) > 10 {
			return fmt.Errorf("invalid ticker '%s': must be 1-10 characters", t)
		}
	}
	if c.LLM.Provider != "OPENAI" && c.LLM.Provider != "CLAUDE" {
		return fmt.Errorf("invalid llm.provider '%s': must be 'OPENAI' or 'CLAUDE'", c.LLM.Provider)
	}
	if c.PollSeconds <= 0 {
		return fmt.Errorf("poll_seconds must be positive, got %d", c.PollSeconds)
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("retention_days must be positive, got %d", c.RetentionDays)
	}
	if len(c.Reddit.Subreddits) == 0 {
		return errors.New("reddit.subreddits cannot be empty")
	}
	return nil
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if len(c.Tickers) == 0 {
		c.Tickers = []string{"AAPL", "TSLA", "GOOGL", "MSFT", "NVDA"}
	}
	if c.PollSeconds == 0 {
		c.PollSeconds = 3600
	}
	if c.ErrorBackoffSeconds == 0 {
		c.ErrorBackoffSeconds = 60
	}
	if c.RetentionDays == 0 {
		c.RetentionDays = 7
	}
	if len(c.Reddit.Subreddits) == 0 {
		c.Reddit.Subreddits = []string{"stocks", "investing", "wallstreetbets", "StockMarket"}
	}
	if c.Reddit.SearchLimit == 0 {
		c.Reddit.SearchLimit = 20
	}
	if c.Reddit.TimeFilter == "" {
		c.Reddit.TimeFilter = "day"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "OPENAI"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 300
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.3
	}
	if c.Price.BaseURL == "" {
		c.Price.BaseURL = "https://www.alphavantage.co/query"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
}

// LoadConfig reads the yaml config at path, falling back to defaults when the
// file does not exist.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

// LoadSecrets reads credentials from the environment.
func LoadSecrets() (*Secrets, error) {
	var s Secrets
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return &s, nil
}
