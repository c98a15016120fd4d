// Package config loads the application configuration from a YAML file,
// with credentials pulled from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/njmarshall/techstream/internal/model"
)

// Config is the persistent application configuration.
type Config struct {
	DataDir string `yaml:"data_dir"`
	DBPath  string `yaml:"db_path"`

	// Refresh behavior
	Refresh RefreshConfig `yaml:"refresh"`

	// Reddit API credentials (filled from environment, never from YAML)
	Reddit RedditConfig `yaml:"-"`

	// AI summarization settings
	Summarize SummarizeConfig `yaml:"summarize"`

	// Configured content sources
	Sources []model.Source `yaml:"sources"`
}

// RefreshConfig tunes the refresh orchestrator.
type RefreshConfig struct {
	MaxTotalItems   int    `yaml:"max_total_items"`   // global cap per refresh cycle
	BudgetSeconds   int    `yaml:"budget_seconds"`    // wall-clock budget for one cycle
	StrategyDelayMS int    `yaml:"strategy_delay_ms"` // politeness delay between strategies/sources
	GroupByType     bool   `yaml:"group_by_type"`     // dispatch source types concurrently
	DedupWindowHrs  int    `yaml:"dedup_window_hours"` // 0 = full-history dedup
	Cron            string `yaml:"cron"`              // daemon schedule
}

// RedditConfig holds OAuth client credentials.
type RedditConfig struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
}

// SummarizeConfig controls the optional AI summarization stage.
type SummarizeConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // Ollama-compatible endpoint
	Model    string `yaml:"model"`
	Batch    int    `yaml:"batch"` // items summarized per cycle
}

// Default returns sensible defaults.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".techstream")
	return &Config{
		DataDir: dataDir,
		DBPath:  filepath.Join(dataDir, "techstream.db"),
		Refresh: RefreshConfig{
			MaxTotalItems:   60,
			BudgetSeconds:   20,
			StrategyDelayMS: 750,
			GroupByType:     true,
			DedupWindowHrs:  0,
			Cron:            "@every 30m",
		},
		Summarize: SummarizeConfig{
			Enabled:  false,
			Endpoint: "http://localhost:11434",
			Batch:    10,
		},
		Sources: DefaultSources(),
	}
}

// Load reads config from path. A missing file yields defaults.
// Credentials are always taken from the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.loadEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.loadEnv()
	return cfg, nil
}

// loadEnv fills in credentials from environment variables.
func (c *Config) loadEnv() {
	c.Reddit.ClientID = os.Getenv("REDDIT_CLIENT_ID")
	c.Reddit.ClientSecret = os.Getenv("REDDIT_CLIENT_SECRET")
	if ua := os.Getenv("REDDIT_USER_AGENT"); ua != "" {
		c.Reddit.UserAgent = ua
	}
	if c.Reddit.UserAgent == "" {
		c.Reddit.UserAgent = "techstream/1.0 (content aggregator)"
	}
}

func (c *Config) validate() error {
	if c.Refresh.MaxTotalItems <= 0 {
		return fmt.Errorf("refresh.max_total_items must be positive, got %d", c.Refresh.MaxTotalItems)
	}
	if c.Refresh.BudgetSeconds <= 0 {
		return fmt.Errorf("refresh.budget_seconds must be positive, got %d", c.Refresh.BudgetSeconds)
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s.ID == "" {
			return fmt.Errorf("source %q has no id", s.Name)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate source id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// DefaultSources is the built-in source set used when no config file exists.
func DefaultSources() []model.Source {
	return []model.Source{
		{
			ID: "reddit-programming", Name: "r/programming", Type: model.SourceReddit,
			Endpoint: "https://www.reddit.com/r/programming", Category: "programming",
			Active: true, Priority: 1,
			Config:  model.SourceConfig{Subreddit: "programming", SortBy: "hot", TimeFilter: "day"},
			Filters: model.FilterRules{MinLength: 40},
		},
		{
			ID: "reddit-startups", Name: "r/startups", Type: model.SourceReddit,
			Endpoint: "https://www.reddit.com/r/startups", Category: "startups",
			Active: true, Priority: 2,
			Config:  model.SourceConfig{Subreddit: "startups", SortBy: "hot", TimeFilter: "day"},
			Filters: model.FilterRules{MinLength: 60, ExcludeKeywords: []string{"hiring", "for hire"}},
		},
		{
			ID: "rss-hn", Name: "Hacker News", Type: model.SourceRSS,
			Endpoint: "https://news.ycombinator.com/rss", Category: "tech",
			Active: true, Priority: 3,
		},
		{
			ID: "rss-techcrunch", Name: "TechCrunch", Type: model.SourceRSS,
			Endpoint: "https://techcrunch.com/feed/", Category: "startups",
			Active: true, Priority: 4,
			Filters: model.FilterRules{ExcludeKeywords: []string{"sponsored", "advertisement"}},
		},
		{
			ID: "rss-lobsters", Name: "Lobsters", Type: model.SourceRSS,
			Endpoint: "https://lobste.rs/rss", Category: "programming",
			Active: true, Priority: 5,
		},
		{
			ID: "api-hn-top", Name: "HN Top Stories", Type: model.SourceAPI,
			Endpoint: "https://hacker-news.firebaseio.com/v0/topstories.json", Category: "tech",
			Active: true, Priority: 6,
			Config: model.SourceConfig{
				StoryIndex:   true,
				ItemEndpoint: "https://hacker-news.firebaseio.com/v0/item/%d.json",
			},
		},
	}
}
