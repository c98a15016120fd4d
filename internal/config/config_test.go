package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/njmarshall/techstream/internal/model"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Refresh.MaxTotalItems != 60 {
		t.Errorf("MaxTotalItems = %d, want default 60", cfg.Refresh.MaxTotalItems)
	}
	if len(cfg.Sources) == 0 {
		t.Error("default config has no sources")
	}
	for _, s := range cfg.Sources {
		if !s.Type.Valid() {
			t.Errorf("default source %q has invalid type %q", s.ID, s.Type)
		}
	}
}

func TestLoadYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
refresh:
  max_total_items: 25
  budget_seconds: 10
  group_by_type: false
sources:
  - id: my-feed
    name: My Feed
    type: rss
    endpoint: https://example.com/feed
    active: true
    priority: 1
    filters:
      exclude_keywords: ["sponsored"]
      min_length: 100
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Refresh.MaxTotalItems != 25 || cfg.Refresh.BudgetSeconds != 10 {
		t.Errorf("refresh = %+v", cfg.Refresh)
	}
	if len(cfg.Sources) != 1 {
		t.Fatalf("sources = %d, want YAML to replace defaults", len(cfg.Sources))
	}
	src := cfg.Sources[0]
	if src.ID != "my-feed" || src.Type != model.SourceRSS {
		t.Errorf("source = %+v", src)
	}
	if src.Filters.MinLength != 100 || len(src.Filters.ExcludeKeywords) != 1 {
		t.Errorf("filters = %+v", src.Filters)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero item cap", "refresh:\n  max_total_items: 0\n"},
		{"negative budget", "refresh:\n  budget_seconds: -5\n"},
		{"duplicate source ids", `
sources:
  - id: same
    name: One
    type: rss
    endpoint: https://a.com/feed
  - id: same
    name: Two
    type: rss
    endpoint: https://b.com/feed
`},
		{"source without id", "sources:\n  - name: anonymous\n    type: rss\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadEnvCredentials(t *testing.T) {
	t.Setenv("REDDIT_CLIENT_ID", "id-from-env")
	t.Setenv("REDDIT_CLIENT_SECRET", "secret-from-env")
	t.Setenv("REDDIT_USER_AGENT", "custom-agent/2.0")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Reddit.ClientID != "id-from-env" || cfg.Reddit.ClientSecret != "secret-from-env" {
		t.Errorf("reddit creds = %+v", cfg.Reddit)
	}
	if cfg.Reddit.UserAgent != "custom-agent/2.0" {
		t.Errorf("UserAgent = %q", cfg.Reddit.UserAgent)
	}
}

func TestDefaultUserAgent(t *testing.T) {
	t.Setenv("REDDIT_USER_AGENT", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Reddit.UserAgent == "" {
		t.Error("UserAgent should fall back to a built-in default")
	}
}
