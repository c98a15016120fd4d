// Package model defines the core types shared across the pipeline:
// configured sources, raw candidates, and normalized content items.
package model

import "time"

// SourceType identifies which fetcher handles a source.
type SourceType string

const (
	SourceReddit SourceType = "reddit"
	SourceRSS    SourceType = "rss"
	SourceAPI    SourceType = "api"
)

// Valid returns true for a known source type.
func (t SourceType) Valid() bool {
	switch t {
	case SourceReddit, SourceRSS, SourceAPI:
		return true
	}
	return false
}

// SourceConfig holds the type-specific knobs for a source.
// Which fields matter depends on Source.Type.
type SourceConfig struct {
	// Reddit
	Subreddit  string `yaml:"subreddit,omitempty"`
	SortBy     string `yaml:"sort_by,omitempty"`     // hot, new, top, rising
	TimeFilter string `yaml:"time_filter,omitempty"` // hour, day, week, month, year, all

	// Generic API
	Headers      map[string]string `yaml:"headers,omitempty"`
	LimitParam   string            `yaml:"limit_param,omitempty"`   // query param name for page size
	StoryIndex   bool              `yaml:"story_index,omitempty"`   // endpoint returns an ID list
	ItemEndpoint string            `yaml:"item_endpoint,omitempty"` // per-ID detail URL, %d placeholder
}

// FilterRules are the per-source accept/reject rules.
type FilterRules struct {
	IncludeKeywords []string `yaml:"include_keywords,omitempty"`
	ExcludeKeywords []string `yaml:"exclude_keywords,omitempty"`
	MinLength       int      `yaml:"min_length,omitempty"` // combined title+body chars
}

// SourceStats tracks running fetch statistics for a source.
type SourceStats struct {
	TotalFetched   int
	LastFetchCount int
	LastFetchedAt  time.Time
	LastFetchOK    bool
	LastError      string
}

// Source is a configured remote content origin.
type Source struct {
	ID       string       `yaml:"id"`
	Name     string       `yaml:"name"`
	Type     SourceType   `yaml:"type"`
	Endpoint string       `yaml:"endpoint"`
	Category string       `yaml:"category"`
	Active   bool         `yaml:"active"`
	Priority int          `yaml:"priority"` // lower = processed earlier
	Config   SourceConfig `yaml:"config"`
	Filters  FilterRules  `yaml:"filters"`

	Stats SourceStats `yaml:"-"`
}
