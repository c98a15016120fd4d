package model

import "time"

// Candidate is a raw record pulled from a source before normalization.
// The per-type fetchers flatten their platform-specific shapes into this
// one struct so the rest of the pipeline never sees platform quirks.
type Candidate struct {
	Title     string
	URL       string
	Summary   string
	Body      string
	Author    string
	Published time.Time
	Tags      []string
	Score     int
	Comments  int
	Images    []string
	IsVideo   bool
}

// ContentItem is the canonical, persisted unit of aggregated content.
// URL is the sole deduplication key: two items with the same URL are the
// same logical content no matter which strategy found them.
type ContentItem struct {
	Title          string
	URL            string
	SourceName     string
	Published      time.Time
	Summary        string
	Body           string
	Sentiment      string
	Category       string
	ReadingMinutes int
	Technologies   []string
	IsProcessed    bool
	Metadata       map[string]any
	Fetched        time.Time
}

// Summary is the output of the AI summarization stage.
type Summary struct {
	PostSummary    string
	CommunityGist  string
	KeyTopics      []string
	ReadingTime    int
	TargetAudience string
}
