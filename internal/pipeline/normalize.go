// Package pipeline turns raw candidates into persisted content items:
// normalize, filter against per-source rules, deduplicate by URL.
package pipeline

import (
	"strings"
	"time"

	"github.com/njmarshall/techstream/internal/fetch"
	"github.com/njmarshall/techstream/internal/model"
)

const (
	maxTitleLen     = 300
	maxSummaryLen   = 500
	readingChunk    = 200 // chars per estimated minute
	maxTechnologies = 5
)

// techVocabulary is the closed keyword set for technology tag extraction.
// Matching is case-insensitive substring against title+body.
var techVocabulary = []string{
	"golang", "rust", "python", "javascript", "typescript", "java", "kotlin",
	"swift", "react", "vue", "angular", "node.js", "django", "rails",
	"kubernetes", "docker", "terraform", "aws", "azure", "gcp", "linux",
	"postgres", "mysql", "sqlite", "redis", "mongodb", "kafka", "graphql",
	"grpc", "webassembly", "blockchain", "ethereum", "bitcoin",
	"machine learning", "deep learning", "llm", "gpt", "open source",
	"devops", "ci/cd", "security", "encryption", "api", "saas", "startup",
}

// Normalize maps a raw candidate into the canonical content item shape.
// Pure: no I/O, independent of source type.
func Normalize(cand model.Candidate, src model.Source, strat fetch.Strategy) model.ContentItem {
	title := fetch.Truncate(strings.TrimSpace(cand.Title), maxTitleLen)

	summary := cand.Summary
	if summary == "" {
		summary = cand.Body
	}
	summary = fetch.Truncate(strings.TrimSpace(summary), maxSummaryLen)

	published := cand.Published
	if published.IsZero() {
		published = time.Now()
	}

	metadata := map[string]any{
		"author":    cand.Author,
		"wordCount": len(strings.Fields(cand.Title + " " + cand.Body)),
		"strategy":  strat.Description,
	}
	if len(cand.Tags) > 0 {
		metadata["tags"] = cand.Tags
	}
	if cand.Score > 0 {
		metadata["upvotes"] = cand.Score
	}
	if cand.Comments > 0 {
		metadata["comments"] = cand.Comments
	}
	if len(cand.Images) > 0 {
		metadata["images"] = cand.Images
	}
	if cand.IsVideo {
		metadata["isVideo"] = true
	}

	return model.ContentItem{
		Title:          title,
		URL:            cand.URL,
		SourceName:     src.Name,
		Published:      published,
		Summary:        summary,
		Body:           cand.Body,
		Sentiment:      "neutral",
		Category:       src.Category,
		ReadingMinutes: ReadingMinutes(cand.Title + cand.Body),
		Technologies:   ExtractTechnologies(cand.Title + " " + cand.Body),
		Metadata:       metadata,
		Fetched:        time.Now(),
	}
}

// ReadingMinutes estimates reading time as ceil(chars/200), minimum 1.
func ReadingMinutes(text string) int {
	minutes := (len(text) + readingChunk - 1) / readingChunk
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

// ExtractTechnologies finds vocabulary keywords in the text, capped at 5.
func ExtractTechnologies(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, kw := range techVocabulary {
		if strings.Contains(lower, kw) {
			found = append(found, kw)
			if len(found) >= maxTechnologies {
				break
			}
		}
	}
	return found
}
