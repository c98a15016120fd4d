package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/njmarshall/techstream/internal/model"
)

const heuristicMaxSentences = 3

// HeuristicProvider builds a summary from the item's own text, no model
// involved. It never fails, which makes it the chain's terminal fallback.
type HeuristicProvider struct{}

// NewHeuristic creates a HeuristicProvider.
func NewHeuristic() *HeuristicProvider { return &HeuristicProvider{} }

func (h *HeuristicProvider) Name() string    { return "heuristic" }
func (h *HeuristicProvider) Available() bool { return true }

func (h *HeuristicProvider) Summarize(_ context.Context, item model.ContentItem) (model.Summary, error) {
	text := item.Summary
	if text == "" {
		text = item.Body
	}
	if text == "" {
		text = item.Title
	}

	gist := ""
	if comments := commentCount(item.Metadata); comments > 0 {
		gist = fmt.Sprintf("Discussion with %d comments on %s.", comments, item.SourceName)
	}

	return model.Summary{
		PostSummary:    leadSentences(text, heuristicMaxSentences),
		CommunityGist:  gist,
		KeyTopics:      item.Technologies,
		ReadingTime:    item.ReadingMinutes,
		TargetAudience: audienceFor(item),
	}, nil
}

// leadSentences returns the first n sentences of text.
func leadSentences(text string, n int) string {
	text = strings.TrimSpace(text)
	count := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			count++
			if count >= n {
				return text[:i+1]
			}
		}
	}
	return text
}

// commentCount reads the comment total from item metadata. The value is
// an int in memory but float64 after a JSON round-trip through the store.
func commentCount(metadata map[string]any) int {
	switch v := metadata["comments"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func audienceFor(item model.ContentItem) string {
	switch {
	case len(item.Technologies) > 0:
		return "developers"
	case strings.EqualFold(item.Category, "startups"):
		return "founders"
	default:
		return "general tech readers"
	}
}
