package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/njmarshall/techstream/internal/fetch"
	"github.com/njmarshall/techstream/internal/logging"
	"github.com/njmarshall/techstream/internal/model"
)

// Chain wires normalize -> filter -> dedup into the executor's sink.
type Chain struct {
	deduper *Deduper
}

// NewChain creates a Chain backed by the given deduplicator.
func NewChain(deduper *Deduper) *Chain {
	return &Chain{deduper: deduper}
}

// Process runs one candidate through the pipeline, in record order:
// normalize first, then the source's filter rules at the strategy's
// leniency tier, then the URL dedup check.
func (c *Chain) Process(ctx context.Context, cand model.Candidate, src model.Source, strat fetch.Strategy) (model.ContentItem, fetch.Disposition, error) {
	if strings.TrimSpace(cand.Title) == "" || cand.URL == "" {
		return model.ContentItem{}, fetch.Filtered, nil
	}

	item := Normalize(cand, src, strat)

	if ok, reason := Accept(cand, src.Filters, strat.Tier); !ok {
		logging.Debug("candidate filtered", "source", src.ID, "url", cand.URL, "reason", reason)
		return model.ContentItem{}, fetch.Filtered, nil
	}

	if ctx.Err() != nil {
		return model.ContentItem{}, fetch.Filtered, ctx.Err()
	}

	seen, err := c.deduper.Seen(cand.URL)
	if err != nil {
		return model.ContentItem{}, fetch.Filtered, fmt.Errorf("dedup lookup: %w", err)
	}
	if seen {
		// Dropped silently: already-seen content is the common case.
		return model.ContentItem{}, fetch.Duplicate, nil
	}

	return item, fetch.Accepted, nil
}
