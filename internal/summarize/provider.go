// Package summarize generates reader-facing summaries for stored items.
// Providers are tried in order; the heuristic fallback always succeeds,
// so summarization never blocks the fetch pipeline.
package summarize

import (
	"context"
	"errors"

	"github.com/njmarshall/techstream/internal/logging"
	"github.com/njmarshall/techstream/internal/model"
)

// ErrRateLimited signals a transient provider limit; the manager moves
// on to the next provider instead of failing the item.
var ErrRateLimited = errors.New("provider rate limited")

// Provider generates a summary for one content item.
type Provider interface {
	// Name identifies the provider (e.g. "ollama", "heuristic").
	Name() string

	// Available reports whether the provider is configured and reachable.
	Available() bool

	// Summarize produces a summary for the item.
	Summarize(ctx context.Context, item model.ContentItem) (model.Summary, error)
}

// Manager tries providers in registration order and falls through on
// failure. Register the heuristic provider last so every item gets
// summarized eventually.
type Manager struct {
	providers []Provider
}

// NewManager creates a Manager with the given providers, tried in order.
func NewManager(providers ...Provider) *Manager {
	return &Manager{providers: providers}
}

// Add appends a provider to the fallback chain.
func (m *Manager) Add(p Provider) {
	m.providers = append(m.providers, p)
}

// Summarize runs the fallback chain for one item. Returns the summary,
// the name of the provider that produced it, and an error only when
// every provider failed.
func (m *Manager) Summarize(ctx context.Context, item model.ContentItem) (model.Summary, string, error) {
	var lastErr error
	for _, p := range m.providers {
		if !p.Available() {
			continue
		}
		sum, err := p.Summarize(ctx, item)
		if err == nil {
			return sum, p.Name(), nil
		}
		lastErr = err
		if errors.Is(err, ErrRateLimited) {
			logging.Debug("provider rate limited, falling through", "provider", p.Name())
			continue
		}
		logging.Warn("provider failed, falling through", "provider", p.Name(), "error", err)
	}
	if lastErr == nil {
		lastErr = errors.New("no providers available")
	}
	return model.Summary{}, "", lastErr
}
