package summarize

import (
	"context"

	"github.com/njmarshall/techstream/internal/logging"
	"github.com/njmarshall/techstream/internal/store"
)

// Worker summarizes stored items that have not been processed yet. It
// runs after refresh cycles, one batch at a time.
type Worker struct {
	manager *Manager
	store   *store.Store
	batch   int
}

// NewWorker creates a Worker summarizing up to batch items per run.
func NewWorker(manager *Manager, st *store.Store, batch int) *Worker {
	if batch <= 0 {
		batch = 10
	}
	return &Worker{manager: manager, store: st, batch: batch}
}

// Run processes one batch of unprocessed items and returns how many were
// summarized. A failing item is left unprocessed for the next run.
func (w *Worker) Run(ctx context.Context) (int, error) {
	items, err := w.store.UnprocessedItems(w.batch)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}

		sum, provider, err := w.manager.Summarize(ctx, item)
		if err != nil {
			logging.Warn("summarization failed", "url", item.URL, "error", err)
			continue
		}
		if err := w.store.SaveSummary(item.URL, provider, sum); err != nil {
			logging.Warn("summary save failed", "url", item.URL, "error", err)
			continue
		}
		if err := w.store.MarkProcessed(item.URL); err != nil {
			logging.Warn("mark processed failed", "url", item.URL, "error", err)
			continue
		}
		done++
	}

	if done > 0 {
		logging.Info("summarization batch complete", "summarized", done, "batch", len(items))
	}
	return done, nil
}
