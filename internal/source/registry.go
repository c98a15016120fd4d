// Package source holds the registry of configured content sources.
package source

import (
	"sort"
	"sync"
	"time"

	"github.com/njmarshall/techstream/internal/logging"
	"github.com/njmarshall/techstream/internal/model"
	"github.com/njmarshall/techstream/internal/store"
)

// Registry manages the configured sources and their running statistics.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]*model.Source
	store   *store.Store // optional: nil skips stat persistence
}

// NewRegistry creates a registry from the configured source list.
// Sources with an unknown type are registered but reported invalid by
// ListActive callers via Source.Type.Valid().
func NewRegistry(sources []model.Source, st *store.Store) *Registry {
	r := &Registry{
		sources: make(map[string]*model.Source, len(sources)),
		store:   st,
	}
	for i := range sources {
		src := sources[i]
		if st != nil {
			// Hydrate persisted stats so restarts keep running totals.
			if stats, err := st.SourceStats(src.ID); err == nil {
				src.Stats = stats
			}
		}
		r.sources[src.ID] = &src
	}
	return r
}

// ListActive returns active sources ordered by priority ascending,
// ties broken by name for deterministic processing order.
func (r *Registry) ListActive() []model.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Source, 0, len(r.sources))
	for _, s := range r.sources {
		if s.Active {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Get returns a source by ID.
func (r *Registry) Get(id string) (model.Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[id]
	if !ok {
		return model.Source{}, false
	}
	return *s, true
}

// Outcome describes the result of one fetch attempt for a source.
type Outcome struct {
	OK        bool
	ItemCount int
	Err       error
	At        time.Time
}

// RecordOutcome updates in-memory stats for a source and persists them.
func (r *Registry) RecordOutcome(id string, o Outcome) {
	r.mu.Lock()
	s, ok := r.sources[id]
	if ok {
		s.Stats.TotalFetched += o.ItemCount
		s.Stats.LastFetchCount = o.ItemCount
		s.Stats.LastFetchedAt = o.At
		s.Stats.LastFetchOK = o.OK
		s.Stats.LastError = ""
		if o.Err != nil {
			s.Stats.LastError = o.Err.Error()
		}
	}
	r.mu.Unlock()

	if !ok {
		logging.Warn("outcome recorded for unknown source", "id", id)
		return
	}

	if r.store != nil {
		patch := store.StatsPatch{
			OK:        o.OK,
			ItemCount: o.ItemCount,
			At:        o.At,
		}
		if o.Err != nil {
			patch.Error = o.Err.Error()
		}
		if err := r.store.UpdateSourceStats(id, s.Name, patch); err != nil {
			logging.Warn("failed to persist source stats", "id", id, "error", err)
		}
	}
}

// Count returns the number of registered sources.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}
