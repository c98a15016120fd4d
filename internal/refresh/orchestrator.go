// Package refresh coordinates one full refresh cycle across all sources.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/njmarshall/techstream/internal/fetch"
	"github.com/njmarshall/techstream/internal/logging"
	"github.com/njmarshall/techstream/internal/model"
	"github.com/njmarshall/techstream/internal/source"
	"github.com/njmarshall/techstream/internal/store"
)

// minPerSource is the floor for the per-source item cap, so low global
// caps still give every source a chance to contribute.
const minPerSource = 3

// TypeStats aggregates outcomes for one source type within a run.
type TypeStats struct {
	Processed    int
	Success      int
	Failed       int
	TotalFetched int
}

// Result is the structured outcome of one refresh cycle. A run always
// completes with a Result: per-source failures are recorded in Errors and
// the per-type stats, never propagated.
type Result struct {
	TotalFetched     int
	SourcesProcessed int
	Duplicates       int
	PerType          map[string]*TypeStats
	Duration         time.Duration
	TimedOut         bool
	Errors           []string
}

// Options tunes a refresh run.
type Options struct {
	MaxTotalItems int
	Budget        time.Duration // wall-clock budget; zero means no budget
	GroupByType   bool          // dispatch source types concurrently
}

// Orchestrator runs refresh cycles: it walks the active sources, hands
// each to the strategy executor, persists accepted items, and collects
// statistics. One source's failure never aborts the others.
type Orchestrator struct {
	registry *source.Registry
	executor *fetch.Executor
	store    *store.Store
	opts     Options
}

// New creates an Orchestrator.
func New(registry *source.Registry, executor *fetch.Executor, st *store.Store, opts Options) *Orchestrator {
	if opts.MaxTotalItems <= 0 {
		opts.MaxTotalItems = 60
	}
	return &Orchestrator{
		registry: registry,
		executor: executor,
		store:    st,
		opts:     opts,
	}
}

// Refresh processes all active sources and returns the run's statistics.
// The wall-clock budget stops launching new sources; in-flight work may
// complete and still be recorded.
func (o *Orchestrator) Refresh(ctx context.Context) Result {
	start := time.Now()
	res := Result{PerType: make(map[string]*TypeStats)}

	sources := o.registry.ListActive()
	if len(sources) == 0 {
		res.Duration = time.Since(start)
		return res
	}

	perSource := o.opts.MaxTotalItems / len(sources)
	if perSource < minPerSource {
		perSource = minPerSource
	}

	budget := newItemBudget(o.opts.MaxTotalItems)
	expired := func() bool {
		return o.opts.Budget > 0 && time.Since(start) > o.opts.Budget
	}

	logging.Info("refresh started", "sources", len(sources),
		"per_source_cap", perSource, "max_total", o.opts.MaxTotalItems)

	if o.opts.GroupByType {
		o.refreshGrouped(ctx, sources, perSource, budget, expired, &res)
	} else {
		o.refreshSequential(ctx, sources, perSource, budget, expired, &res)
	}

	res.Duration = time.Since(start)
	logging.Info("refresh complete", "fetched", res.TotalFetched,
		"sources", res.SourcesProcessed, "duplicates", res.Duplicates,
		"duration", res.Duration, "timed_out", res.TimedOut)
	return res
}

func (o *Orchestrator) refreshSequential(ctx context.Context, sources []model.Source, perSource int, budget *itemBudget, expired func() bool, res *Result) {
	var mu sync.Mutex
	for i, src := range sources {
		if expired() {
			res.TimedOut = true
			break
		}
		if ctx.Err() != nil {
			res.TimedOut = true
			break
		}
		if i > 0 {
			if err := o.executor.Limiter().Wait(ctx); err != nil {
				res.TimedOut = true
				break
			}
		}
		o.processSource(ctx, src, perSource, budget, res, &mu)
	}
}

// refreshGrouped dispatches one goroutine per source type with settle-all
// semantics: each group's successes and failures are observed
// independently, a failing group never cancels siblings.
func (o *Orchestrator) refreshGrouped(ctx context.Context, sources []model.Source, perSource int, budget *itemBudget, expired func() bool, res *Result) {
	groups := make(map[model.SourceType][]model.Source)
	for _, src := range sources {
		groups[src.Type] = append(groups[src.Type], src)
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, group := range groups {
		g.Go(func() error {
			for i, src := range group {
				if expired() || ctx.Err() != nil {
					mu.Lock()
					res.TimedOut = true
					mu.Unlock()
					return nil
				}
				if i > 0 {
					if err := o.executor.Limiter().Wait(ctx); err != nil {
						return nil
					}
				}
				o.processSource(ctx, src, perSource, budget, res, &mu)
			}
			return nil // errors are per-source, never fail the group
		})
	}
	_ = g.Wait()
}

// processSource runs one source end to end: strategy walk, persistence,
// stats. Any failure is recorded and contained here.
func (o *Orchestrator) processSource(ctx context.Context, src model.Source, perSource int, budget *itemBudget, res *Result, mu *sync.Mutex) {
	now := time.Now()
	stats := func() *TypeStats {
		key := string(src.Type)
		if res.PerType[key] == nil {
			res.PerType[key] = &TypeStats{}
		}
		return res.PerType[key]
	}

	target := budget.reserve(perSource)
	if target == 0 {
		// Global cap exhausted; source still counts as processed.
		mu.Lock()
		stats().Processed++
		res.SourcesProcessed++
		mu.Unlock()
		return
	}

	accepted, duplicates, err := o.fetchAndSave(ctx, src, target)
	budget.release(target - accepted)

	mu.Lock()
	st := stats()
	st.Processed++
	res.SourcesProcessed++
	if err != nil {
		st.Failed++
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", src.ID, err))
	} else {
		st.Success++
	}
	st.TotalFetched += accepted
	res.TotalFetched += accepted
	res.Duplicates += duplicates
	mu.Unlock()

	o.registry.RecordOutcome(src.ID, source.Outcome{
		OK:        err == nil,
		ItemCount: accepted,
		Err:       err,
		At:        now,
	})
}

// fetchAndSave runs the strategy executor for one source and persists the
// accepted items. The store's URL uniqueness is the last line of defense:
// a racing writer's duplicate insert is counted, not failed.
func (o *Orchestrator) fetchAndSave(ctx context.Context, src model.Source, target int) (accepted, duplicates int, err error) {
	if !src.Type.Valid() {
		return 0, 0, fmt.Errorf("unknown source type %q", src.Type)
	}

	result, err := o.executor.Run(ctx, src, target)
	if err != nil {
		return 0, 0, err
	}
	duplicates = result.Duplicates

	for _, item := range result.Items {
		saveErr := o.store.SaveItem(item)
		switch {
		case saveErr == nil:
			accepted++
		case errors.Is(saveErr, store.ErrDuplicateURL):
			duplicates++
		default:
			logging.Warn("item save failed", "source", src.ID, "url", item.URL, "error", saveErr)
		}
	}

	if accepted == 0 && allStrategiesFailed(result.Yields) {
		return 0, duplicates, fmt.Errorf("all strategies failed")
	}
	return accepted, duplicates, nil
}

func allStrategiesFailed(yields []fetch.StrategyYield) bool {
	if len(yields) == 0 {
		return false
	}
	for _, y := range yields {
		if y.Err == "" {
			return false
		}
	}
	return true
}

// itemBudget is the run-wide item cap, shared across concurrent groups.
// Reservations are returned when a source under-fills its share.
type itemBudget struct {
	mu        sync.Mutex
	remaining int
}

func newItemBudget(total int) *itemBudget {
	return &itemBudget{remaining: total}
}

// reserve claims up to n items from the budget.
func (b *itemBudget) reserve(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > b.remaining {
		n = b.remaining
	}
	b.remaining -= n
	return n
}

// release returns unused reservations to the budget.
func (b *itemBudget) release(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	b.remaining += n
	b.mu.Unlock()
}
