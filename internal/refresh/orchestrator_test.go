package refresh

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/njmarshall/techstream/internal/fetch"
	"github.com/njmarshall/techstream/internal/model"
	"github.com/njmarshall/techstream/internal/pipeline"
	"github.com/njmarshall/techstream/internal/source"
	"github.com/njmarshall/techstream/internal/store"
)

// fakeFetcher serves canned candidates per source ID, same batch for
// every strategy.
type fakeFetcher struct {
	typ     model.SourceType
	batches map[string][]model.Candidate
	errs    map[string]error
}

func (f *fakeFetcher) Type() model.SourceType { return f.typ }

func (f *fakeFetcher) Fetch(_ context.Context, src model.Source, _ fetch.Strategy) ([]model.Candidate, error) {
	if err := f.errs[src.ID]; err != nil {
		return nil, err
	}
	return f.batches[src.ID], nil
}

func candidatesFor(sourceID string, n int) []model.Candidate {
	out := make([]model.Candidate, n)
	for i := range out {
		out[i] = model.Candidate{
			Title: fmt.Sprintf("%s item %d", sourceID, i),
			URL:   fmt.Sprintf("https://example.com/%s/%d", sourceID, i),
		}
	}
	return out
}

func rssTestSource(id string, priority int) model.Source {
	return model.Source{
		ID: id, Name: id, Type: model.SourceRSS, Active: true, Priority: priority,
		Endpoint: "https://example.com/" + id + "/feed",
	}
}

type fixture struct {
	store    *store.Store
	registry *source.Registry
	orch     *Orchestrator
}

func newFixture(t *testing.T, sources []model.Source, fetchers []fetch.Fetcher, opts Options) *fixture {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	registry := source.NewRegistry(sources, st)
	chain := pipeline.NewChain(pipeline.NewDeduper(st, 0))
	executor := fetch.NewExecutor(chain, time.Millisecond, fetchers...)

	return &fixture{
		store:    st,
		registry: registry,
		orch:     New(registry, executor, st, opts),
	}
}

func TestRefreshSavesItems(t *testing.T) {
	f := &fakeFetcher{typ: model.SourceRSS, batches: map[string][]model.Candidate{
		"feed-a": candidatesFor("feed-a", 5),
	}}
	fx := newFixture(t, []model.Source{rssTestSource("feed-a", 1)}, []fetch.Fetcher{f}, Options{MaxTotalItems: 60})

	res := fx.orch.Refresh(context.Background())

	if res.TotalFetched != 5 {
		t.Errorf("TotalFetched = %d, want 5", res.TotalFetched)
	}
	if res.SourcesProcessed != 1 {
		t.Errorf("SourcesProcessed = %d, want 1", res.SourcesProcessed)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v, want none", res.Errors)
	}

	stats := res.PerType["rss"]
	if stats == nil || stats.Success != 1 || stats.TotalFetched != 5 {
		t.Errorf("rss stats = %+v", stats)
	}

	count, _ := fx.store.ItemCount()
	if count != 5 {
		t.Errorf("stored items = %d, want 5", count)
	}

	src, _ := fx.registry.Get("feed-a")
	if src.Stats.TotalFetched != 5 || !src.Stats.LastFetchOK {
		t.Errorf("source stats = %+v", src.Stats)
	}
}

func TestRefreshRespectsGlobalCap(t *testing.T) {
	f := &fakeFetcher{typ: model.SourceRSS, batches: map[string][]model.Candidate{
		"feed-a": candidatesFor("feed-a", 50),
		"feed-b": candidatesFor("feed-b", 50),
	}}
	sources := []model.Source{rssTestSource("feed-a", 1), rssTestSource("feed-b", 2)}
	fx := newFixture(t, sources, []fetch.Fetcher{f}, Options{MaxTotalItems: 10})

	res := fx.orch.Refresh(context.Background())

	if res.TotalFetched > 10 {
		t.Errorf("TotalFetched = %d, exceeds cap of 10", res.TotalFetched)
	}
	count, _ := fx.store.ItemCount()
	if count > 10 {
		t.Errorf("stored items = %d, exceeds cap of 10", count)
	}
}

func TestRefreshRerunYieldsOnlyDuplicates(t *testing.T) {
	f := &fakeFetcher{typ: model.SourceRSS, batches: map[string][]model.Candidate{
		"feed-a": candidatesFor("feed-a", 4),
	}}
	fx := newFixture(t, []model.Source{rssTestSource("feed-a", 1)}, []fetch.Fetcher{f}, Options{MaxTotalItems: 60})

	first := fx.orch.Refresh(context.Background())
	if first.TotalFetched != 4 {
		t.Fatalf("first run fetched = %d, want 4", first.TotalFetched)
	}

	second := fx.orch.Refresh(context.Background())
	if second.TotalFetched != 0 {
		t.Errorf("second run fetched = %d, want 0", second.TotalFetched)
	}
	if second.Duplicates == 0 {
		t.Error("second run should count duplicates")
	}
	if len(second.Errors) != 0 {
		t.Errorf("re-run produced errors: %v", second.Errors)
	}

	count, _ := fx.store.ItemCount()
	if count != 4 {
		t.Errorf("stored items after re-run = %d, want 4", count)
	}
}

func TestRefreshFailingSourceIsolated(t *testing.T) {
	f := &fakeFetcher{
		typ: model.SourceRSS,
		batches: map[string][]model.Candidate{
			"feed-good": candidatesFor("feed-good", 3),
		},
		errs: map[string]error{
			"feed-bad": errors.New("connection refused"),
		},
	}
	sources := []model.Source{rssTestSource("feed-bad", 1), rssTestSource("feed-good", 2)}
	fx := newFixture(t, sources, []fetch.Fetcher{f}, Options{MaxTotalItems: 60})

	res := fx.orch.Refresh(context.Background())

	if res.TotalFetched != 3 {
		t.Errorf("TotalFetched = %d, want 3 from the healthy source", res.TotalFetched)
	}
	if res.SourcesProcessed != 2 {
		t.Errorf("SourcesProcessed = %d, want 2", res.SourcesProcessed)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("Errors = %v, want exactly one", res.Errors)
	}

	stats := res.PerType["rss"]
	if stats.Success != 1 || stats.Failed != 1 {
		t.Errorf("rss stats = %+v, want 1 success and 1 failure", stats)
	}

	bad, _ := fx.registry.Get("feed-bad")
	if bad.Stats.LastFetchOK {
		t.Error("failed source recorded as OK")
	}
	if bad.Stats.LastError == "" {
		t.Error("failed source has no recorded error")
	}
}

func TestRefreshUnknownSourceType(t *testing.T) {
	misconfigured := model.Source{
		ID: "weird", Name: "weird", Type: "carrier-pigeon", Active: true, Priority: 1,
	}
	f := &fakeFetcher{typ: model.SourceRSS, batches: map[string][]model.Candidate{
		"feed-a": candidatesFor("feed-a", 2),
	}}
	sources := []model.Source{misconfigured, rssTestSource("feed-a", 2)}
	fx := newFixture(t, sources, []fetch.Fetcher{f}, Options{MaxTotalItems: 60})

	res := fx.orch.Refresh(context.Background())

	if res.TotalFetched != 2 {
		t.Errorf("TotalFetched = %d, want 2 despite the misconfigured source", res.TotalFetched)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("Errors = %v, want the unknown-type failure", res.Errors)
	}
}

func TestRefreshGroupedByType(t *testing.T) {
	rss := &fakeFetcher{typ: model.SourceRSS, batches: map[string][]model.Candidate{
		"feed-a": candidatesFor("feed-a", 3),
	}}
	api := &fakeFetcher{typ: model.SourceAPI, batches: map[string][]model.Candidate{
		"api-a": candidatesFor("api-a", 3),
	}}
	sources := []model.Source{
		rssTestSource("feed-a", 1),
		{ID: "api-a", Name: "api-a", Type: model.SourceAPI, Active: true, Priority: 2,
			Endpoint: "https://example.com/api"},
	}
	fx := newFixture(t, sources, []fetch.Fetcher{rss, api}, Options{MaxTotalItems: 60, GroupByType: true})

	res := fx.orch.Refresh(context.Background())

	if res.TotalFetched != 6 {
		t.Errorf("TotalFetched = %d, want 6 across both groups", res.TotalFetched)
	}
	if res.PerType["rss"].Success != 1 || res.PerType["api"].Success != 1 {
		t.Errorf("per-type stats = %+v", res.PerType)
	}
}

func TestRefreshNoSources(t *testing.T) {
	fx := newFixture(t, nil, nil, Options{MaxTotalItems: 60})

	res := fx.orch.Refresh(context.Background())
	if res.TotalFetched != 0 || res.SourcesProcessed != 0 {
		t.Errorf("empty registry result = %+v", res)
	}
}

func TestItemBudget(t *testing.T) {
	b := newItemBudget(10)

	if got := b.reserve(6); got != 6 {
		t.Errorf("reserve(6) = %d", got)
	}
	if got := b.reserve(6); got != 4 {
		t.Errorf("reserve(6) with 4 left = %d", got)
	}
	if got := b.reserve(3); got != 0 {
		t.Errorf("reserve on empty budget = %d", got)
	}

	b.release(5)
	if got := b.reserve(10); got != 5 {
		t.Errorf("reserve after release = %d", got)
	}
}
