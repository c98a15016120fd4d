package store

import (
	"errors"
	"testing"
	"time"

	"github.com/njmarshall/techstream/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testItem(url string) model.ContentItem {
	return model.ContentItem{
		Title:      "Test Item",
		URL:        url,
		SourceName: "test-source",
		Category:   "tech",
		Published:  time.Now().Add(-time.Hour),
		Summary:    "A summary",
		Fetched:    time.Now(),
	}
}

func TestSaveItemAndFindByURL(t *testing.T) {
	st := newTestStore(t)

	item := testItem("https://example.com/a")
	item.Technologies = []string{"golang", "sqlite"}
	item.Metadata = map[string]any{"author": "alice"}
	if err := st.SaveItem(item); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}

	got, err := st.FindByURL("https://example.com/a")
	if err != nil {
		t.Fatalf("FindByURL failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected item, got nil")
	}
	if got.Title != "Test Item" {
		t.Errorf("Title = %q, want %q", got.Title, "Test Item")
	}
	if len(got.Technologies) != 2 {
		t.Errorf("Technologies = %v, want 2 entries", got.Technologies)
	}
	if got.Metadata["author"] != "alice" {
		t.Errorf("Metadata author = %v, want alice", got.Metadata["author"])
	}
	if got.Sentiment != "neutral" {
		t.Errorf("Sentiment = %q, want default neutral", got.Sentiment)
	}
}

func TestFindByURLAbsent(t *testing.T) {
	st := newTestStore(t)

	got, err := st.FindByURL("https://example.com/missing")
	if err != nil {
		t.Fatalf("FindByURL failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for absent URL, got %+v", got)
	}
}

func TestSaveItemDuplicateURL(t *testing.T) {
	st := newTestStore(t)

	if err := st.SaveItem(testItem("https://example.com/dup")); err != nil {
		t.Fatalf("first SaveItem failed: %v", err)
	}

	// Same URL with a different title still collides.
	second := testItem("https://example.com/dup")
	second.Title = "Different Title"
	err := st.SaveItem(second)
	if !errors.Is(err, ErrDuplicateURL) {
		t.Fatalf("expected ErrDuplicateURL, got %v", err)
	}

	count, err := st.ItemCount()
	if err != nil {
		t.Fatalf("ItemCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("ItemCount = %d, want 1", count)
	}
}

func TestSaveItemsIgnoresDuplicates(t *testing.T) {
	st := newTestStore(t)

	if err := st.SaveItem(testItem("https://example.com/1")); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}

	n, err := st.SaveItems([]model.ContentItem{
		testItem("https://example.com/1"),
		testItem("https://example.com/2"),
		testItem("https://example.com/3"),
	})
	if err != nil {
		t.Fatalf("SaveItems failed: %v", err)
	}
	if n != 2 {
		t.Errorf("new count = %d, want 2", n)
	}
}

func TestExistsURLSince(t *testing.T) {
	st := newTestStore(t)

	item := testItem("https://example.com/old")
	item.Fetched = time.Now().Add(-48 * time.Hour)
	if err := st.SaveItem(item); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}

	exists, err := st.ExistsURL("https://example.com/old")
	if err != nil || !exists {
		t.Errorf("ExistsURL = (%v, %v), want (true, nil)", exists, err)
	}

	// Outside a 24h window the old item does not count.
	recent, err := st.ExistsURLSince("https://example.com/old", time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("ExistsURLSince failed: %v", err)
	}
	if recent {
		t.Error("expected old item to fall outside the window")
	}

	within, err := st.ExistsURLSince("https://example.com/old", time.Now().Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("ExistsURLSince failed: %v", err)
	}
	if !within {
		t.Error("expected old item inside a 72h window")
	}
}

func TestUnprocessedAndMarkProcessed(t *testing.T) {
	st := newTestStore(t)

	for _, u := range []string{"https://a.com/1", "https://a.com/2"} {
		if err := st.SaveItem(testItem(u)); err != nil {
			t.Fatalf("SaveItem failed: %v", err)
		}
	}

	items, err := st.UnprocessedItems(10)
	if err != nil {
		t.Fatalf("UnprocessedItems failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("unprocessed = %d, want 2", len(items))
	}

	if err := st.MarkProcessed("https://a.com/1"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	items, err = st.UnprocessedItems(10)
	if err != nil {
		t.Fatalf("UnprocessedItems failed: %v", err)
	}
	if len(items) != 1 || items[0].URL != "https://a.com/2" {
		t.Errorf("unprocessed after mark = %v, want only /2", items)
	}
}

func TestPruneOlderThan(t *testing.T) {
	st := newTestStore(t)

	old := testItem("https://a.com/old")
	old.Fetched = time.Now().Add(-100 * 24 * time.Hour)
	fresh := testItem("https://a.com/fresh")
	for _, it := range []model.ContentItem{old, fresh} {
		if err := st.SaveItem(it); err != nil {
			t.Fatalf("SaveItem failed: %v", err)
		}
	}

	pruned, err := st.PruneOlderThan(time.Now().Add(-90 * 24 * time.Hour))
	if err != nil {
		t.Fatalf("PruneOlderThan failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}

	count, _ := st.ItemCount()
	if count != 1 {
		t.Errorf("remaining = %d, want 1", count)
	}
}

func TestUpdateSourceStatsAccumulates(t *testing.T) {
	st := newTestStore(t)

	now := time.Now()
	if err := st.UpdateSourceStats("src-1", "Source One", StatsPatch{OK: true, ItemCount: 5, At: now}); err != nil {
		t.Fatalf("UpdateSourceStats failed: %v", err)
	}
	if err := st.UpdateSourceStats("src-1", "Source One", StatsPatch{OK: false, ItemCount: 3, Error: "HTTP 500", At: now}); err != nil {
		t.Fatalf("UpdateSourceStats failed: %v", err)
	}

	stats, err := st.SourceStats("src-1")
	if err != nil {
		t.Fatalf("SourceStats failed: %v", err)
	}
	if stats.TotalFetched != 8 {
		t.Errorf("TotalFetched = %d, want 8", stats.TotalFetched)
	}
	if stats.LastFetchCount != 3 {
		t.Errorf("LastFetchCount = %d, want 3", stats.LastFetchCount)
	}
	if stats.LastFetchOK {
		t.Error("LastFetchOK = true, want false after failed fetch")
	}
	if stats.LastError != "HTTP 500" {
		t.Errorf("LastError = %q, want HTTP 500", stats.LastError)
	}
}

func TestSourceStatsUnknownSource(t *testing.T) {
	st := newTestStore(t)

	stats, err := st.SourceStats("never-seen")
	if err != nil {
		t.Fatalf("SourceStats failed: %v", err)
	}
	if stats.TotalFetched != 0 || stats.LastFetchCount != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}
}

func TestSaveAndGetSummary(t *testing.T) {
	st := newTestStore(t)

	sum := model.Summary{
		PostSummary:    "A post about databases.",
		CommunityGist:  "Lively discussion.",
		KeyTopics:      []string{"sqlite", "golang"},
		ReadingTime:    3,
		TargetAudience: "developers",
	}
	if err := st.SaveSummary("https://a.com/1", "heuristic", sum); err != nil {
		t.Fatalf("SaveSummary failed: %v", err)
	}

	got, err := st.GetSummary("https://a.com/1")
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected summary, got nil")
	}
	if got.PostSummary != sum.PostSummary {
		t.Errorf("PostSummary = %q, want %q", got.PostSummary, sum.PostSummary)
	}
	if len(got.KeyTopics) != 2 {
		t.Errorf("KeyTopics = %v, want 2 entries", got.KeyTopics)
	}

	missing, err := st.GetSummary("https://a.com/none")
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing summary, got %+v", missing)
	}
}
