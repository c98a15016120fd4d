package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/njmarshall/techstream/internal/model"
)

// RSSFetcher retrieves RSS and Atom feeds. gofeed handles both formats,
// CDATA-wrapped fields, and the usual encoding quirks.
type RSSFetcher struct {
	client *http.Client
}

// NewRSSFetcher creates an RSSFetcher.
func NewRSSFetcher() *RSSFetcher {
	// Per-request timeouts come from the strategy via context; the client
	// timeout is just a hard ceiling.
	return &RSSFetcher{
		client: &http.Client{Timeout: 45 * time.Second},
	}
}

func (f *RSSFetcher) Type() model.SourceType {
	return model.SourceRSS
}

// Fetch retrieves the feed with the strategy's header profile and timeout.
func (f *RSSFetcher) Fetch(ctx context.Context, src model.Source, strat Strategy) ([]model.Candidate, error) {
	if src.Endpoint == "" {
		return nil, fmt.Errorf("rss source %q has no endpoint configured", src.ID)
	}

	reqCtx := ctx
	if strat.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, strat.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, src.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range strat.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d %s", resp.StatusCode, resp.Status)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	now := time.Now()
	candidates := make([]model.Candidate, 0, len(feed.Items))
	for _, entry := range feed.Items {
		link := entryLink(entry)
		if entry.Title == "" || link == "" {
			// Entries without a title or link can't become items; skip
			// silently, this is not an error.
			continue
		}

		published := now
		if entry.PublishedParsed != nil {
			published = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			published = *entry.UpdatedParsed
		}

		author := ""
		if entry.Author != nil {
			author = entry.Author.Name
		}

		candidates = append(candidates, model.Candidate{
			Title:     entry.Title,
			URL:       link,
			Summary:   ExtractText(entry.Description),
			Body:      ExtractText(entry.Content),
			Author:    author,
			Published: published,
			Tags:      entry.Categories,
		})
	}

	// Newest first, so caps preferentially keep fresh content.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Published.After(candidates[j].Published)
	})

	if len(candidates) > strat.Limit {
		candidates = candidates[:strat.Limit]
	}
	return candidates, nil
}

// entryLink picks the entry's canonical URL. Some feeds emit
// query-parameter-only links without a real path; when the GUID holds a
// cleaner absolute URL, prefer it.
func entryLink(entry *gofeed.Item) string {
	link := entry.Link
	if link == "" {
		// Atom entries may carry the URL only in the id.
		link = entry.GUID
	}
	if entry.GUID != "" && queryOnlyLink(link) && absoluteURL(entry.GUID) {
		link = entry.GUID
	}
	return link
}

func queryOnlyLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return (u.Path == "" || u.Path == "/") && u.RawQuery != ""
}

func absoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != "" && u.Path != "" && u.Path != "/"
}
