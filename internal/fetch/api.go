package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/njmarshall/techstream/internal/logging"
	"github.com/njmarshall/techstream/internal/model"
)

// wrapperKeys are the payload keys commonly wrapping an item array,
// checked in order.
var wrapperKeys = []string{"items", "articles", "posts", "results", "data", "stories", "entries", "hits"}

// Field aliases: the first non-empty value wins.
var (
	titleKeys     = []string{"title", "name", "headline"}
	urlKeys       = []string{"url", "link", "permalink", "web_url"}
	summaryKeys   = []string{"summary", "description", "excerpt", "text", "content"}
	authorKeys    = []string{"author", "by", "creator", "username"}
	publishedKeys = []string{"published_at", "created_at", "date", "pubDate", "published", "time", "timestamp"}
	tagsKeys      = []string{"tags", "topics", "keywords", "categories"}
)

const maxDetailFetches = 8 // parallel per-ID detail requests for story-index APIs

// APIFetcher retrieves items from generic JSON APIs. Payload shapes vary
// wildly, so it unwraps the first recognizable array and maps fields
// through alias lists. Sources flagged story_index take two round-trips:
// an ordered ID list, then one detail fetch per ID.
type APIFetcher struct {
	client *http.Client
}

// NewAPIFetcher creates an APIFetcher.
func NewAPIFetcher() *APIFetcher {
	return &APIFetcher{
		client: &http.Client{Timeout: 45 * time.Second},
	}
}

func (f *APIFetcher) Type() model.SourceType {
	return model.SourceAPI
}

// Fetch retrieves one page of records per the strategy's endpoint variant.
func (f *APIFetcher) Fetch(ctx context.Context, src model.Source, strat Strategy) ([]model.Candidate, error) {
	if src.Endpoint == "" {
		return nil, fmt.Errorf("api source %q has no endpoint configured", src.ID)
	}

	endpoint, err := f.endpointFor(src, strat)
	if err != nil {
		return nil, err
	}

	if src.Config.StoryIndex {
		return f.fetchStoryIndex(ctx, src, endpoint, strat)
	}

	var payload any
	if err := f.getJSON(ctx, endpoint, src.Config.Headers, strat.Timeout, &payload); err != nil {
		return nil, err
	}

	records := unwrapArray(payload)
	candidates := make([]model.Candidate, 0, len(records))
	for _, rec := range records {
		obj, ok := rec.(map[string]any)
		if !ok {
			continue
		}
		cand, ok := mapCandidate(obj)
		if !ok {
			continue
		}
		candidates = append(candidates, cand)
		if len(candidates) >= strat.Limit {
			break
		}
	}
	return candidates, nil
}

// endpointFor applies the strategy's endpoint variant.
func (f *APIFetcher) endpointFor(src model.Source, strat Strategy) (string, error) {
	u, err := url.Parse(src.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}

	switch strat.Variant {
	case "biglimit":
		param := src.Config.LimitParam
		if param == "" {
			param = "limit"
		}
		q := u.Query()
		q.Set(param, strconv.Itoa(strat.Limit))
		u.RawQuery = q.Encode()
	case "noquery":
		// Compatibility fallback: some endpoints 400 on unknown params.
		u.RawQuery = ""
	}
	return u.String(), nil
}

// fetchStoryIndex handles APIs that publish an ordered ID list with
// per-item detail endpoints. Individual detail failures are tolerated.
func (f *APIFetcher) fetchStoryIndex(ctx context.Context, src model.Source, endpoint string, strat Strategy) ([]model.Candidate, error) {
	if src.Config.ItemEndpoint == "" {
		return nil, fmt.Errorf("story-index source %q has no item_endpoint configured", src.ID)
	}

	var ids []int64
	if err := f.getJSON(ctx, endpoint, src.Config.Headers, strat.Timeout, &ids); err != nil {
		return nil, err
	}
	if len(ids) > strat.Limit {
		ids = ids[:strat.Limit]
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, maxDetailFetches)
	)
	byID := make(map[int64]model.Candidate, len(ids))

	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			detailURL := fmt.Sprintf(src.Config.ItemEndpoint, id)
			var obj map[string]any
			if err := f.getJSON(ctx, detailURL, src.Config.Headers, strat.Timeout, &obj); err != nil {
				logging.Debug("story detail fetch failed", "source", src.ID, "id", id, "error", err)
				return
			}
			cand, ok := mapCandidate(obj)
			if !ok {
				return
			}
			mu.Lock()
			byID[id] = cand
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	// Preserve the index's ordering.
	candidates := make([]model.Candidate, 0, len(byID))
	for _, id := range ids {
		if cand, ok := byID[id]; ok {
			candidates = append(candidates, cand)
		}
	}
	return candidates, nil
}

func (f *APIFetcher) getJSON(ctx context.Context, endpoint string, headers map[string]string, timeout time.Duration, out any) error {
	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", identifyHeaders["User-Agent"])
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// unwrapArray locates the item array in a payload: either the top level,
// or the first array under a known wrapper key. An unrecognizable payload
// yields zero records, not an error.
func unwrapArray(payload any) []any {
	if arr, ok := payload.([]any); ok {
		return arr
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	for _, key := range wrapperKeys {
		if arr, ok := obj[key].([]any); ok {
			return arr
		}
	}
	// Last resort: any array-valued field.
	for _, v := range obj {
		if arr, ok := v.([]any); ok {
			return arr
		}
	}
	return nil
}

// mapCandidate maps a raw record through the field aliases. Records
// missing a title or URL are unusable and reported as not-ok.
func mapCandidate(obj map[string]any) (model.Candidate, bool) {
	title := firstString(obj, titleKeys)
	rawURL := firstString(obj, urlKeys)
	if title == "" || rawURL == "" {
		return model.Candidate{}, false
	}

	var score, comments int
	if v, ok := obj["score"].(float64); ok {
		score = int(v)
	} else if v, ok := obj["points"].(float64); ok {
		score = int(v)
	}
	if v, ok := obj["descendants"].(float64); ok {
		comments = int(v)
	} else if v, ok := obj["comments_count"].(float64); ok {
		comments = int(v)
	}

	return model.Candidate{
		Title:     title,
		URL:       rawURL,
		Summary:   ExtractText(firstString(obj, summaryKeys)),
		Author:    firstString(obj, authorKeys),
		Published: parseWhen(firstValue(obj, publishedKeys)),
		Tags:      stringSlice(firstValue(obj, tagsKeys)),
		Score:     score,
		Comments:  comments,
	}, true
}

func firstString(obj map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstValue(obj map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// whenFormats are the timestamp layouts seen across JSON APIs.
var whenFormats = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseWhen interprets a published-time value: unix seconds/millis as a
// number, or one of the common string layouts. Unparseable values fall
// back to now.
func parseWhen(v any) time.Time {
	switch t := v.(type) {
	case float64:
		if t > 1e12 {
			return time.UnixMilli(int64(t))
		}
		if t > 0 {
			return time.Unix(int64(t), 0)
		}
	case string:
		for _, layout := range whenFormats {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts
			}
		}
	}
	return time.Now()
}

func stringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
