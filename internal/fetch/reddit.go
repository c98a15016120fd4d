package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/njmarshall/techstream/internal/logging"
	"github.com/njmarshall/techstream/internal/model"
)

// RedditFetcher pulls posts from a subreddit listing. Tries the
// authenticated OAuth endpoint first when a token is available, then falls
// back to the public .json endpoint with a few header variations since
// reddit blocks unfamiliar user agents aggressively.
type RedditFetcher struct {
	client    *http.Client
	tokens    TokenSource
	userAgent string

	// Overridable for tests.
	oauthBase  string
	publicBase string
}

// NewRedditFetcher creates a RedditFetcher. tokens may be nil for
// public-only access.
func NewRedditFetcher(tokens TokenSource, userAgent string) *RedditFetcher {
	if userAgent == "" {
		userAgent = identifyHeaders["User-Agent"]
	}
	return &RedditFetcher{
		client:     &http.Client{Timeout: defaultTimeout},
		tokens:     tokens,
		userAgent:  userAgent,
		oauthBase:  "https://oauth.reddit.com",
		publicBase: "https://www.reddit.com",
	}
}

func (f *RedditFetcher) Type() model.SourceType {
	return model.SourceReddit
}

// Fetch retrieves one page of posts per the strategy's sort/time window.
func (f *RedditFetcher) Fetch(ctx context.Context, src model.Source, strat Strategy) ([]model.Candidate, error) {
	sub := src.Config.Subreddit
	if sub == "" {
		return nil, fmt.Errorf("reddit source %q has no subreddit configured", src.ID)
	}

	listing, err := f.fetchListing(ctx, sub, strat)
	if err != nil {
		return nil, err
	}

	candidates := make([]model.Candidate, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.Stickied || post.Title == "" {
			continue
		}
		candidates = append(candidates, f.convertPost(post, sub))
	}

	orderBatch(candidates, strat.Sort)
	return candidates, nil
}

// fetchListing tries the OAuth endpoint, then the public endpoint with
// alternate header profiles. A non-2xx response is a soft failure for that
// approach, not the whole fetch.
func (f *RedditFetcher) fetchListing(ctx context.Context, sub string, strat Strategy) (*redditListing, error) {
	path := fmt.Sprintf("/r/%s/%s", sub, strat.Sort)
	query := fmt.Sprintf("t=%s&limit=%d&raw_json=1", strat.TimeWindow, strat.Limit)

	if f.tokens != nil {
		token, err := f.tokens.Token(ctx)
		if err != nil {
			logging.Debug("reddit token unavailable, using public endpoint", "error", err)
		} else if token != "" {
			url := fmt.Sprintf("%s%s?%s", f.oauthBase, path, query)
			headers := map[string]string{
				"Authorization": "Bearer " + token,
				"User-Agent":    f.userAgent,
			}
			listing, err := f.getListing(ctx, url, headers, strat.Timeout)
			if err == nil {
				return listing, nil
			}
			logging.Debug("reddit oauth fetch failed, falling back", "subreddit", sub, "error", err)
		}
	}

	approaches := []map[string]string{
		{"User-Agent": f.userAgent, "Accept": "application/json"},
		browserHeaders,
		minimalHeaders,
	}

	var lastErr error
	for i, headers := range approaches {
		url := fmt.Sprintf("%s%s.json?%s", f.publicBase, path, query)
		listing, err := f.getListing(ctx, url, headers, strat.Timeout)
		if err == nil {
			return listing, nil
		}
		lastErr = err
		logging.Debug("reddit public approach failed", "subreddit", sub, "approach", i+1, "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("all reddit approaches failed for r/%s: %w", sub, lastErr)
}

func (f *RedditFetcher) getListing(ctx context.Context, url string, headers map[string]string, timeout time.Duration) (*redditListing, error) {
	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	return &listing, nil
}

func (f *RedditFetcher) convertPost(post redditPost, sub string) model.Candidate {
	url := post.URL
	if !strings.HasPrefix(url, "http") && post.Permalink != "" {
		url = f.publicBase + post.Permalink
	}

	summary := strings.TrimSpace(post.Selftext)
	if summary == "" {
		summary = fmt.Sprintf("Discussion on r/%s", sub)
	}

	var tags []string
	if post.LinkFlairText != "" {
		tags = append(tags, post.LinkFlairText)
	}

	var images []string
	for _, img := range post.Preview.Images {
		if img.Source.URL != "" {
			images = append(images, img.Source.URL)
		}
	}
	if len(images) == 0 && strings.HasPrefix(post.Thumbnail, "http") {
		images = append(images, post.Thumbnail)
	}

	return model.Candidate{
		Title:     post.Title,
		URL:       url,
		Summary:   summary,
		Body:      post.Selftext,
		Author:    post.Author,
		Published: time.Unix(int64(post.CreatedUTC), 0),
		Tags:      tags,
		Score:     post.Ups,
		Comments:  post.NumComments,
		Images:    images,
		IsVideo:   post.IsVideo,
	}
}

// orderBatch sorts a batch so that, under a cap, the most interesting posts
// are considered first: creation time for new/rising, score for top,
// API order otherwise.
func orderBatch(candidates []model.Candidate, sortMode string) {
	switch sortMode {
	case "new", "rising":
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Published.After(candidates[j].Published)
		})
	case "top":
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Score > candidates[j].Score
		})
	}
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Permalink     string  `json:"permalink"`
	Selftext      string  `json:"selftext"`
	CreatedUTC    float64 `json:"created_utc"`
	Author        string  `json:"author"`
	LinkFlairText string  `json:"link_flair_text"`
	Ups           int     `json:"ups"`
	NumComments   int     `json:"num_comments"`
	Thumbnail     string  `json:"thumbnail"`
	IsVideo       bool    `json:"is_video"`
	Stickied      bool    `json:"stickied"`
	Preview       struct {
		Images []struct {
			Source struct {
				URL string `json:"url"`
			} `json:"source"`
		} `json:"images"`
	} `json:"preview"`
}
