// Package fetch retrieves raw candidates from remote sources.
//
// Each source type (reddit, rss, api) has a fetcher that knows how to pull
// one page of records and flatten them into model.Candidate. The Executor
// walks an ordered list of fetch strategies per source, broadening the
// query until enough new content is found or the list is exhausted.
package fetch

import (
	"fmt"
	"time"

	"github.com/njmarshall/techstream/internal/model"
)

// Tier is the filter-leniency level of a strategy. Deeper or historical
// strategies get looser minimum-length thresholds so otherwise-valid older
// content is not rejected. Exclude keywords are never relaxed.
type Tier int

const (
	TierPrimary Tier = iota
	TierLenient
	TierDesperate
)

// Divisor returns the factor by which the minimum-length threshold shrinks
// at this tier.
func (t Tier) Divisor() int {
	switch t {
	case TierLenient:
		return 4
	case TierDesperate:
		return 8
	}
	return 1
}

func (t Tier) String() string {
	switch t {
	case TierLenient:
		return "lenient"
	case TierDesperate:
		return "desperate"
	}
	return "primary"
}

// Strategy is one parameterized attempt to query a source. Built fresh per
// refresh cycle and discarded afterwards; never persisted.
type Strategy struct {
	Sort        string        // reddit sort mode
	TimeWindow  string        // reddit time filter
	Limit       int           // page size requested from the remote
	Timeout     time.Duration // per-request budget
	Headers     map[string]string
	Variant     string // api fetcher: primary, biglimit, noquery
	Description string
	Tier        Tier
	Desperate   bool // only runs when total yield stays below the desperation threshold
}

const defaultTimeout = 20 * time.Second

// Header profiles for sources that block unfamiliar clients. Retrying the
// same URL with different headers gets past most blanket UA blocks.
var (
	identifyHeaders = map[string]string{
		"User-Agent": "techstream/1.0 (content aggregator; +https://github.com/njmarshall/techstream)",
		"Accept":     "application/rss+xml, application/atom+xml, application/xml, text/xml, */*",
	}
	browserHeaders = map[string]string{
		"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
	}
	minimalHeaders = map[string]string{}
)

// StrategiesFor builds the ordered strategy list for a source's type.
func StrategiesFor(src model.Source) []Strategy {
	switch src.Type {
	case model.SourceReddit:
		return redditStrategies(src)
	case model.SourceRSS:
		return rssStrategies()
	case model.SourceAPI:
		return apiStrategies()
	}
	return nil
}

func redditStrategies(src model.Source) []Strategy {
	sort := src.Config.SortBy
	if sort == "" {
		sort = "hot"
	}
	window := src.Config.TimeFilter
	if window == "" {
		window = "day"
	}

	return []Strategy{
		{
			Sort: sort, TimeWindow: window, Limit: 25, Timeout: defaultTimeout,
			Description: fmt.Sprintf("configured %s/%s", sort, window), Tier: TierPrimary,
		},
		{
			Sort: "top", TimeWindow: "week", Limit: 50, Timeout: defaultTimeout,
			Description: "top/week", Tier: TierLenient,
		},
		{
			Sort: "top", TimeWindow: "month", Limit: 75, Timeout: defaultTimeout,
			Description: "top/month", Tier: TierLenient,
		},
		{
			Sort: "new", TimeWindow: "day", Limit: 25, Timeout: defaultTimeout,
			Description: "new/day", Tier: TierLenient,
		},
		{
			Sort: "rising", TimeWindow: "day", Limit: 25, Timeout: defaultTimeout,
			Description: "rising/day", Tier: TierLenient,
		},
		{
			Sort: "top", TimeWindow: "all", Limit: 100, Timeout: defaultTimeout,
			Description: "top/all", Tier: TierDesperate, Desperate: true,
		},
	}
}

func rssStrategies() []Strategy {
	// Timeouts grow on retries: slower responses are more likely once the
	// fast path has already failed.
	return []Strategy{
		{
			Headers: identifyHeaders, Limit: 50, Timeout: 20 * time.Second,
			Description: "identifying headers", Tier: TierPrimary,
		},
		{
			Headers: browserHeaders, Limit: 50, Timeout: 25 * time.Second,
			Description: "browser headers", Tier: TierLenient,
		},
		{
			Headers: minimalHeaders, Limit: 50, Timeout: 30 * time.Second,
			Description: "minimal headers", Tier: TierLenient,
		},
	}
}

func apiStrategies() []Strategy {
	return []Strategy{
		{
			Variant: "primary", Limit: 30, Timeout: defaultTimeout,
			Description: "configured endpoint", Tier: TierPrimary,
		},
		{
			Variant: "biglimit", Limit: 50, Timeout: defaultTimeout,
			Description: "raised limit", Tier: TierLenient,
		},
		{
			Variant: "noquery", Limit: 30, Timeout: 30 * time.Second,
			Description: "query stripped", Tier: TierLenient,
		},
	}
}
