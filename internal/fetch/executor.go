package fetch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/njmarshall/techstream/internal/logging"
	"github.com/njmarshall/techstream/internal/model"
)

// goodEnoughFraction stops the strategy walk early: once a single strategy
// yields this share of the target, further strategies are wasted requests.
const goodEnoughFraction = 0.6

// desperationFraction gates the desperate strategies: they only run when
// the whole regular list produced less than this share of the target.
const desperationFraction = 0.3

// Fetcher retrieves one page of raw candidates for a strategy.
type Fetcher interface {
	Type() model.SourceType
	Fetch(ctx context.Context, src model.Source, strat Strategy) ([]model.Candidate, error)
}

// Disposition is the pipeline's verdict on a single candidate.
type Disposition int

const (
	Accepted Disposition = iota
	Filtered
	Duplicate
)

// Sink consumes candidates: normalize, filter with the strategy's leniency
// tier, and deduplicate. Implemented by the pipeline package.
type Sink interface {
	Process(ctx context.Context, cand model.Candidate, src model.Source, strat Strategy) (model.ContentItem, Disposition, error)
}

// StrategyYield records what one strategy produced, for statistics.
type StrategyYield struct {
	Description string
	Fetched     int
	Accepted    int
	Filtered    int
	Duplicates  int
	Err         string
}

// Result is the outcome of running the strategy list for one source.
type Result struct {
	Items      []model.ContentItem
	Yields     []StrategyYield
	Duplicates int
	Filtered   int
}

// Executor walks a source's ordered strategy list until the target item
// count is reached, the list is exhausted, or a single strategy yields
// enough to call it a day. A failing strategy is logged as zero yield and
// the walk continues: one bad query never aborts the source.
type Executor struct {
	fetchers map[model.SourceType]Fetcher
	sink     Sink
	limiter  *rate.Limiter
}

// NewExecutor creates an Executor. delay is the politeness pause between
// strategies, a courtesy to rate-limited remotes.
func NewExecutor(sink Sink, delay time.Duration, fetchers ...Fetcher) *Executor {
	if delay <= 0 {
		delay = 750 * time.Millisecond
	}
	m := make(map[model.SourceType]Fetcher, len(fetchers))
	for _, f := range fetchers {
		m[f.Type()] = f
	}
	return &Executor{
		fetchers: m,
		sink:     sink,
		limiter:  rate.NewLimiter(rate.Every(delay), 1),
	}
}

// Limiter exposes the politeness limiter so callers can share the same
// pacing between sources.
func (e *Executor) Limiter() *rate.Limiter {
	return e.limiter
}

// Run produces up to target accepted items for the source.
func (e *Executor) Run(ctx context.Context, src model.Source, target int) (Result, error) {
	var res Result

	fetcher, ok := e.fetchers[src.Type]
	if !ok {
		return res, fmt.Errorf("no fetcher for source type %q", src.Type)
	}
	if target <= 0 {
		return res, nil
	}

	strategies := StrategiesFor(src)
	goodEnough := atLeastOne(goodEnoughFraction * float64(target))

	for i, strat := range strategies {
		if strat.Desperate {
			continue
		}
		if len(res.Items) >= target {
			break
		}
		if i > 0 {
			if err := e.limiter.Wait(ctx); err != nil {
				break
			}
		}

		yield := e.runStrategy(ctx, fetcher, src, strat, target-len(res.Items), &res)
		if yield.Accepted >= goodEnough {
			logging.Debug("strategy yield good enough, stopping early",
				"source", src.ID, "strategy", strat.Description, "accepted", yield.Accepted)
			break
		}
	}

	// Desperate strategies only run when the regular list came up nearly empty.
	desperation := atLeastOne(desperationFraction * float64(target))
	if len(res.Items) < desperation {
		for _, strat := range strategies {
			if !strat.Desperate || len(res.Items) >= target {
				continue
			}
			if err := e.limiter.Wait(ctx); err != nil {
				break
			}
			e.runStrategy(ctx, fetcher, src, strat, target-len(res.Items), &res)
		}
	}

	return res, nil
}

// runStrategy fetches one strategy's batch and feeds it through the sink,
// stopping once remaining accepted items are reached.
func (e *Executor) runStrategy(ctx context.Context, fetcher Fetcher, src model.Source, strat Strategy, remaining int, res *Result) StrategyYield {
	yield := StrategyYield{Description: strat.Description}

	candidates, err := fetcher.Fetch(ctx, src, strat)
	if err != nil {
		// Soft failure: zero yield, next strategy may still succeed.
		yield.Err = err.Error()
		logging.Warn("strategy fetch failed", "source", src.ID, "strategy", strat.Description, "error", err)
		res.Yields = append(res.Yields, yield)
		return yield
	}
	yield.Fetched = len(candidates)

	for _, cand := range candidates {
		if yield.Accepted >= remaining {
			break
		}
		item, disp, err := e.sink.Process(ctx, cand, src, strat)
		if err != nil {
			logging.Warn("candidate processing failed", "source", src.ID, "url", cand.URL, "error", err)
			continue
		}
		switch disp {
		case Accepted:
			res.Items = append(res.Items, item)
			yield.Accepted++
		case Duplicate:
			res.Duplicates++
			yield.Duplicates++
		case Filtered:
			res.Filtered++
			yield.Filtered++
		}
	}

	logging.Debug("strategy complete", "source", src.ID, "strategy", strat.Description,
		"fetched", yield.Fetched, "accepted", yield.Accepted, "duplicates", yield.Duplicates)
	res.Yields = append(res.Yields, yield)
	return yield
}

func atLeastOne(f float64) int {
	n := int(f)
	if float64(n) < f {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}
