package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/njmarshall/techstream/internal/config"
	"github.com/njmarshall/techstream/internal/fetch"
	"github.com/njmarshall/techstream/internal/logging"
	"github.com/njmarshall/techstream/internal/pipeline"
	"github.com/njmarshall/techstream/internal/refresh"
	"github.com/njmarshall/techstream/internal/source"
	"github.com/njmarshall/techstream/internal/store"
	"github.com/njmarshall/techstream/internal/summarize"
)

// retentionDays bounds database growth; older items are pruned after
// each refresh cycle.
const retentionDays = 90

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.techstream/config.yaml)")
	once := flag.Bool("once", false, "run a single refresh cycle and exit")
	flag.Parse()

	// Credentials live in .env or the environment, never in the config file.
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if *once {
		logging.InitStderr()
	} else if err := logging.Init(cfg.DataDir); err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logging.Fatal("failed to open database", "path", cfg.DBPath, "error", err)
	}
	defer st.Close()

	registry := source.NewRegistry(cfg.Sources, st)
	logging.Info("sources loaded", "count", registry.Count())

	orch := buildOrchestrator(cfg, registry, st)
	worker := buildSummarizer(cfg, st)

	runCycle := func() {
		res := orch.Refresh(ctx)
		for _, e := range res.Errors {
			logging.Warn("source error", "detail", e)
		}
		if worker != nil && ctx.Err() == nil {
			if _, err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				logging.Warn("summarize worker failed", "error", err)
			}
		}
		if pruned, err := st.PruneOlderThan(time.Now().AddDate(0, 0, -retentionDays)); err != nil {
			logging.Warn("prune failed", "error", err)
		} else if pruned > 0 {
			logging.Info("pruned old items", "count", pruned)
		}
	}

	if *once {
		runCycle()
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Refresh.Cron, runCycle); err != nil {
		logging.Fatal("invalid cron schedule", "schedule", cfg.Refresh.Cron, "error", err)
	}
	c.Start()
	logging.Info("daemon started", "schedule", cfg.Refresh.Cron)

	// Kick off an immediate cycle so a fresh daemon is not empty until
	// the first scheduled tick.
	runCycle()

	<-ctx.Done()
	logging.Info("shutting down")
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(10 * time.Second):
		logging.Warn("shutdown timed out waiting for running jobs")
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		path = cfg.DataDir + "/config.yaml"
	}
	return config.Load(path)
}

func buildOrchestrator(cfg *config.Config, registry *source.Registry, st *store.Store) *refresh.Orchestrator {
	tokens := fetch.NewRedditTokenSource(cfg.Reddit.ClientID, cfg.Reddit.ClientSecret, cfg.Reddit.UserAgent)

	dedupWindow := time.Duration(cfg.Refresh.DedupWindowHrs) * time.Hour
	chain := pipeline.NewChain(pipeline.NewDeduper(st, dedupWindow))

	executor := fetch.NewExecutor(chain,
		time.Duration(cfg.Refresh.StrategyDelayMS)*time.Millisecond,
		fetch.NewRedditFetcher(tokens, cfg.Reddit.UserAgent),
		fetch.NewRSSFetcher(),
		fetch.NewAPIFetcher(),
	)

	return refresh.New(registry, executor, st, refresh.Options{
		MaxTotalItems: cfg.Refresh.MaxTotalItems,
		Budget:        time.Duration(cfg.Refresh.BudgetSeconds) * time.Second,
		GroupByType:   cfg.Refresh.GroupByType,
	})
}

func buildSummarizer(cfg *config.Config, st *store.Store) *summarize.Worker {
	if !cfg.Summarize.Enabled {
		return nil
	}
	manager := summarize.NewManager(
		summarize.NewOllama(cfg.Summarize.Endpoint, cfg.Summarize.Model),
		summarize.NewHeuristic(),
	)
	return summarize.NewWorker(manager, st, cfg.Summarize.Batch)
}
