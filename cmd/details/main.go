// Command details drains the detail-enrichment backlog: every listing
// flagged as needing a detail visit is fetched, parsed, and folded back
// into its training and center rows.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"formascrape/config"
	"formascrape/internal/browser"
	"formascrape/internal/enrich"
	"formascrape/internal/store"
	"formascrape/logger"
	"formascrape/services/cache"
)

const blockKey = "formascrape:blocked"

func main() {
	godotenv.Load()
	logger.Init()
	log := logger.Get()
	flag.Parse()

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()
	if err := st.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate schema")
	}

	pending, err := st.PendingDetailCount(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to count backlog")
	}
	if pending == 0 {
		log.Info().Msg("Detail backlog is empty")
		return
	}
	log.Info().Int("pending", pending).Int("workers", cfg.DetailWorkers).Msg("Draining detail backlog")

	var blockCache cache.CacheService
	if cfg.MemcacheAddr != "" {
		blockCache = cache.NewMemcacheService(cfg.MemcacheAddr)
	} else {
		blockCache = cache.NewMemoryService()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workers := cfg.DetailWorkers
	if workers < 1 {
		workers = 1
	}

	// Each worker drives its own fetcher; the claim-by-timestamp scheme in
	// the backlog keeps them off each other's rows.
	var wg sync.WaitGroup
	failures := make(chan error, workers)
	for i := 0; i < workers; i++ {
		var fetcher enrich.Fetcher
		if cfg.DetailStatic {
			fetcher = enrich.NewStaticFetcher()
		} else {
			session, err := browser.NewSession(browser.Options{
				Headless:   cfg.Headless,
				SlowMo:     cfg.SlowMo,
				NavTimeout: cfg.NavTimeout,
				Cache:      blockCache,
				BlockKey:   blockKey,
				BlockTime:  cfg.BlockTime,
			})
			if err != nil {
				log.Fatal().Err(err).Msg("Browser launch failed")
			}
			defer session.Close()
			fetcher = session
		}

		worker := enrich.NewWorker(&cfg, st, fetcher)
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			stats, err := worker.Run(ctx)
			if err != nil && ctx.Err() == nil {
				failures <- err
			}
			log.Info().
				Int("worker", id).
				Int("visited", stats.Visited).
				Int("enriched", stats.Enriched).
				Int("skipped", stats.Skipped).
				Int("failed", stats.Failed).
				Int("fallback", stats.Fallback).
				Msg("Worker finished")
		}(i)
	}
	wg.Wait()
	close(failures)

	failed := false
	for err := range failures {
		log.Error().Err(err).Msg("Worker aborted")
		failed = true
	}
	if failed {
		os.Exit(1)
	}
}
