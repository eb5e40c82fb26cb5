// Command scrape runs the list extraction pipeline for the configured
// search queries and persists the harvested listings.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"formascrape/config"
	"formascrape/internal/browser"
	"formascrape/internal/crawler"
	"formascrape/internal/store"
	"formascrape/logger"
	"formascrape/services/cache"
	"formascrape/services/publisher"
)

const blockKey = "formascrape:blocked"

// queryList collects repeatable --query flags.
type queryList []string

func (q *queryList) String() string { return strings.Join(*q, ",") }

func (q *queryList) Set(v string) error {
	*q = append(*q, v)
	return nil
}

func main() {
	godotenv.Load()
	logger.Init()
	log := logger.Get()

	var requested queryList
	flag.Var(&requested, "query", "query name, repeatable and comma separated (default: all)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [--query <name>...]\n\nAvailable queries:\n", os.Args[0])
		for _, q := range config.DefaultQueries() {
			fmt.Fprintf(os.Stderr, "  %-24s %s\n", q.Name, q.Keywords)
		}
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	queries, unknown := config.ResolveQueries(config.DefaultQueries(), requested)
	for _, name := range unknown {
		log.Warn().Str("query", name).Msg("Unknown query name ignored")
	}
	if len(queries) == 0 {
		log.Error().Msg("No queries resolved, nothing to do")
		os.Exit(1)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()
	if err := st.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate schema")
	}

	var blockCache cache.CacheService
	if cfg.MemcacheAddr != "" {
		blockCache = cache.NewMemcacheService(cfg.MemcacheAddr)
	} else {
		blockCache = cache.NewMemoryService()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pub publisher.Publisher
	if cfg.RedisAddr != "" {
		rp := publisher.NewRedisPublisher(ctx, cfg.RedisAddr, cfg.RedisDB,
			cfg.RedisStream, cfg.RedisStreamCount, cfg.RedisStreamMaxLength)
		defer rp.Close()
		pub = rp
	}

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

	extractor := crawler.New(cfg, st, pub)
	if err := extractor.Run(ctx, queries, session); err != nil {
		log.Error().Err(err).Msg("Extraction aborted")
		os.Exit(1)
	}
}
