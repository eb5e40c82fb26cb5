// Command export renders the store into xlsx workbooks, optionally
// filtered by creation date, completeness, or training title.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"formascrape/config"
	"formascrape/internal/export"
	"formascrape/internal/store"
	"formascrape/logger"
)

func main() {
	godotenv.Load()
	logger.Init()
	log := logger.Get()

	var (
		centersOnly  bool
		centresOnly  bool
		createdAfter string
		clean        bool
		cleanList    bool
		title        string
	)
	flag.BoolVar(&centersOnly, "centers-only", false, "skip the trainings sheet")
	flag.BoolVar(&centresOnly, "centres-only", false, "alias of --centers-only")
	flag.StringVar(&createdAfter, "created-after", "", "only rows created at or after this RFC 3339 instant")
	flag.BoolVar(&clean, "clean", false, "only centers with SIREN, SIRET, city, email and phone or website")
	flag.BoolVar(&cleanList, "clean-list", false, "alias of --clean")
	flag.StringVar(&title, "title", "", "case and accent insensitive substring filter on training titles")
	flag.Parse()

	opts := export.Options{
		CentersOnly: centersOnly || centresOnly,
		CleanOnly:   clean || cleanList,
	}

	if createdAfter != "" {
		ts, err := time.Parse(time.RFC3339, createdAfter)
		if err != nil {
			log.Error().Str("value", createdAfter).Msg("Invalid --created-after date, expected RFC 3339")
			os.Exit(1)
		}
		opts.CreatedAfter = &ts
	}

	if isFlagSet("title") {
		if title == "" {
			log.Error().Msg("Empty --title filter")
			os.Exit(1)
		}
		opts.TitleFilter = title
	}

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths, err := export.New(&cfg, st).Run(ctx, opts)
	if err != nil {
		log.Error().Err(err).Msg("Export failed")
		os.Exit(1)
	}
	for _, p := range paths {
		log.Info().Str("path", p).Msg("Export written")
	}
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
