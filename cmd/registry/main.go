// Command registry cross-references centers against the public
// training-organization registry and fills in their SIREN/SIRET
// identifiers and declared activity counts.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"formascrape/config"
	"formascrape/internal/registry"
	"formascrape/internal/store"
	"formascrape/logger"
)

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := registry.NewClient(cfg.RegistryBaseURL, cfg.RegistryRows, cfg.RegistryRetries, cfg.NavTimeout)
	syncer := registry.NewSyncer(&cfg, st, client)

	stats, err := syncer.Run(ctx)
	log.Info().
		Int("scanned", stats.Scanned).
		Int("matched", stats.Matched).
		Int("unmatched", stats.Unmatched).
		Int("failed", stats.Failed).
		Msg("Registry pass finished")
	if err != nil {
		log.Error().Err(err).Msg("Registry pass aborted")
		os.Exit(1)
	}
}
