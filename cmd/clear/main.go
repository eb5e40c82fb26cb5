// Command clear wipes all scraped data from the store. Requires --yes.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"

	"formascrape/config"
	"formascrape/internal/store"
	"formascrape/logger"
)

func main() {
	godotenv.Load()
	logger.Init()
	log := logger.Get()

	yes := flag.Bool("yes", false, "confirm deletion of all scraped data")
	flag.Parse()

	if !*yes {
		log.Error().Msg("Refusing to wipe the store without --yes")
		os.Exit(1)
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

	trainings, centers, err := st.Clear(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("Clear failed")
		os.Exit(1)
	}
	log.Info().Int64("trainings", trainings).Int64("centers", centers).Msg("Store cleared")
}
