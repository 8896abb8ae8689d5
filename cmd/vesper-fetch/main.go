// vesper-fetch gathers daily and intraday bar history into the Parquet store
// via the configured market-data provider.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"vesper/internal/config"
	"vesper/internal/fetch"
	"vesper/internal/provider"
	"vesper/internal/store"
	"vesper/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfgPath := "config/vesper.yaml"
	if p := os.Getenv("VESPER_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	if cfg.Provider.APIKey == "" || cfg.Provider.APISecret == "" {
		log.Fatal("provider credentials missing (set APCA_API_KEY_ID / APCA_API_SECRET_KEY)")
	}

	md := provider.NewAlpaca(
		cfg.Provider.APIKey,
		cfg.Provider.APISecret,
		cfg.Provider.BaseURL,
		cfg.Provider.DataURL,
		cfg.Fetch.RateLimitPerMin,
	)
	bars := store.NewParquetStore(cfg.Storage.DataDir)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := fetch.NewFetcher(md, bars, cfg.Fetch, logger).Run(ctx); err != nil {
		logger.Error("fetch failed", "err", err)
		os.Exit(1)
	}
}
