// vesper-pool builds the eligibility pool from stored daily bars and prints
// it for inspection: one line per instrument with its eligible-day span.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"vesper/internal/config"
	"vesper/internal/domain"
	"vesper/internal/pool"
	"vesper/internal/provider"
	"vesper/internal/series"
	"vesper/internal/store"
	"vesper/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", defaultConfigPath(), "path to the YAML config")
	verbose := flag.Bool("v", false, "print every eligible instrument-day")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	ctx := context.Background()
	p, err := buildPool(ctx, cfg, logger)
	if err != nil {
		logger.Error("pool build failed", "err", err)
		os.Exit(1)
	}

	fmt.Printf("eligible instruments: %d, instrument-days: %d\n\n", len(p.Symbols()), p.Size())
	for _, sym := range p.Symbols() {
		days := p.EligibleDates(sym)
		fmt.Printf("%-8s %4d days  %s .. %s\n", sym, len(days), days[0], days[len(days)-1])
		if *verbose {
			for _, d := range days {
				fmt.Printf("  %s\n", d)
			}
		}
	}
}

func buildPool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pool.Pool, error) {
	bars := store.NewParquetStore(cfg.Storage.DataDir)
	symbols, err := bars.ListSymbols(ctx, domain.GranularityDaily)
	if err != nil {
		return nil, fmt.Errorf("listing symbols: %w", err)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no daily bars under %s; run vesper-fetch first", cfg.Storage.DataDir)
	}

	start, err := time.Parse(domain.DateFormat, cfg.Backtest.StartDate)
	if err != nil {
		return nil, fmt.Errorf("parsing backtest start: %w", err)
	}
	end, err := time.Parse(domain.DateFormat, cfg.Backtest.EndDate)
	if err != nil {
		return nil, fmt.Errorf("parsing backtest end: %w", err)
	}

	ss := series.NewStore(bars)
	if err := ss.Preload(ctx, symbols, []domain.Granularity{domain.GranularityDaily}, start.AddDate(-3, 0, 0), end); err != nil {
		return nil, err
	}

	instruments := make(map[string]pool.Instrument, len(symbols))
	if cfg.Storage.FundamentalsPath != "" {
		instruments, err = provider.NewFileFundamentals(cfg.Storage.FundamentalsPath).Instruments(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		for _, sym := range symbols {
			instruments[sym] = pool.Instrument{Symbol: sym, MarketCap: cfg.Pool.MinMarketCap}
		}
	}

	daily := make(map[string][]domain.Bar, len(symbols))
	for _, sym := range symbols {
		if idx, ok := ss.Index(sym, domain.GranularityDaily); ok {
			daily[sym] = idx.Bars()
		}
	}
	return pool.NewBuilder(cfg.Pool, logger).Build(daily, instruments, cfg.Backtest.StartDate, cfg.Backtest.EndDate), nil
}

func defaultConfigPath() string {
	if p := os.Getenv("VESPER_CONFIG"); p != "" {
		return p
	}
	return "config/vesper.yaml"
}
