// vesper-backtest loads bar data, builds the eligibility pool, runs the
// parameter grid search, prints the report, and persists results to SQLite.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"vesper/internal/config"
	"vesper/internal/domain"
	"vesper/internal/grid"
	"vesper/internal/pool"
	"vesper/internal/provider"
	"vesper/internal/report"
	"vesper/internal/series"
	"vesper/internal/store"
	"vesper/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", defaultConfigPath(), "path to the YAML config")
	runID := flag.String("run-id", "run-"+time.Now().UTC().Format("20060102-150405"), "identifier for persisted results")
	top := flag.Int("top", 20, "ranked combinations to print")
	showTrades := flag.Bool("trades", false, "print the best combination's trade log")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, *runID, *top, *showTrades); err != nil {
		logger.Error("backtest failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, runID string, top int, showTrades bool) error {
	bars := store.NewParquetStore(cfg.Storage.DataDir)

	symbols, err := bars.ListSymbols(ctx, domain.GranularityDaily)
	if err != nil {
		return fmt.Errorf("listing symbols: %w", err)
	}
	if len(symbols) == 0 {
		return fmt.Errorf("no daily bars under %s; run vesper-fetch first", cfg.Storage.DataDir)
	}

	granularities := []domain.Granularity{domain.GranularityDaily}
	for _, g := range cfg.Grid.Granularities {
		if gr := domain.Granularity(g); gr != domain.GranularityDaily {
			granularities = append(granularities, gr)
		}
	}

	// History before the backtest start feeds the trailing high and the
	// lookback windows.
	start, err := time.Parse(domain.DateFormat, cfg.Backtest.StartDate)
	if err != nil {
		return fmt.Errorf("parsing backtest start: %w", err)
	}
	end, err := time.Parse(domain.DateFormat, cfg.Backtest.EndDate)
	if err != nil {
		return fmt.Errorf("parsing backtest end: %w", err)
	}
	loadStart := start.AddDate(-3, 0, 0)

	ss := series.NewStore(bars)
	if err := ss.Preload(ctx, symbols, granularities, loadStart, end.AddDate(0, 0, 7)); err != nil {
		return err
	}

	instruments, err := loadInstruments(ctx, cfg, symbols, logger)
	if err != nil {
		return err
	}

	var allDays []string
	dailyBySymbol := make(map[string][]domain.Bar, len(symbols))
	for _, sym := range symbols {
		if idx, ok := ss.Index(sym, domain.GranularityDaily); ok {
			dailyBySymbol[sym] = idx.Bars()
			allDays = append(allDays, idx.Days()...)
		}
	}
	cal := util.NewCalendar(allDays)
	logger.Info("bar data loaded",
		"instruments", len(dailyBySymbol),
		"trading_days", cal.DaysBetween(cfg.Backtest.StartDate, cfg.Backtest.EndDate),
	)
	p := pool.NewBuilder(cfg.Pool, logger).Build(dailyBySymbol, instruments, cfg.Backtest.StartDate, cfg.Backtest.EndDate)
	if p.Size() == 0 {
		return fmt.Errorf("eligibility pool is empty for %s..%s", cfg.Backtest.StartDate, cfg.Backtest.EndDate)
	}

	driver := &grid.Driver{
		Pool:     p,
		Series:   ss,
		Grid:     cfg.Grid,
		Backtest: cfg.Backtest,
		Ledger:   cfg.Ledger,
		Log:      logger,
	}
	results := driver.Run(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}

	fmt.Print(report.Summary(results, top))
	if showTrades {
		for _, r := range results {
			if r.Ranked {
				fmt.Println()
				fmt.Print(report.TradeLog(r))
				break
			}
		}
	}

	if cfg.Storage.SQLitePath != "" {
		if err := persist(ctx, cfg.Storage.SQLitePath, runID, results); err != nil {
			return fmt.Errorf("persisting results: %w", err)
		}
		logger.Info("results persisted", "run_id", runID, "path", cfg.Storage.SQLitePath)
	}
	return nil
}

// loadInstruments reads the fundamentals snapshot, or synthesizes a
// pass-through snapshot when none is configured (every symbol at the cap
// prefilter minimum, no exclusions).
func loadInstruments(ctx context.Context, cfg *config.Config, symbols []string, logger *slog.Logger) (map[string]pool.Instrument, error) {
	if cfg.Storage.FundamentalsPath != "" {
		return provider.NewFileFundamentals(cfg.Storage.FundamentalsPath).Instruments(ctx)
	}

	logger.Warn("no fundamentals snapshot configured; cap tiers fall back to the default ratio")
	out := make(map[string]pool.Instrument, len(symbols))
	for _, sym := range symbols {
		out[sym] = pool.Instrument{Symbol: sym, MarketCap: cfg.Pool.MinMarketCap}
	}
	return out, nil
}

func persist(ctx context.Context, path, runID string, results []grid.Result) error {
	db, err := store.NewSQLiteStore(path)
	if err != nil {
		return err
	}
	defer db.Close()

	rows := make([]store.GridResultRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, store.GridResultRow{
			RunID:          runID,
			Label:          r.Label,
			Granularity:    string(r.Combo.Granularity),
			Lookback:       r.Combo.Lookback,
			Policy:         string(r.Combo.Policy.Kind),
			Multiplier:     r.Combo.Policy.Multiplier,
			TrailingPct:    r.Combo.TrailingPct,
			SignalCount:    r.SignalCount,
			SignalWinRate:  r.SignalWinRate,
			TradeCount:     r.Summary.TradeCount,
			WinRate:        r.Summary.WinRate,
			Expectancy:     r.Summary.Expectancy,
			ProfitFactor:   r.Summary.ProfitFactor,
			FinalCapital:   r.Summary.FinalCapital,
			MaxDrawdownPct: r.Summary.MaxDrawdownPct,
			Score:          r.Score,
			Ranked:         r.Ranked,
			Halted:         r.Summary.Halted,
			HaltReason:     r.Summary.HaltReason,
		})
	}
	if err := db.SaveResults(ctx, rows); err != nil {
		return err
	}

	// The full trade log is persisted for the best combination only.
	for _, r := range results {
		if !r.Ranked {
			continue
		}
		trades := make([]store.TradeRow, 0, len(r.Trades))
		for _, t := range r.Trades {
			trades = append(trades, store.TradeRow{
				RunID:        runID,
				Label:        r.Label,
				Symbol:       t.Symbol,
				EntryDate:    t.EntryDate,
				EntryPrice:   t.EntryPrice,
				ExitDate:     t.ExitDate,
				ExitPrice:    t.ExitPrice,
				ExitReason:   string(t.ExitReason),
				Shares:       t.Shares,
				NetReturnPct: t.NetReturnPct,
				Commission:   t.Commission,
				PnL:          t.PnL,
				CashAfter:    t.CashAfter,
				EquityAfter:  t.EquityAfter,
			})
		}
		return db.SaveTrades(ctx, trades)
	}
	return nil
}

func defaultConfigPath() string {
	if p := os.Getenv("VESPER_CONFIG"); p != "" {
		return p
	}
	return "config/vesper.yaml"
}
