// Package fetch gathers bar history from a market-data provider into the bar
// store: symbols are split into batches, batches are fed to a worker pool,
// and a failed batch is logged and skipped rather than aborting the run.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"vesper/internal/config"
	"vesper/internal/domain"
	"vesper/internal/provider"
	"vesper/internal/store"
	"vesper/internal/util"
)

// Fetcher runs one gathering job over the configured symbols, date range,
// and granularities.
type Fetcher struct {
	md    provider.MarketData
	store store.BarStore
	cfg   config.FetchConfig
	log   *slog.Logger
}

// NewFetcher creates a Fetcher writing through to the given store.
func NewFetcher(md provider.MarketData, s store.BarStore, cfg config.FetchConfig, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{md: md, store: s, cfg: cfg, log: log.With("job", "fetch")}
}

// Run fetches every configured granularity for every symbol batch. It
// returns an error only for contract-level problems (bad dates, unknown
// granularity); individual batch failures are logged and counted.
func (f *Fetcher) Run(ctx context.Context) error {
	start, err := time.Parse(domain.DateFormat, f.cfg.StartDate)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", f.cfg.StartDate, err)
	}
	end, err := time.Parse(domain.DateFormat, f.cfg.EndDate)
	if err != nil {
		return fmt.Errorf("parsing end date %q: %w", f.cfg.EndDate, err)
	}
	start, end = f.clampToCalendar(ctx, start, end)

	for _, label := range f.cfg.Granularities {
		g := domain.Granularity(label)
		if !g.Valid() {
			return fmt.Errorf("unknown granularity %q", label)
		}
		if err := f.fetchGranularity(ctx, g, start, end); err != nil {
			return err
		}
	}
	return nil
}

// clampToCalendar narrows [start, end] to the provider's actual trading days
// so batches never span pure weekend or holiday ranges. An unavailable or
// empty calendar leaves the range as configured.
func (f *Fetcher) clampToCalendar(ctx context.Context, start, end time.Time) (time.Time, time.Time) {
	days, err := f.md.TradingCalendar(ctx, start, end)
	if err != nil {
		f.log.Warn("trading calendar unavailable", "err", err)
		return start, end
	}
	cal := util.NewCalendar(days)
	if cal.Len() == 0 {
		return start, end
	}

	if first, err := time.Parse(domain.DateFormat, cal.Days()[0]); err == nil && first.After(start) {
		start = first
	}
	if last, err := time.Parse(domain.DateFormat, cal.Days()[cal.Len()-1]); err == nil && last.Before(end) {
		end = last
	}
	f.log.Info("trading calendar loaded",
		"trading_days", cal.Len(),
		"start", start.Format(domain.DateFormat),
		"end", end.Format(domain.DateFormat),
	)
	return start, end
}

func (f *Fetcher) fetchGranularity(ctx context.Context, g domain.Granularity, start, end time.Time) error {
	batches := batchSymbols(f.cfg.Symbols, f.cfg.BatchSize)
	f.log.Info("starting fetch",
		"granularity", g,
		"symbols", len(f.cfg.Symbols),
		"batches", len(batches),
		"start", start.Format(domain.DateFormat),
		"end", end.Format(domain.DateFormat),
	)

	batchCh := make(chan int, len(batches))
	for i := range batches {
		batchCh <- i
	}
	close(batchCh)

	var (
		wg        sync.WaitGroup
		barsTotal atomic.Int64
		failed    atomic.Int64
	)

	workers := f.cfg.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(batches) {
		workers = len(batches)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range batchCh {
				if ctx.Err() != nil {
					return
				}
				n, err := f.fetchBatch(ctx, batches[i], g, start, end)
				if err != nil {
					f.log.Error("batch fetch failed",
						"granularity", g,
						"batch", fmt.Sprintf("%d/%d", i+1, len(batches)),
						"err", err,
					)
					failed.Add(1)
					continue
				}
				barsTotal.Add(int64(n))
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	f.log.Info("fetch finished",
		"granularity", g,
		"bars", barsTotal.Load(),
		"failed_batches", failed.Load(),
	)
	return nil
}

// fetchBatch fetches and stores one symbol batch, returning the bar count.
// Symbols the provider returns nothing for are normal — partial history and
// delisted names are expected.
func (f *Fetcher) fetchBatch(ctx context.Context, symbols []string, g domain.Granularity, start, end time.Time) (int, error) {
	var bars []domain.Bar
	var err error
	if g == domain.GranularityDaily {
		bars, err = f.md.DailyBars(ctx, symbols, start, end)
	} else {
		bars, err = f.md.IntradayBars(ctx, symbols, g, start, end)
	}
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}
	if err := f.store.WriteBars(ctx, bars, g); err != nil {
		return 0, fmt.Errorf("writing bars: %w", err)
	}
	return len(bars), nil
}

func batchSymbols(symbols []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var batches [][]string
	for i := 0; i < len(symbols); i += size {
		end := i + size
		if end > len(symbols) {
			end = len(symbols)
		}
		batches = append(batches, symbols[i:end])
	}
	return batches
}
