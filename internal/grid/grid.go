// Package grid runs the parameter search: the cartesian product of
// granularities, lookbacks, threshold policies, and trailing stops, each
// combination evaluated end to end (scan → exit simulation → a fresh capital
// ledger) and ranked by a composite score. Combinations are independent, so
// they run on a worker pool with no shared mutable state.
package grid

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"vesper/internal/config"
	"vesper/internal/domain"
	"vesper/internal/exits"
	"vesper/internal/ledger"
	"vesper/internal/pool"
	"vesper/internal/scan"
	"vesper/internal/series"
)

// Combo is one point of the parameter grid.
type Combo struct {
	Granularity domain.Granularity
	Lookback    string
	Policy      scan.Policy
	TrailingPct float64
}

// Label renders the combination as a stable result key.
func (c Combo) Label() string {
	return fmt.Sprintf("%s|%s|%s|%g%%", c.Granularity, c.Policy.Label(), c.Lookback, c.TrailingPct*100)
}

// Result is one combination's full outcome.
type Result struct {
	Combo Combo
	Label string

	SignalCount   int
	SignalWinRate float64 // percent of signals whose simulated exit gained
	MeanGrossPct  float64

	Summary ledger.Summary
	Trades  []domain.Trade

	Score  float64
	Ranked bool
}

// Driver owns one grid search over a prepared pool and series store.
type Driver struct {
	Pool     *pool.Pool
	Series   *series.Store
	Grid     config.GridConfig
	Backtest config.BacktestConfig
	Ledger   config.LedgerConfig
	Log      *slog.Logger
}

// Run evaluates every combination and returns results sorted best first
// (score descending, label ascending for ties). The output is fully
// deterministic for identical inputs.
func (d *Driver) Run(ctx context.Context) []Result {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	combos := d.expand()
	results := make([]Result, len(combos))

	workers := d.Grid.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(combos) {
		workers = len(combos)
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				results[i] = d.evaluate(combos[i])
			}
		}()
	}

	for i := range combos {
		select {
		case <-ctx.Done():
			// Abandon unstarted combinations wholesale; finished ones
			// keep their results.
		case indices <- i:
			continue
		}
		break
	}
	close(indices)
	wg.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Label < results[j].Label
	})

	ranked := 0
	for _, r := range results {
		if r.Ranked {
			ranked++
		}
	}
	log.Info("grid search finished", "combinations", len(results), "ranked", ranked)
	return results
}

// expand builds the cartesian parameter grid in a fixed order.
func (d *Driver) expand() []Combo {
	var policies []scan.Policy
	if d.Grid.IncludeMaxBreak {
		policies = append(policies, scan.Policy{Kind: scan.MaxBreak})
	}
	for _, m := range d.Grid.MedianMultipliers {
		policies = append(policies, scan.Policy{Kind: scan.MultipleOfMedian, Multiplier: m})
	}

	var combos []Combo
	for _, g := range d.Grid.Granularities {
		for _, lb := range d.Grid.Lookbacks {
			for _, p := range policies {
				for _, tp := range d.Grid.TrailingStops {
					combos = append(combos, Combo{
						Granularity: domain.Granularity(g),
						Lookback:    lb,
						Policy:      p,
						TrailingPct: tp,
					})
				}
			}
		}
	}
	return combos
}

// evaluate runs one combination: scan every pooled instrument, simulate
// exits, and feed the time-ordered candidates through a fresh ledger.
func (d *Driver) evaluate(c Combo) Result {
	res := Result{Combo: c, Label: c.Label()}

	sim := &exits.Simulator{
		Series:      d.Series,
		Policy:      d.exitPolicy(c),
		Granularity: c.Granularity,
	}
	params := scan.Params{
		Granularity:  c.Granularity,
		Lookback:     c.Lookback,
		Policy:       c.Policy,
		CooldownDays: d.Backtest.CooldownDays,
		MinDayBars:   d.Backtest.MinDayBars,
		StartDate:    d.Backtest.StartDate,
		EndDate:      d.Backtest.EndDate,
	}

	var candidates []domain.Trade
	var grossSum float64
	grossWins := 0

	symbols := d.Pool.Symbols()
	if d.Backtest.MaxInstruments > 0 && len(symbols) > d.Backtest.MaxInstruments {
		symbols = symbols[:d.Backtest.MaxInstruments]
	}
	for _, sym := range symbols {
		idx, ok := d.Series.Index(sym, c.Granularity)
		if !ok {
			continue
		}
		eligible := func(date string) bool { return d.Pool.Contains(sym, date) }
		for _, sig := range scan.Scan(sym, idx, eligible, params) {
			res.SignalCount++
			trade, ok := sim.Simulate(sig)
			if !ok {
				continue // entry too close to the data's end
			}
			candidates = append(candidates, trade)
			grossSum += trade.GrossReturnPct
			if trade.GrossReturnPct > 0 {
				grossWins++
			}
		}
	}

	if len(candidates) > 0 {
		res.SignalWinRate = float64(grossWins) / float64(len(candidates)) * 100
		res.MeanGrossPct = grossSum / float64(len(candidates))
	}

	sortCandidates(candidates)
	res.Trades, res.Summary = ledger.Run(candidates, d.Ledger)

	if res.Summary.TradeCount >= d.Grid.MinTrades && res.SignalCount > 0 {
		res.Ranked = true
		res.Score = score(res, d.Ledger.InitialCapital)
	}
	return res
}

// exitPolicy materializes the configured exit policy with the combination's
// trailing percentage.
func (d *Driver) exitPolicy(c Combo) exits.Policy {
	switch d.Grid.ExitPolicy {
	case "next_bar":
		return exits.Policy{Kind: exits.NextBar}
	case "multi_day":
		return exits.Policy{
			Kind:                exits.MultiDay,
			MaxHoldDays:         d.Grid.MultiDay.MaxHoldDays,
			InitialStopPct:      d.Grid.MultiDay.InitialStopPct,
			BreakevenTriggerPct: d.Grid.MultiDay.BreakevenTriggerPct,
			TrailingProfitPct:   c.TrailingPct,
		}
	default:
		return exits.Policy{
			Kind:        exits.IntradayTrailing,
			TrailingPct: c.TrailingPct,
			FloorPct:    d.Grid.FloorStop,
		}
	}
}

// sortCandidates orders candidates for the ledger: entry date, then trigger
// time, then symbol as the final tie-break so the stream is total-ordered.
func sortCandidates(cands []domain.Trade) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].EntryDate != cands[j].EntryDate {
			return cands[i].EntryDate < cands[j].EntryDate
		}
		if !cands[i].EntryTime.Equal(cands[j].EntryTime) {
			return cands[i].EntryTime.Before(cands[j].EntryTime)
		}
		return cands[i].Symbol < cands[j].Symbol
	})
}

// score blends capital growth, signal quality, drawdown, and sample size.
// The return term is clipped to ±50 so one outlier run cannot dominate.
func score(r Result, initialCapital float64) float64 {
	returnPct := 0.0
	if initialCapital > 0 {
		returnPct = (r.Summary.FinalCapital - initialCapital) / initialCapital * 100
	}
	returnPct = math.Max(-50, math.Min(50, returnPct))

	sampleTerm := math.Min(float64(r.SignalCount)/50, 1) * 100

	return returnPct*0.4 +
		r.SignalWinRate*0.2 +
		(100-math.Abs(r.Summary.MaxDrawdownPct))*0.2 +
		sampleTerm*0.2
}
