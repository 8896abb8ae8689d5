// Package pool builds the per-day instrument eligibility pool: the set of
// beaten-down names the scanner is allowed to look at on each trading day.
// The screen is point-in-time correct — every statistic for day d is computed
// from bars dated strictly before d.
package pool

import (
	"log/slog"
	"sort"
	"time"

	"vesper/internal/config"
	"vesper/internal/domain"
)

// Instrument carries the fundamentals the screen needs per symbol. Market cap
// is in the same unit as the configured tier floors (1e8 CNY in practice).
type Instrument struct {
	Symbol      string
	MarketCap   float64
	Industry    string
	IsST        bool
	ListingDate string // DateFormat; empty disables the listing-age check
}

// Pool maps each screened instrument to its sorted eligible trading days.
type Pool struct {
	dates   map[string][]string
	records []domain.EligibilityRecord
}

// Symbols returns the sorted instruments with at least one eligible day.
func (p *Pool) Symbols() []string {
	out := make([]string, 0, len(p.dates))
	for sym := range p.dates {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// EligibleDates returns the sorted eligible days of one instrument.
func (p *Pool) EligibleDates(symbol string) []string { return p.dates[symbol] }

// Contains reports whether symbol is eligible on date.
func (p *Pool) Contains(symbol, date string) bool {
	days := p.dates[symbol]
	i := sort.SearchStrings(days, date)
	return i < len(days) && days[i] == date
}

// Records returns one EligibilityRecord per eligible instrument-day.
func (p *Pool) Records() []domain.EligibilityRecord { return p.records }

// Size returns the total number of eligible instrument-days.
func (p *Pool) Size() int { return len(p.records) }

// FromDates builds a Pool directly from pre-computed eligible days, sorted
// per instrument. Used by tools that load a persisted pool and by tests.
func FromDates(dates map[string][]string) *Pool {
	p := &Pool{dates: make(map[string][]string, len(dates))}
	for sym, days := range dates {
		sorted := make([]string, len(days))
		copy(sorted, days)
		sort.Strings(sorted)
		p.dates[sym] = sorted
		for _, d := range sorted {
			p.records = append(p.records, domain.EligibilityRecord{Symbol: sym, Date: d, Eligible: true})
		}
	}
	return p
}

// Builder runs the eligibility screen.
type Builder struct {
	cfg config.PoolConfig
	log *slog.Logger
}

// NewBuilder creates a Builder for the given screen parameters.
func NewBuilder(cfg config.PoolConfig, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{cfg: cfg, log: log}
}

// Build screens every instrument over [startDate, endDate]. dailyBars holds
// each instrument's full daily history (chronological); info supplies the
// fundamentals. Instruments with insufficient history, below the cap
// prefilter, ST-flagged, or too recently listed are silently excluded.
func (b *Builder) Build(dailyBars map[string][]domain.Bar, info map[string]Instrument, startDate, endDate string) *Pool {
	tiers := b.sortedTiers()

	p := &Pool{dates: make(map[string][]string)}

	symbols := make([]string, 0, len(dailyBars))
	for sym := range dailyBars {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	skippedHistory, skippedFunda := 0, 0
	for _, sym := range symbols {
		bars := dailyBars[sym]
		if len(bars) < b.cfg.MinBars {
			skippedHistory++
			continue
		}
		inst, ok := info[sym]
		if !ok || !b.passesFundamentals(inst, startDate) {
			skippedFunda++
			continue
		}

		ratio := b.priceRatio(inst.MarketCap, tiers)
		days := b.screenInstrument(bars, inst, ratio, startDate, endDate, p)
		if len(days) > 0 {
			p.dates[sym] = days
		}
	}

	b.log.Info("eligibility pool built",
		"instruments", len(p.dates),
		"instrument_days", len(p.records),
		"skipped_history", skippedHistory,
		"skipped_fundamentals", skippedFunda,
	)
	return p
}

// screenInstrument walks the instrument's daily bars, maintaining the rolling
// trailing-window high and low with monotonic deques, and emits the eligible
// days in [startDate, endDate]. The screen compares each close against the
// trailing max of the high column, not of closes.
func (b *Builder) screenInstrument(bars []domain.Bar, inst Instrument, ratio float64, startDate, endDate string, p *Pool) []string {
	n := b.cfg.TrailingDays
	if len(bars) <= n {
		return nil
	}

	// maxDQ holds indexes with monotonically decreasing highs, minDQ with
	// monotonically increasing lows; the front is always the window extreme.
	var maxDQ, minDQ []int
	push := func(i int) {
		for len(maxDQ) > 0 && bars[maxDQ[len(maxDQ)-1]].High <= bars[i].High {
			maxDQ = maxDQ[:len(maxDQ)-1]
		}
		maxDQ = append(maxDQ, i)
		for len(minDQ) > 0 && bars[minDQ[len(minDQ)-1]].Low >= bars[i].Low {
			minDQ = minDQ[:len(minDQ)-1]
		}
		minDQ = append(minDQ, i)
	}
	for i := 0; i < n; i++ {
		push(i)
	}

	var days []string
	for i := n; i < len(bars); i++ {
		// Window is bars[i-n : i] — strictly before day i.
		for len(maxDQ) > 0 && maxDQ[0] < i-n {
			maxDQ = maxDQ[1:]
		}
		for len(minDQ) > 0 && minDQ[0] < i-n {
			minDQ = minDQ[1:]
		}
		hi := bars[maxDQ[0]].High
		lo := bars[minDQ[0]].Low

		d := bars[i].Date()
		if d >= startDate && d <= endDate && b.eligibleDay(bars[i].Close, hi, lo, ratio) {
			days = append(days, d)
			p.records = append(p.records, domain.EligibilityRecord{
				Symbol:        inst.Symbol,
				Date:          d,
				Eligible:      true,
				MarketCap:     inst.MarketCap,
				DrawdownRatio: bars[i].Close / hi,
				Industry:      inst.Industry,
			})
		}

		push(i)
	}
	return days
}

// eligibleDay applies the drawdown screen to one day's close given the
// trailing-window extremes.
func (b *Builder) eligibleDay(close, trailingHigh, trailingLow, ratio float64) bool {
	if trailingHigh <= 0 || close <= 0 {
		return false
	}
	if close >= trailingHigh*ratio {
		return false
	}
	// Free-fall guard: the close must sit above a floor fraction of the
	// trailing high-low range. Disabled when range_floor is 0.
	if b.cfg.RangeFloor > 0 {
		floor := trailingLow + (trailingHigh-trailingLow)*b.cfg.RangeFloor
		if close < floor {
			return false
		}
	}
	return true
}

// passesFundamentals applies the cap prefilter, the ST exclusion, and the
// minimum listing age (relative to the backtest start).
func (b *Builder) passesFundamentals(inst Instrument, startDate string) bool {
	if inst.MarketCap < b.cfg.MinMarketCap {
		return false
	}
	if b.cfg.ExcludeST && inst.IsST {
		return false
	}
	if b.cfg.MinListingDays > 0 && inst.ListingDate != "" {
		listed, err := time.Parse(domain.DateFormat, inst.ListingDate)
		if err != nil {
			return false
		}
		start, err := time.Parse(domain.DateFormat, startDate)
		if err != nil {
			return false
		}
		if start.Sub(listed) < time.Duration(b.cfg.MinListingDays)*24*time.Hour {
			return false
		}
	}
	return true
}

// priceRatio resolves the required drawdown ratio from the cap tier table:
// first matching tier by descending cap floor wins.
func (b *Builder) priceRatio(marketCap float64, tiers []config.CapTier) float64 {
	for _, t := range tiers {
		if marketCap >= t.CapFloor {
			return t.MaxPriceRatio
		}
	}
	return b.cfg.DefaultPriceRatio
}

func (b *Builder) sortedTiers() []config.CapTier {
	tiers := make([]config.CapTier, len(b.cfg.Tiers))
	copy(tiers, b.cfg.Tiers)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].CapFloor > tiers[j].CapFloor })
	return tiers
}
