// Package provider defines the narrow interfaces the engine consumes for
// market data and fundamentals, plus the Alpaca-backed implementation used by
// the fetch command. Provider failures propagate as errors; the engine layers
// above treat a missing instrument as an omission, never a crash.
package provider

import (
	"context"
	"time"

	"vesper/internal/domain"
	"vesper/internal/pool"
)

// MarketData supplies historical bars and the trading calendar.
type MarketData interface {
	// DailyBars fetches daily bars for a batch of symbols.
	DailyBars(ctx context.Context, symbols []string, start, end time.Time) ([]domain.Bar, error)

	// IntradayBars fetches sub-day bars at the granularity for a batch of
	// symbols.
	IntradayBars(ctx context.Context, symbols []string, g domain.Granularity, start, end time.Time) ([]domain.Bar, error)

	// TradingCalendar returns the ordered trading days in [start, end].
	TradingCalendar(ctx context.Context, start, end time.Time) ([]string, error)
}

// Fundamentals supplies the per-instrument snapshot the eligibility screen
// consumes: market cap, risk flags, listing date.
type Fundamentals interface {
	Instruments(ctx context.Context) (map[string]pool.Instrument, error)
}
