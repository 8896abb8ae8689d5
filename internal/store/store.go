// Package store defines storage interfaces and implementations for
// persisting bar data (Parquet) and backtest results (SQLite).
package store

import (
	"context"
	"time"

	"vesper/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data per granularity.
type BarStore interface {
	// WriteBars persists a batch of bars at the given granularity.
	WriteBars(ctx context.Context, bars []domain.Bar, g domain.Granularity) error

	// ReadBars returns bars for the given symbol and granularity within
	// [start, end], sorted by timestamp.
	ReadBars(ctx context.Context, symbol string, g domain.Granularity, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols with data at the granularity.
	ListSymbols(ctx context.Context, g domain.Granularity) ([]string, error)
}

// GridResultRow is the persisted form of one parameter combination's outcome.
type GridResultRow struct {
	RunID          string
	Label          string
	Granularity    string
	Lookback       string
	Policy         string
	Multiplier     float64
	TrailingPct    float64
	SignalCount    int
	SignalWinRate  float64
	TradeCount     int
	WinRate        float64
	Expectancy     float64
	ProfitFactor   float64
	FinalCapital   float64
	MaxDrawdownPct float64
	Score          float64
	Ranked         bool
	Halted         bool
	HaltReason     string
}

// TradeRow is the persisted form of one realized trade.
type TradeRow struct {
	RunID        string
	Label        string
	Symbol       string
	EntryDate    string
	EntryPrice   float64
	ExitDate     string
	ExitPrice    float64
	ExitReason   string
	Shares       int64
	NetReturnPct float64
	Commission   float64
	PnL          float64
	CashAfter    float64
	EquityAfter  float64
}

// ResultStore persists grid-search outcomes for later inspection.
type ResultStore interface {
	// SaveResults inserts the per-combination rows of a run.
	SaveResults(ctx context.Context, rows []GridResultRow) error

	// SaveTrades inserts the realized trade log of a run.
	SaveTrades(ctx context.Context, rows []TradeRow) error

	// TopResults returns the highest-scoring ranked rows of a run.
	TopResults(ctx context.Context, runID string, limit int) ([]GridResultRow, error)
}
