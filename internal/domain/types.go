// Package domain defines the core data types shared across the vesper
// backtesting engine: bars, signals, trades, and eligibility records, plus
// the market-convention helpers (bar granularities, board price limits,
// lookback periods) that parameterize them.
package domain

import (
	"math"
	"strings"
	"time"
)

// DateFormat is the canonical layout for trading-day keys. Dates are passed
// around as strings in this layout so they sort lexicographically in
// chronological order.
const DateFormat = "2006-01-02"

// Granularity identifies a bar period.
type Granularity string

const (
	GranularityDaily Granularity = "daily"
	Granularity5Min  Granularity = "5m"
	Granularity15Min Granularity = "15m"
	Granularity30Min Granularity = "30m"
)

// BarsPerDay returns the number of bars per regular A-share session
// (4 trading hours) for this granularity, or 1 for daily.
func (g Granularity) BarsPerDay() int {
	switch g {
	case Granularity5Min:
		return 48
	case Granularity15Min:
		return 16
	case Granularity30Min:
		return 8
	default:
		return 1
	}
}

// Minutes returns the bar period in minutes, or 0 for daily.
func (g Granularity) Minutes() int {
	switch g {
	case Granularity5Min:
		return 5
	case Granularity15Min:
		return 15
	case Granularity30Min:
		return 30
	default:
		return 0
	}
}

// Valid reports whether g is a known granularity.
func (g Granularity) Valid() bool {
	switch g {
	case GranularityDaily, Granularity5Min, Granularity15Min, Granularity30Min:
		return true
	}
	return false
}

// LookbackTradingDays maps a lookback period label to its span in trading
// days ("1m"=21, "3m"=63, "6m"=125, "1y"=250). The second return value is
// false for unknown labels.
func LookbackTradingDays(label string) (int, bool) {
	switch label {
	case "1m":
		return 21, true
	case "3m":
		return 63, true
	case "6m":
		return 125, true
	case "1y":
		return 250, true
	}
	return 0, false
}

// Bar is a single OHLCV bar at daily or intraday granularity. Bars are
// immutable once fetched.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Date returns the bar's trading-day key.
func (b Bar) Date() string {
	return b.Timestamp.Format(DateFormat)
}

// Return is the bar's open-to-close return (close/open − 1). NaN when the
// open is missing or non-positive.
func (b Bar) Return() float64 {
	if b.Open <= 0 {
		return math.NaN()
	}
	return b.Close/b.Open - 1
}

// Signal marks the first intraday bar of a trading day whose return broke
// the threshold derived from the instrument's lookback window.
type Signal struct {
	Symbol       string
	TriggerDate  string // trading day, DateFormat
	TriggerTime  time.Time
	TriggerPrice float64 // close of the triggering bar
	BarReturn    float64
	Threshold    float64
}

// ExitReason tags how a simulated holding was closed.
type ExitReason string

const (
	ExitFixedStop     ExitReason = "fixed_stop"     // floor / initial stop hit
	ExitTrailingStop  ExitReason = "trailing_stop"  // trailing drawdown from peak
	ExitBreakevenStop ExitReason = "breakeven_stop" // stop raised to entry, then hit
	ExitTimeLimit     ExitReason = "time_exit"      // max holding period elapsed
	ExitNextOpen      ExitReason = "next_open_exit" // fixed next-bar liquidation
)

// Trade is one candidate or realized round trip. The exit fields are filled
// by the exit simulator; Shares, Commission, NetReturnPct, and the equity
// snapshot are populated by the capital ledger when (and only when) the
// trade fills.
type Trade struct {
	Symbol         string
	EntryDate      string
	EntryTime      time.Time
	EntryPrice     float64
	ExitDate       string
	ExitPrice      float64
	ExitReason     ExitReason
	Shares         int64
	GrossReturnPct float64
	NetReturnPct   float64
	Commission     float64 // both sides plus sell tax
	PnL            float64
	CashAfter      float64 // available cash right after the entry fill
	EquityAfter    float64 // cash plus expected proceeds of open positions
}

// EligibilityRecord explains why an instrument-day passed (or failed) the
// pool screen. Records are computed strictly from bars dated before the
// record's date.
type EligibilityRecord struct {
	Symbol        string
	Date          string
	Eligible      bool
	MarketCap     float64 // in the screener's cap unit (1e8 CNY in config)
	DrawdownRatio float64 // close / trailing-250-day high
	Industry      string
}

// LimitPct returns the daily price-limit fraction for an A-share code:
// 0.20 for ChiNext (300xxx) and STAR (688xxx) listings, 0.10 for the main
// boards.
func LimitPct(code string) float64 {
	if strings.HasPrefix(code, "300") || strings.HasPrefix(code, "688") {
		return 0.20
	}
	return 0.10
}
