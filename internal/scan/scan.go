// Package scan walks an instrument's intraday bars day by day and emits entry
// signals when a bar's return breaks a threshold derived from a rolling
// lookback window of prior-day bars. Every degenerate condition — short
// windows, halted sessions, vacuous thresholds — is a silent skip, never an
// error: partial coverage across thousands of instrument-days is the normal
// case.
package scan

import (
	"fmt"
	"math"
	"sort"

	"vesper/internal/domain"
	"vesper/internal/series"
)

// PolicyKind selects how the entry threshold is derived from the window.
type PolicyKind string

const (
	// MaxBreak fires when a bar return exceeds the window maximum. The
	// threshold may legitimately be negative (an all-negative window);
	// any bar beating it still fires.
	MaxBreak PolicyKind = "max_break"

	// MultipleOfMedian fires when a bar return exceeds the median of the
	// window's positive returns times a multiplier. No positive returns
	// in the window means no signal can fire that day.
	MultipleOfMedian PolicyKind = "multiple_of_median"
)

// Policy is a threshold policy instance. Multiplier is ignored for MaxBreak.
type Policy struct {
	Kind       PolicyKind
	Multiplier float64
}

// Label renders the policy for result keys and reports.
func (p Policy) Label() string {
	if p.Kind == MaxBreak {
		return string(MaxBreak)
	}
	return fmt.Sprintf("median_x%g", p.Multiplier)
}

// Params bounds one scan pass.
type Params struct {
	Granularity  domain.Granularity
	Lookback     string // "1m" | "3m" | "6m" | "1y"
	Policy       Policy
	CooldownDays int // trading days that must elapse between signals
	MinDayBars   int // days with fewer intraday bars are treated as halts
	StartDate    string
	EndDate      string
}

// lookbackBars converts the lookback label to a bar count at the scan
// granularity. False for unknown labels.
func (p Params) lookbackBars() (int, bool) {
	days, ok := domain.LookbackTradingDays(p.Lookback)
	if !ok {
		return 0, false
	}
	return days * p.Granularity.BarsPerDay(), true
}

// Scan emits the instrument's signals over its intraday history, in
// chronological order. eligible reports whether the pool admits the
// instrument on a date; days outside the pool only feed the rolling window.
func Scan(symbol string, idx *series.DayIndex, eligible func(date string) bool, p Params) []domain.Signal {
	capacity, ok := p.lookbackBars()
	if !ok || capacity <= 0 {
		return nil
	}

	window := newReturnWindow(capacity)
	var signals []domain.Signal

	// History before the scan range only warms the window; no day there can
	// fire, so it skips the evaluation loop entirely.
	for _, b := range idx.HistoryBefore(p.StartDate) {
		window.Push(b.Return())
	}
	first := sort.SearchStrings(idx.Days(), p.StartDate)

	lastSignalIdx := -1
	for i := first; i < idx.Len(); i++ {
		date := idx.Day(i)
		bars := idx.DayBars(date)

		if (p.EndDate == "" || date <= p.EndDate) &&
			eligible(date) && len(bars) >= p.MinDayBars {
			if lastSignalIdx < 0 || i-lastSignalIdx > p.CooldownDays {
				if sig, ok := scanDay(symbol, date, bars, window, p.Policy); ok {
					signals = append(signals, sig)
					lastSignalIdx = i
				}
			}
		}

		// The day's own bars enter the window only after the day has been
		// evaluated, keeping the lookback strictly before the trigger day.
		for _, b := range bars {
			window.Push(b.Return())
		}
	}
	return signals
}

// scanDay evaluates one trading day: derive the threshold from the window,
// then take the first bar whose return breaks it.
func scanDay(symbol, date string, bars []domain.Bar, w *returnWindow, policy Policy) (domain.Signal, bool) {
	if !w.Full() {
		return domain.Signal{}, false // insufficient lookback
	}

	threshold, ok := threshold(w, policy)
	if !ok {
		return domain.Signal{}, false
	}

	for _, b := range bars {
		r := b.Return()
		if math.IsNaN(r) {
			continue
		}
		if r > threshold {
			return domain.Signal{
				Symbol:       symbol,
				TriggerDate:  date,
				TriggerTime:  b.Timestamp,
				TriggerPrice: b.Close,
				BarReturn:    r,
				Threshold:    threshold,
			}, true
		}
	}
	return domain.Signal{}, false
}

func threshold(w *returnWindow, policy Policy) (float64, bool) {
	switch policy.Kind {
	case MaxBreak:
		v, ok := w.Max()
		if !ok || math.IsNaN(v) {
			return 0, false
		}
		return v, true
	case MultipleOfMedian:
		med, ok := w.MedianPositive()
		if !ok {
			return 0, false
		}
		t := med * policy.Multiplier
		if t <= 0 || math.IsNaN(t) {
			return 0, false
		}
		return t, true
	}
	return 0, false
}
