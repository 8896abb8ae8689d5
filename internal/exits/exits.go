// Package exits simulates the forward holding period of an entry signal and
// produces the exit price, reason, and holding duration under one of three
// policies: next-bar liquidation, single-day intraday trailing stop, or a
// multi-day trailing/breakeven ratchet over daily bars.
//
// Stop fills are modeled worst-case: when a stop level is touched intrabar,
// the fill is min(stop, bar close), so a gap through the stop fills at the
// close rather than at a price the market never offered.
package exits

import (
	"vesper/internal/domain"
	"vesper/internal/series"
)

// PolicyKind selects the exit policy.
type PolicyKind string

const (
	NextBar          PolicyKind = "next_bar"
	IntradayTrailing PolicyKind = "intraday_trailing"
	MultiDay         PolicyKind = "multi_day"
)

// Policy bundles the exit policy and its parameters. Only the fields of the
// selected kind are consulted.
type Policy struct {
	Kind PolicyKind

	// IntradayTrailing.
	TrailingPct float64
	FloorPct    float64

	// MultiDay.
	MaxHoldDays         int
	InitialStopPct      float64
	BreakevenTriggerPct float64
	TrailingProfitPct   float64
}

// Outcome is the result of one simulated holding period.
type Outcome struct {
	ExitDate    string
	ExitPrice   float64
	Reason      domain.ExitReason
	HoldingDays int
	PeakPrice   float64
}

// Simulator resolves forward bars for a signal from the series store.
type Simulator struct {
	Series *series.Store
	Policy Policy
	// Granularity of the intraday series used by the intraday trailing
	// policy; ignored by the daily-bar policies.
	Granularity domain.Granularity
}

// Simulate turns a signal into a candidate trade. The second return value is
// false when forward bars are unavailable (entry too close to the data's
// end) — the caller drops the signal rather than fabricating a result.
func (s *Simulator) Simulate(sig domain.Signal) (domain.Trade, bool) {
	daily, ok := s.Series.Index(sig.Symbol, domain.GranularityDaily)
	if !ok {
		return domain.Trade{}, false
	}

	var out Outcome
	switch s.Policy.Kind {
	case NextBar:
		out, ok = s.nextBar(sig, daily)
	case IntradayTrailing:
		out, ok = s.intradayTrailing(sig)
	case MultiDay:
		out, ok = s.multiDay(sig, daily)
	default:
		return domain.Trade{}, false
	}
	if !ok {
		return domain.Trade{}, false
	}

	return domain.Trade{
		Symbol:         sig.Symbol,
		EntryDate:      sig.TriggerDate,
		EntryTime:      sig.TriggerTime,
		EntryPrice:     sig.TriggerPrice,
		ExitDate:       out.ExitDate,
		ExitPrice:      out.ExitPrice,
		ExitReason:     out.Reason,
		GrossReturnPct: (out.ExitPrice/sig.TriggerPrice - 1) * 100,
	}, true
}

// nextBar liquidates on the next trading day: at the board's up-limit price
// when the day's high touches it, otherwise at the day's close. The limit is
// computed off the entry day's close.
func (s *Simulator) nextBar(sig domain.Signal, daily *series.DayIndex) (Outcome, bool) {
	entryDay := daily.DayBars(sig.TriggerDate)
	if len(entryDay) == 0 {
		return Outcome{}, false
	}
	prevClose := entryDay[len(entryDay)-1].Close

	nextDate, ok := daily.NextDay(sig.TriggerDate)
	if !ok {
		return Outcome{}, false
	}
	next := daily.DayBars(nextDate)[0]

	limit := prevClose * (1 + domain.LimitPct(sig.Symbol))
	price := next.Close
	if next.High >= limit {
		price = limit
	}
	return Outcome{
		ExitDate:    nextDate,
		ExitPrice:   price,
		Reason:      domain.ExitNextOpen,
		HoldingDays: 1,
		PeakPrice:   next.High,
	}, true
}

// intradayTrailing holds through the next trading day only, tracking the
// running intraday high. The hard floor stop (entry × (1 − floor_pct)) takes
// priority over the trailing stop when both could trigger.
func (s *Simulator) intradayTrailing(sig domain.Signal) (Outcome, bool) {
	idx, ok := s.Series.Index(sig.Symbol, s.Granularity)
	if !ok {
		return Outcome{}, false
	}
	nextDate, ok := idx.NextDay(sig.TriggerDate)
	if !ok {
		return Outcome{}, false
	}
	bars := idx.DayBars(nextDate)

	out := SimulateIntradayTrailing(sig.TriggerPrice, bars, s.Policy.TrailingPct, s.Policy.FloorPct)
	out.ExitDate = nextDate
	out.HoldingDays = 1
	return out, true
}

func (s *Simulator) multiDay(sig domain.Signal, daily *series.DayIndex) (Outcome, bool) {
	forward := daily.DaysFrom(sig.TriggerDate)
	if len(forward) == 0 {
		return Outcome{}, false
	}
	bars := make([]domain.Bar, 0, len(forward))
	for _, d := range forward {
		bars = append(bars, daily.DayBars(d)[0])
	}
	return SimulateMultiDay(sig.TriggerPrice, bars, s.Policy), true
}

// ---------------------------------------------------------------------------
// Pure policy kernels
// ---------------------------------------------------------------------------

// SimulateIntradayTrailing walks one session's bars. The running high starts
// at the entry price; each bar first checks the floor stop, then updates the
// high and checks the trailing level. If nothing triggers, the position exits
// at the session close.
func SimulateIntradayTrailing(entryPrice float64, bars []domain.Bar, trailingPct, floorPct float64) Outcome {
	floor := entryPrice * (1 - floorPct)
	high := entryPrice

	for _, b := range bars {
		if b.Low <= floor {
			return Outcome{
				ExitPrice: min(floor, b.Close),
				Reason:    domain.ExitFixedStop,
				PeakPrice: high,
			}
		}
		if b.High > high {
			high = b.High
		}
		trail := high * (1 - trailingPct)
		if trail > floor && b.Low <= trail {
			return Outcome{
				ExitPrice: min(trail, b.Close),
				Reason:    domain.ExitTrailingStop,
				PeakPrice: high,
			}
		}
	}

	last := bars[len(bars)-1]
	if high < last.High {
		high = last.High
	}
	return Outcome{
		ExitPrice: last.Close,
		Reason:    domain.ExitTimeLimit,
		PeakPrice: high,
	}
}

// SimulateMultiDay walks up to MaxHoldDays daily bars maintaining a stop that
// never decreases: the initial stop until breakeven triggers, then the entry
// price, then the trailing level as the peak rises. Each day checks the
// carried stop against the day's low before updating the peak, so a stop set
// yesterday fills today even if today also makes a new high.
func SimulateMultiDay(entryPrice float64, bars []domain.Bar, p Policy) Outcome {
	stop := entryPrice * (1 - p.InitialStopPct)
	reason := domain.ExitFixedStop
	peak := entryPrice
	breakeven := false

	hold := len(bars)
	if p.MaxHoldDays > 0 && hold > p.MaxHoldDays {
		hold = p.MaxHoldDays
	}

	for i := 0; i < hold; i++ {
		b := bars[i]
		if b.Low <= stop {
			return Outcome{
				ExitDate:    b.Date(),
				ExitPrice:   min(stop, b.Close),
				Reason:      reason,
				HoldingDays: i + 1,
				PeakPrice:   peak,
			}
		}

		if b.High > peak {
			peak = b.High
		}
		if !breakeven && peak >= entryPrice*(1+p.BreakevenTriggerPct) {
			breakeven = true
			if entryPrice > stop {
				stop = entryPrice
				reason = domain.ExitBreakevenStop
			}
		}
		if trail := peak * (1 - p.TrailingProfitPct); trail > stop {
			stop = trail
			reason = domain.ExitTrailingStop
		}
	}

	last := bars[hold-1]
	return Outcome{
		ExitDate:    last.Date(),
		ExitPrice:   last.Close,
		Reason:      domain.ExitTimeLimit,
		HoldingDays: hold,
		PeakPrice:   peak,
	}
}
