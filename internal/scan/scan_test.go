package scan

import (
	"testing"
	"time"

	"vesper/internal/domain"
	"vesper/internal/series"
)

// dayBar builds one bar per day; at daily granularity the lookback window is
// one return per trading day, which keeps fixtures small.
func dayBar(symbol, date string, open, close float64) domain.Bar {
	ts, _ := time.Parse(domain.DateFormat, date)
	return domain.Bar{
		Symbol: symbol, Timestamp: ts,
		Open: open, High: max(open, close), Low: min(open, close), Close: close,
		Volume: 1000,
	}
}

// flatHistory builds n one-bar days with the given per-bar return, starting
// at start (consecutive calendar days).
func flatHistory(symbol, start string, n int, ret float64) []domain.Bar {
	day, _ := time.Parse(domain.DateFormat, start)
	bars := make([]domain.Bar, 0, n)
	for i := 0; i < n; i++ {
		bars = append(bars, domain.Bar{
			Symbol: symbol, Timestamp: day.AddDate(0, 0, i),
			Open: 10, High: 10 * (1 + ret), Low: 10, Close: 10 * (1 + ret),
			Volume: 1000,
		})
	}
	return bars
}

func allEligible(string) bool { return true }

func testParams(kind PolicyKind, mult float64) Params {
	return Params{
		Granularity:  domain.GranularityDaily, // 1 bar/day: 1m lookback = 21 bars
		Lookback:     "1m",
		Policy:       Policy{Kind: kind, Multiplier: mult},
		CooldownDays: 2,
		MinDayBars:   1,
		StartDate:    "2024-01-01",
	}
}

func TestScanMaxBreakFires(t *testing.T) {
	// 21 history days at +1%, then a +3% day: breaks the window max.
	bars := flatHistory("600519", "2024-01-01", 21, 0.01)
	bars = append(bars, dayBar("600519", "2024-01-22", 10, 10.30))
	idx := series.NewDayIndex(bars)

	sigs := Scan("600519", idx, allEligible, testParams(MaxBreak, 0))
	if len(sigs) != 1 {
		t.Fatalf("got %d signals, want 1", len(sigs))
	}
	s := sigs[0]
	if s.TriggerDate != "2024-01-22" {
		t.Errorf("TriggerDate = %s, want 2024-01-22", s.TriggerDate)
	}
	if s.TriggerPrice != 10.30 {
		t.Errorf("TriggerPrice = %v, want the triggering bar close 10.30", s.TriggerPrice)
	}
	if s.Threshold < 0.0099 || s.Threshold > 0.0101 {
		t.Errorf("Threshold = %v, want the window max ~0.01", s.Threshold)
	}
}

func TestScanInsufficientLookbackSkips(t *testing.T) {
	// Only 10 history days before the breakout: window never fills.
	bars := flatHistory("600519", "2024-01-01", 10, 0.01)
	bars = append(bars, dayBar("600519", "2024-01-11", 10, 10.30))
	idx := series.NewDayIndex(bars)

	if sigs := Scan("600519", idx, allEligible, testParams(MaxBreak, 0)); len(sigs) != 0 {
		t.Errorf("got %d signals with a short lookback, want 0", len(sigs))
	}
}

func TestScanNegativeMaxBreakThresholdFires(t *testing.T) {
	// An all-negative lookback window: threshold = max(returns) < 0. A
	// positive bar return that day must still fire.
	bars := flatHistory("600519", "2024-01-01", 21, -0.01)
	bars = append(bars, dayBar("600519", "2024-01-22", 10, 10.05))
	idx := series.NewDayIndex(bars)

	sigs := Scan("600519", idx, allEligible, testParams(MaxBreak, 0))
	if len(sigs) != 1 {
		t.Fatalf("got %d signals, want 1 (negative max_break threshold is valid)", len(sigs))
	}
	if sigs[0].Threshold >= 0 {
		t.Errorf("Threshold = %v, want negative", sigs[0].Threshold)
	}
}

func TestScanMedianPolicyRequiresPositives(t *testing.T) {
	// All-negative window: multiple_of_median has no base, no signal.
	bars := flatHistory("600519", "2024-01-01", 21, -0.01)
	bars = append(bars, dayBar("600519", "2024-01-22", 10, 10.50))
	idx := series.NewDayIndex(bars)

	if sigs := Scan("600519", idx, allEligible, testParams(MultipleOfMedian, 2)); len(sigs) != 0 {
		t.Errorf("got %d signals with no positive returns in window, want 0", len(sigs))
	}
}

func TestScanMedianPolicyThreshold(t *testing.T) {
	// Window of +1% returns → median 0.01, multiplier 2 → threshold 0.02.
	bars := flatHistory("600519", "2024-01-01", 21, 0.01)
	bars = append(bars,
		dayBar("600519", "2024-01-22", 10, 10.15), // +1.5%: below threshold
		dayBar("600519", "2024-01-23", 10, 10.25), // +2.5%: fires
	)
	idx := series.NewDayIndex(bars)

	sigs := Scan("600519", idx, allEligible, testParams(MultipleOfMedian, 2))
	if len(sigs) != 1 {
		t.Fatalf("got %d signals, want 1", len(sigs))
	}
	if sigs[0].TriggerDate != "2024-01-23" {
		t.Errorf("TriggerDate = %s, want 2024-01-23", sigs[0].TriggerDate)
	}
}

func TestScanFirstTriggerWins(t *testing.T) {
	// Two breakout bars in one day: only the first fires.
	bars := flatHistory("600519", "2024-01-01", 21, 0.01)
	day, _ := time.Parse(domain.DateFormat, "2024-01-22")
	bars = append(bars,
		domain.Bar{Symbol: "600519", Timestamp: day.Add(10 * time.Minute), Open: 10, High: 10.3, Low: 10, Close: 10.3, Volume: 1},
		domain.Bar{Symbol: "600519", Timestamp: day.Add(20 * time.Minute), Open: 10.3, High: 10.8, Low: 10.3, Close: 10.8, Volume: 1},
	)
	idx := series.NewDayIndex(bars)

	sigs := Scan("600519", idx, allEligible, testParams(MaxBreak, 0))
	if len(sigs) != 1 {
		t.Fatalf("got %d signals, want 1", len(sigs))
	}
	if sigs[0].TriggerPrice != 10.3 {
		t.Errorf("TriggerPrice = %v, want the first breaking bar's close 10.3", sigs[0].TriggerPrice)
	}
}

func TestScanCooldown(t *testing.T) {
	// Breakouts on four consecutive days with cooldown 2: signals must be
	// at least 3 trading days apart (days 1 and 4 of the streak).
	bars := flatHistory("600519", "2024-01-01", 21, 0.01)
	for i, date := range []string{"2024-01-22", "2024-01-23", "2024-01-24", "2024-01-25"} {
		bars = append(bars, dayBar("600519", date, 10, 10.30+float64(i)))
	}
	idx := series.NewDayIndex(bars)

	sigs := Scan("600519", idx, allEligible, testParams(MaxBreak, 0))
	if len(sigs) != 2 {
		t.Fatalf("got %d signals, want 2", len(sigs))
	}
	if sigs[0].TriggerDate != "2024-01-22" || sigs[1].TriggerDate != "2024-01-25" {
		t.Errorf("signal dates = %s, %s; want 2024-01-22 and 2024-01-25",
			sigs[0].TriggerDate, sigs[1].TriggerDate)
	}

	// Property: consecutive signals are > cooldown trading days apart in
	// the instrument's own day sequence.
	dayIdx := make(map[string]int)
	for i := 0; i < idx.Len(); i++ {
		dayIdx[idx.Day(i)] = i
	}
	for i := 1; i < len(sigs); i++ {
		gap := dayIdx[sigs[i].TriggerDate] - dayIdx[sigs[i-1].TriggerDate]
		if gap <= 2 {
			t.Errorf("signals %d trading days apart, want > cooldown 2", gap)
		}
	}
}

func TestScanPoolGating(t *testing.T) {
	bars := flatHistory("600519", "2024-01-01", 21, 0.01)
	bars = append(bars, dayBar("600519", "2024-01-22", 10, 10.30))
	idx := series.NewDayIndex(bars)

	notEligible := func(string) bool { return false }
	if sigs := Scan("600519", idx, notEligible, testParams(MaxBreak, 0)); len(sigs) != 0 {
		t.Errorf("got %d signals on ineligible days, want 0", len(sigs))
	}
}

func TestScanNoLookahead(t *testing.T) {
	// The trigger day carries a huge +8% bar. If the day's own bars leaked
	// into the window the threshold would be 0.08 and nothing could fire.
	bars := flatHistory("600519", "2024-01-01", 21, 0.01)
	bars = append(bars, dayBar("600519", "2024-01-22", 10, 10.80))
	idx := series.NewDayIndex(bars)

	sigs := Scan("600519", idx, allEligible, testParams(MaxBreak, 0))
	if len(sigs) != 1 {
		t.Fatalf("got %d signals, want 1 (trigger-day bars must not enter the window)", len(sigs))
	}
	if sigs[0].Threshold > 0.02 {
		t.Errorf("Threshold = %v, contaminated by same-day bars", sigs[0].Threshold)
	}
}

func TestScanSeedsWindowFromPriorHistory(t *testing.T) {
	// All 21 warmup days sit strictly before the scan range; the breakout on
	// the first in-range day must still see a full window.
	bars := flatHistory("600519", "2024-01-01", 21, 0.01)
	bars = append(bars, dayBar("600519", "2024-01-22", 10, 10.30))
	idx := series.NewDayIndex(bars)

	p := testParams(MaxBreak, 0)
	p.StartDate = "2024-01-22"
	sigs := Scan("600519", idx, allEligible, p)
	if len(sigs) != 1 {
		t.Fatalf("got %d signals, want 1 fed by pre-range history", len(sigs))
	}
	if sigs[0].TriggerDate != "2024-01-22" {
		t.Errorf("TriggerDate = %s, want 2024-01-22", sigs[0].TriggerDate)
	}
}
