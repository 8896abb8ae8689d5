package grid

import (
	"context"
	"reflect"
	"testing"
	"time"

	"vesper/internal/config"
	"vesper/internal/domain"
	"vesper/internal/ledger"
	"vesper/internal/pool"
	"vesper/internal/series"
)

// fixtureStore builds a daily-granularity series for one symbol: 21 flat +1%
// days, a +3% breakout day, and a profitable follow-through day, so a 1m
// max_break scan yields exactly one signal with a valid forward exit.
func fixtureStore(symbol string) (*series.Store, []string) {
	day, _ := time.Parse(domain.DateFormat, "2024-01-01")
	var bars []domain.Bar
	var dates []string
	add := func(i int, open, high, low, close float64) {
		ts := day.AddDate(0, 0, i)
		bars = append(bars, domain.Bar{
			Symbol: symbol, Timestamp: ts,
			Open: open, High: high, Low: low, Close: close, Volume: 1000,
		})
		dates = append(dates, ts.Format(domain.DateFormat))
	}
	for i := 0; i < 21; i++ {
		add(i, 10, 10.1, 10, 10.1)
	}
	add(21, 10, 10.3, 10, 10.3)      // breakout: +3%
	add(22, 10.3, 10.6, 10.25, 10.5) // forward day for the exit

	st := series.NewStore(nil)
	st.Put(symbol, domain.GranularityDaily, bars)
	return st, dates
}

func fixtureDriver(symbol string) *Driver {
	st, dates := fixtureStore(symbol)
	return &Driver{
		Pool:   pool.FromDates(map[string][]string{symbol: dates}),
		Series: st,
		Grid: config.GridConfig{
			Granularities:     []string{"daily"},
			Lookbacks:         []string{"1m"},
			IncludeMaxBreak:   true,
			MedianMultipliers: []float64{2.0},
			TrailingStops:     []float64{0.03, 0.05},
			FloorStop:         0.03,
			ExitPolicy:        "intraday_trailing",
			MinTrades:         1,
			Workers:           2,
		},
		Backtest: config.BacktestConfig{
			StartDate:    "2024-01-01",
			EndDate:      "2024-12-31",
			CooldownDays: 2,
			MinDayBars:   1,
		},
		Ledger: config.LedgerConfig{
			InitialCapital:         50000,
			MaxPerTradeNotional:    10000,
			CommissionPerSide:      5,
			MaxConcurrentPositions: 10,
			Settlement:             "t_plus_1",
			RoundLot:               100,
		},
	}
}

func TestExpandCartesianGrid(t *testing.T) {
	d := fixtureDriver("600519")
	combos := d.expand()

	// 1 granularity × 1 lookback × (max_break + 1 multiplier) × 2 stops.
	if len(combos) != 4 {
		t.Fatalf("expanded %d combos, want 4", len(combos))
	}
	labels := make(map[string]bool)
	for _, c := range combos {
		labels[c.Label()] = true
	}
	for _, want := range []string{
		"daily|max_break|1m|3%",
		"daily|max_break|1m|5%",
		"daily|median_x2|1m|3%",
		"daily|median_x2|1m|5%",
	} {
		if !labels[want] {
			t.Errorf("missing combo label %q in %v", want, labels)
		}
	}
}

func TestRunEndToEnd(t *testing.T) {
	d := fixtureDriver("600519")
	results := d.Run(context.Background())

	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}

	var maxBreak *Result
	for i := range results {
		if results[i].Label == "daily|max_break|1m|3%" {
			maxBreak = &results[i]
		}
	}
	if maxBreak == nil {
		t.Fatal("max_break result missing")
	}
	if maxBreak.SignalCount != 1 {
		t.Errorf("SignalCount = %d, want 1", maxBreak.SignalCount)
	}
	if maxBreak.Summary.TradeCount != 1 {
		t.Errorf("TradeCount = %d, want 1", maxBreak.Summary.TradeCount)
	}
	if !maxBreak.Ranked {
		t.Error("combination with a trade above min_trades must be ranked")
	}
	if maxBreak.Score == 0 {
		t.Error("ranked combination should carry a nonzero score")
	}
}

func TestRunZeroSignalComboUnranked(t *testing.T) {
	// A median_x5 threshold (0.05 off a +1% window) is out of reach for
	// the fixture's +3% breakout: the combo produces zero signals.
	d := fixtureDriver("600519")
	d.Grid.MedianMultipliers = []float64{5.0}
	d.Grid.IncludeMaxBreak = false
	d.Grid.TrailingStops = []float64{0.03}
	results := d.Run(context.Background())

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.SignalCount != 0 {
		t.Errorf("SignalCount = %d, want 0", r.SignalCount)
	}
	if r.Ranked || r.Score != 0 {
		t.Errorf("zero-signal combo must be unranked with zero score, got ranked=%v score=%v", r.Ranked, r.Score)
	}
	if r.Summary.TradeCount != 0 {
		t.Errorf("TradeCount = %d, want 0", r.Summary.TradeCount)
	}
}

func TestRunMinTradesThreshold(t *testing.T) {
	d := fixtureDriver("600519")
	d.Grid.MinTrades = 5 // one trade is below the ranking bar
	results := d.Run(context.Background())

	for _, r := range results {
		if r.Ranked {
			t.Errorf("combo %s ranked with %d trades under min_trades=5", r.Label, r.Summary.TradeCount)
		}
	}
}

func TestRunDeterministic(t *testing.T) {
	d1 := fixtureDriver("600519")
	d2 := fixtureDriver("600519")

	r1 := d1.Run(context.Background())
	r2 := d2.Run(context.Background())

	if !reflect.DeepEqual(r1, r2) {
		t.Error("two identical grid runs produced different results")
	}

	// And again with a different worker count: parallelism must not leak
	// into the output.
	d3 := fixtureDriver("600519")
	d3.Grid.Workers = 1
	if r3 := d3.Run(context.Background()); !reflect.DeepEqual(r1, r3) {
		t.Error("worker count changed the results")
	}
}

func TestSortCandidatesTotalOrder(t *testing.T) {
	ts := time.Date(2024, 1, 22, 10, 0, 0, 0, time.UTC)
	cands := []domain.Trade{
		{Symbol: "600519", EntryDate: "2024-01-23", EntryTime: ts.AddDate(0, 0, 1)},
		{Symbol: "600520", EntryDate: "2024-01-22", EntryTime: ts},
		{Symbol: "600519", EntryDate: "2024-01-22", EntryTime: ts},
		{Symbol: "000002", EntryDate: "2024-01-22", EntryTime: ts.Add(-time.Hour)},
	}
	sortCandidates(cands)

	want := []string{"000002", "600519", "600520", "600519"}
	for i, sym := range want {
		if cands[i].Symbol != sym {
			t.Fatalf("order[%d] = %s, want %s (full order: %v)", i, cands[i].Symbol, sym, cands)
		}
	}
}

func TestScoreClipsReturn(t *testing.T) {
	r := Result{
		SignalCount:   100,
		SignalWinRate: 50,
		Summary:       ledger.Summary{FinalCapital: 200000}, // +300%: clipped to +50
	}

	got := score(r, 50000)
	// 50×0.4 + 50×0.2 + 100×0.2 + 100×0.2 = 70.
	if got != 70 {
		t.Errorf("score = %v, want 70 with the return term clipped", got)
	}
}
