package ledger

import (
	"math"
	"testing"

	"vesper/internal/config"
	"vesper/internal/domain"
)

func baseConfig() config.LedgerConfig {
	return config.LedgerConfig{
		InitialCapital:         50000,
		MaxPerTradeNotional:    10000,
		CommissionPerSide:      5,
		MaxConcurrentPositions: 10,
		MaxConsecutiveLosses:   10,
		Settlement:             "t_plus_1",
		RoundLot:               100,
	}
}

func candidate(symbol, entryDate string, entry float64, exitDate string, exit float64) domain.Trade {
	return domain.Trade{
		Symbol:     symbol,
		EntryDate:  entryDate,
		EntryPrice: entry,
		ExitDate:   exitDate,
		ExitPrice:  exit,
		ExitReason: domain.ExitTrailingStop,
	}
}

func TestRunSizingRoundLots(t *testing.T) {
	// 10000 budget at 90/share: floor(10000/90/100)×100 = 100 shares,
	// 9000 notional. Both same-day candidates fit 50000.
	cands := []domain.Trade{
		candidate("600001", "2024-01-02", 90, "2024-01-03", 95),
		candidate("600002", "2024-01-02", 90, "2024-01-03", 95),
	}
	realized, sum := Run(cands, baseConfig())

	if len(realized) != 2 {
		t.Fatalf("realized %d trades, want 2", len(realized))
	}
	for _, tr := range realized {
		if tr.Shares != 100 {
			t.Errorf("%s shares = %d, want 100", tr.Symbol, tr.Shares)
		}
		if tr.Commission != 10 {
			t.Errorf("%s commission = %v, want 5 per side ×2", tr.Symbol, tr.Commission)
		}
	}
	// PnL per trade: 100×95 − 5 − (100×90 + 5) = 490.
	wantFinal := 50000.0 + 2*490
	if math.Abs(sum.FinalCapital-wantFinal) > 1e-9 {
		t.Errorf("FinalCapital = %v, want %v", sum.FinalCapital, wantFinal)
	}
}

func TestRunEquityCurveSnapshots(t *testing.T) {
	cfg := baseConfig()
	cfg.InitialCapital = 10000
	cfg.MaxPerTradeNotional = 3000
	cfg.CommissionPerSide = 0

	cands := []domain.Trade{
		candidate("600001", "2024-01-02", 10, "2024-01-05", 11),
		candidate("600002", "2024-01-03", 20, "2024-01-06", 19),
	}
	realized, _ := Run(cands, cfg)
	if len(realized) != 2 {
		t.Fatalf("realized %d trades, want 2", len(realized))
	}

	// Fill 1: 300 shares at 10 → cash 10000−3000 = 7000; the position is
	// marked at its expected proceeds 300×11 = 3300.
	if realized[0].CashAfter != 7000 {
		t.Errorf("trade 1 CashAfter = %v, want 7000", realized[0].CashAfter)
	}
	if realized[0].EquityAfter != 10300 {
		t.Errorf("trade 1 EquityAfter = %v, want 10300", realized[0].EquityAfter)
	}

	// Fill 2 (trade 1 still open): 100 shares at 20 → cash 7000−2000 = 5000;
	// equity 5000 + 3300 + 100×19 = 10200.
	if realized[1].CashAfter != 5000 {
		t.Errorf("trade 2 CashAfter = %v, want 5000", realized[1].CashAfter)
	}
	if realized[1].EquityAfter != 10200 {
		t.Errorf("trade 2 EquityAfter = %v, want 10200", realized[1].EquityAfter)
	}
}

func TestRunEquityCurveSameDay(t *testing.T) {
	cfg := baseConfig()
	cfg.InitialCapital = 10000
	cfg.MaxPerTradeNotional = 3000
	cfg.CommissionPerSide = 0
	cfg.Settlement = "same_day"

	realized, _ := Run([]domain.Trade{
		candidate("600001", "2024-01-02", 10, "2024-01-05", 11),
	}, cfg)
	if len(realized) != 1 {
		t.Fatalf("realized %d trades, want 1", len(realized))
	}
	// Proceeds are credited at the fill, so cash and equity coincide.
	if realized[0].CashAfter != 10300 || realized[0].EquityAfter != 10300 {
		t.Errorf("CashAfter/EquityAfter = %v/%v, want 10300/10300",
			realized[0].CashAfter, realized[0].EquityAfter)
	}
}

func TestRunRejectsWhenCashShort(t *testing.T) {
	cfg := baseConfig()
	cfg.InitialCapital = 10000
	cfg.MaxPerTradeNotional = 0 // uncapped: size by cash only

	// First trade consumes nearly all cash at price 95 (100 shares =
	// 9500 + 5 fee). The second at 50/share needs 5000 for one lot but
	// only ~495 remains, and its exit has not settled yet under T+1.
	cands := []domain.Trade{
		candidate("600001", "2024-01-02", 95, "2024-01-04", 96),
		candidate("600002", "2024-01-02", 50, "2024-01-04", 51),
	}
	realized, sum := Run(cands, cfg)

	if len(realized) != 1 {
		t.Fatalf("realized %d trades, want 1", len(realized))
	}
	if sum.SkippedNoCash != 1 {
		t.Errorf("SkippedNoCash = %d, want 1", sum.SkippedNoCash)
	}
}

func TestRunTPlusOneSettlementReleasesCash(t *testing.T) {
	cfg := baseConfig()
	cfg.InitialCapital = 10000
	cfg.MaxPerTradeNotional = 0

	// Same symbol prices as above, but the second candidate arrives on the
	// first trade's exit date: cash has settled and the trade fills.
	cands := []domain.Trade{
		candidate("600001", "2024-01-02", 95, "2024-01-04", 96),
		candidate("600002", "2024-01-04", 50, "2024-01-05", 51),
	}
	realized, sum := Run(cands, cfg)

	if len(realized) != 2 {
		t.Fatalf("realized %d trades, want 2 (T+1 cash released on exit date)", len(realized))
	}
	if sum.SkippedNoCash != 0 {
		t.Errorf("SkippedNoCash = %d, want 0", sum.SkippedNoCash)
	}
}

func TestRunSameDaySettlement(t *testing.T) {
	cfg := baseConfig()
	cfg.InitialCapital = 10000
	cfg.MaxPerTradeNotional = 0
	cfg.Settlement = "same_day"

	// Under instant turnover the first trade's proceeds are usable at
	// once, so the second same-day candidate fills too.
	cands := []domain.Trade{
		candidate("600001", "2024-01-02", 95, "2024-01-04", 96),
		candidate("600002", "2024-01-02", 50, "2024-01-04", 51),
	}
	realized, _ := Run(cands, cfg)

	if len(realized) != 2 {
		t.Fatalf("realized %d trades, want 2 under same_day settlement", len(realized))
	}
}

func TestRunAlreadyHeldSkip(t *testing.T) {
	cands := []domain.Trade{
		candidate("600001", "2024-01-02", 90, "2024-01-05", 95),
		candidate("600001", "2024-01-03", 91, "2024-01-06", 96),
	}
	realized, sum := Run(cands, baseConfig())

	if len(realized) != 1 {
		t.Fatalf("realized %d trades, want 1", len(realized))
	}
	if sum.SkippedAlreadyHeld != 1 {
		t.Errorf("SkippedAlreadyHeld = %d, want 1", sum.SkippedAlreadyHeld)
	}
}

func TestRunPositionCap(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxConcurrentPositions = 2

	cands := []domain.Trade{
		candidate("600001", "2024-01-02", 10, "2024-01-10", 11),
		candidate("600002", "2024-01-02", 10, "2024-01-10", 11),
		candidate("600003", "2024-01-03", 10, "2024-01-10", 11),
		candidate("600004", "2024-01-10", 10, "2024-01-12", 11),
	}
	realized, sum := Run(cands, cfg)

	// Third candidate hits the cap; the fourth arrives after the first two
	// settle and fills.
	if len(realized) != 3 {
		t.Fatalf("realized %d trades, want 3", len(realized))
	}
	if sum.SkippedPositionCap != 1 {
		t.Errorf("SkippedPositionCap = %d, want 1", sum.SkippedPositionCap)
	}
}

func TestRunConsecutiveLossHalt(t *testing.T) {
	// Eleven losing candidates on separate days; the ledger must halt at
	// exactly the tenth and never process the eleventh.
	var cands []domain.Trade
	dates := []string{
		"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05", "2024-01-08",
		"2024-01-09", "2024-01-10", "2024-01-11", "2024-01-12", "2024-01-15",
		"2024-01-16",
	}
	for i, d := range dates {
		sym := "6000" + string(rune('A'+i))
		cands = append(cands, candidate(sym, d, 100, d, 98))
	}

	realized, sum := Run(cands, baseConfig())

	if len(realized) != 10 {
		t.Fatalf("realized %d trades, want exactly 10", len(realized))
	}
	if !sum.Halted {
		t.Fatal("ledger did not halt")
	}
	if sum.HaltReason != "max consecutive losing trades reached" {
		t.Errorf("HaltReason = %q", sum.HaltReason)
	}
	if sum.MaxConsecutiveLosses != 10 {
		t.Errorf("MaxConsecutiveLosses = %d, want 10", sum.MaxConsecutiveLosses)
	}
}

func TestRunDailyLossHalt(t *testing.T) {
	cfg := baseConfig()
	cfg.DailyLossLimit = -500

	// Two same-day losers at −405 each: the second breaches −500 and
	// halts before the third (different-day) candidate.
	cands := []domain.Trade{
		candidate("600001", "2024-01-02", 100, "2024-01-03", 96), // PnL −410
		candidate("600002", "2024-01-02", 100, "2024-01-03", 96),
		candidate("600003", "2024-01-03", 100, "2024-01-04", 110),
	}
	realized, sum := Run(cands, cfg)

	if len(realized) != 2 {
		t.Fatalf("realized %d trades, want 2", len(realized))
	}
	if !sum.Halted || sum.HaltReason != "daily loss limit breached" {
		t.Errorf("halt = %v %q, want daily loss halt", sum.Halted, sum.HaltReason)
	}
}

func TestRunTotalLossHalt(t *testing.T) {
	cfg := baseConfig()
	cfg.TotalLossLimit = -700
	cfg.MaxConsecutiveLosses = 0 // disabled, isolate the total-loss trigger

	cands := []domain.Trade{
		candidate("600001", "2024-01-02", 100, "2024-01-03", 96),
		candidate("600002", "2024-01-03", 100, "2024-01-04", 96),
		candidate("600003", "2024-01-04", 100, "2024-01-05", 110),
	}
	realized, sum := Run(cands, cfg)

	if len(realized) != 2 {
		t.Fatalf("realized %d trades, want 2", len(realized))
	}
	if !sum.Halted || sum.HaltReason != "total loss limit breached" {
		t.Errorf("halt = %v %q, want total loss halt", sum.Halted, sum.HaltReason)
	}
}

func TestRunCapitalConservation(t *testing.T) {
	// Final capital must equal initial capital plus the sum of realized
	// PnL — no money created or destroyed.
	cands := []domain.Trade{
		candidate("600001", "2024-01-02", 90, "2024-01-03", 95),
		candidate("600002", "2024-01-02", 45, "2024-01-04", 44),
		candidate("600003", "2024-01-03", 80, "2024-01-05", 82),
		candidate("600001", "2024-01-05", 92, "2024-01-08", 91),
	}
	realized, sum := Run(cands, baseConfig())

	var pnl float64
	for _, tr := range realized {
		pnl += tr.PnL
	}
	if math.Abs(sum.FinalCapital-(50000+pnl)) > 1e-6 {
		t.Errorf("FinalCapital = %v, want initial+PnL = %v", sum.FinalCapital, 50000+pnl)
	}
}

func TestRunSellTax(t *testing.T) {
	cfg := baseConfig()
	cfg.SellTaxRate = 0.001

	cands := []domain.Trade{candidate("600001", "2024-01-02", 90, "2024-01-03", 95)}
	realized, _ := Run(cands, cfg)

	if len(realized) != 1 {
		t.Fatalf("realized %d trades, want 1", len(realized))
	}
	tr := realized[0]
	// 100 shares: buy 9000+5, sell 9500−5−9.5 → PnL 480.5.
	if math.Abs(tr.PnL-480.5) > 1e-9 {
		t.Errorf("PnL = %v, want 480.5 with 0.1%% sell tax", tr.PnL)
	}
	if math.Abs(tr.Commission-19.5) > 1e-9 {
		t.Errorf("Commission = %v, want 19.5 (fees plus tax)", tr.Commission)
	}
}

func TestRunCommissionBps(t *testing.T) {
	cfg := baseConfig()
	cfg.CommissionPerSide = 0
	cfg.CommissionBps = 10 // 0.1% per side

	cands := []domain.Trade{candidate("600001", "2024-01-02", 90, "2024-01-03", 95)}
	realized, _ := Run(cands, cfg)

	if len(realized) != 1 {
		t.Fatalf("realized %d trades, want 1", len(realized))
	}
	tr := realized[0]
	// Buy fee 9000×0.001 = 9, sell fee 9500×0.001 = 9.5.
	if math.Abs(tr.Commission-18.5) > 1e-9 {
		t.Errorf("Commission = %v, want 18.5", tr.Commission)
	}
}

func TestRunStatsSummary(t *testing.T) {
	cands := []domain.Trade{
		candidate("600001", "2024-01-02", 90, "2024-01-03", 95), // win
		candidate("600002", "2024-01-03", 90, "2024-01-04", 85), // loss
		candidate("600003", "2024-01-04", 90, "2024-01-05", 99), // win
	}
	realized, sum := Run(cands, baseConfig())

	if sum.TradeCount != 3 || sum.Wins != 2 {
		t.Fatalf("TradeCount/Wins = %d/%d, want 3/2", sum.TradeCount, sum.Wins)
	}
	if math.Abs(sum.WinRate-66.666666) > 0.01 {
		t.Errorf("WinRate = %v, want ~66.67", sum.WinRate)
	}
	if sum.AvgWinPct <= 0 || sum.AvgLossPct >= 0 {
		t.Errorf("AvgWinPct=%v AvgLossPct=%v, want positive/negative", sum.AvgWinPct, sum.AvgLossPct)
	}
	if sum.ProfitFactor <= 1 {
		t.Errorf("ProfitFactor = %v, want > 1 for a net-profitable run", sum.ProfitFactor)
	}
	if sum.MedianReturnPct != realized[0].NetReturnPct {
		// Sorted returns: loss, +5.5%-ish, +10%-ish; the middle one is
		// the first trade's return.
		t.Errorf("MedianReturnPct = %v, want %v", sum.MedianReturnPct, realized[0].NetReturnPct)
	}
}
