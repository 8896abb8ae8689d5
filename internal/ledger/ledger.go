// Package ledger turns a time-ordered stream of candidate trades into
// realized trades under capital constraints: available cash, round lots, a
// per-trade notional cap, a concurrent-position cap, and risk-control
// shutoffs. A Run is a strictly sequential state machine — step N's available
// cash depends on step N−1 — and is fully deterministic.
package ledger

import (
	"math"
	"sort"

	"vesper/internal/config"
	"vesper/internal/domain"
)

// position is one open holding awaiting settlement.
type position struct {
	entryCost        float64
	expectedProceeds float64
	exitDate         string
}

// Summary aggregates one ledger run.
type Summary struct {
	TradeCount           int
	Wins                 int
	WinRate              float64 // percent
	AvgWinPct            float64
	AvgLossPct           float64
	Expectancy           float64 // win_rate×avg_win + (1−win_rate)×avg_loss
	ProfitFactor         float64
	MeanReturnPct        float64
	MedianReturnPct      float64
	MaxConsecutiveLosses int
	FinalCapital         float64
	MaxDrawdownPct       float64 // ≤ 0
	Halted               bool
	HaltReason           string

	// Skip counters: expected rejections, not errors.
	SkippedAlreadyHeld int
	SkippedPositionCap int
	SkippedNoCash      int
}

// Run executes the candidate stream against a fresh ledger. Candidates must
// be ordered by entry date; each carries the exit already simulated for it.
// The returned trades are the fills, in order, with Shares, Commission,
// NetReturnPct, PnL, and the post-fill CashAfter/EquityAfter snapshot
// populated, so the log doubles as the run's equity curve.
func Run(candidates []domain.Trade, cfg config.LedgerConfig) ([]domain.Trade, Summary) {
	cash := cfg.InitialCapital
	positions := make(map[string]position)
	var realized []domain.Trade

	sum := Summary{}
	peakEquity := cfg.InitialCapital
	consecutiveLosses := 0
	curDay, dayPnL := "", 0.0

	// Map iteration order is random; every fold over positions walks sorted
	// symbols so float accumulation stays reproducible run to run.
	openSymbols := func() []string {
		syms := make([]string, 0, len(positions))
		for sym := range positions {
			syms = append(syms, sym)
		}
		sort.Strings(syms)
		return syms
	}
	settle := func(date string) {
		for _, sym := range openSymbols() {
			if p := positions[sym]; p.exitDate <= date {
				cash += p.expectedProceeds
				delete(positions, sym)
			}
		}
	}

	for _, c := range candidates {
		// 1. Release capital from positions whose exit date has passed.
		settle(c.EntryDate)
		if c.EntryDate != curDay {
			curDay = c.EntryDate
			dayPnL = 0
		}

		// 2. Reject candidates the constraints exclude.
		if _, held := positions[c.Symbol]; held {
			sum.SkippedAlreadyHeld++
			continue
		}
		if cfg.MaxConcurrentPositions > 0 && len(positions) >= cfg.MaxConcurrentPositions {
			sum.SkippedPositionCap++
			continue
		}
		shares := sizePosition(c.EntryPrice, cash, cfg)
		if shares == 0 {
			sum.SkippedNoCash++
			continue
		}

		// 3. Fill: book the entry cost now, the proceeds on settlement.
		notional := float64(shares) * c.EntryPrice
		buyFee := commission(notional, cfg)
		entryCost := notional + buyFee

		exitNotional := float64(shares) * c.ExitPrice
		sellFee := commission(exitNotional, cfg)
		tax := exitNotional * cfg.SellTaxRate
		proceeds := exitNotional - sellFee - tax

		cash -= entryCost

		t := c
		t.Shares = shares
		t.Commission = buyFee + sellFee + tax
		t.PnL = proceeds - entryCost
		t.NetReturnPct = t.PnL / entryCost * 100

		if cfg.Settlement == "same_day" {
			// Instant-turnover variant: proceeds are usable immediately;
			// the position only counts toward the concurrency cap.
			cash += proceeds
			positions[c.Symbol] = position{exitDate: c.ExitDate}
		} else {
			positions[c.Symbol] = position{
				entryCost:        entryCost,
				expectedProceeds: proceeds,
				exitDate:         c.ExitDate,
			}
		}

		// 4. Mark equity and evaluate the risk controls, in order.
		dayPnL += t.PnL
		if t.PnL < 0 {
			consecutiveLosses++
		} else {
			consecutiveLosses = 0
		}
		if consecutiveLosses > sum.MaxConsecutiveLosses {
			sum.MaxConsecutiveLosses = consecutiveLosses
		}

		equity := cash
		for _, sym := range openSymbols() {
			equity += positions[sym].expectedProceeds
		}
		t.CashAfter = cash
		t.EquityAfter = equity
		realized = append(realized, t)
		if equity > peakEquity {
			peakEquity = equity
		}
		if peakEquity > 0 {
			if dd := (equity - peakEquity) / peakEquity * 100; dd < sum.MaxDrawdownPct {
				sum.MaxDrawdownPct = dd
			}
		}

		if halted, reason := checkRisk(dayPnL, consecutiveLosses, equity, cfg); halted {
			sum.Halted = true
			sum.HaltReason = reason
			break
		}
	}

	// Remaining holdings settle on schedule after the run.
	for _, sym := range openSymbols() {
		cash += positions[sym].expectedProceeds
	}

	sum.FinalCapital = cash
	finishStats(&sum, realized)
	return realized, sum
}

// sizePosition computes the share count for a fill: floor the capped budget
// to a round lot, then shrink lot by lot until the entry cost, commission
// included, fits the available cash. Zero means the candidate cannot fill.
func sizePosition(price, cash float64, cfg config.LedgerConfig) int64 {
	if price <= 0 {
		return 0
	}
	lot := cfg.RoundLot
	budget := cash - cfg.CommissionPerSide
	if cfg.MaxPerTradeNotional > 0 && cfg.MaxPerTradeNotional < budget {
		budget = cfg.MaxPerTradeNotional
	}
	if budget <= 0 {
		return 0
	}

	shares := int64(budget/price/float64(lot)) * lot
	for shares > 0 {
		notional := float64(shares) * price
		if notional+commission(notional, cfg) <= cash {
			break
		}
		shares -= lot
	}
	return shares
}

// commission is the one-side fee: flat plus basis points of notional.
func commission(notional float64, cfg config.LedgerConfig) float64 {
	return cfg.CommissionPerSide + notional*cfg.CommissionBps/10000
}

// checkRisk evaluates the shutoff triggers in their defined order: daily
// loss, consecutive losses, total loss. Limits set to zero are disabled.
func checkRisk(dayPnL float64, consecutiveLosses int, equity float64, cfg config.LedgerConfig) (bool, string) {
	if cfg.DailyLossLimit < 0 && dayPnL <= cfg.DailyLossLimit {
		return true, "daily loss limit breached"
	}
	if cfg.MaxConsecutiveLosses > 0 && consecutiveLosses >= cfg.MaxConsecutiveLosses {
		return true, "max consecutive losing trades reached"
	}
	if cfg.TotalLossLimit < 0 && equity-cfg.InitialCapital <= cfg.TotalLossLimit {
		return true, "total loss limit breached"
	}
	return false, ""
}

func finishStats(sum *Summary, realized []domain.Trade) {
	sum.TradeCount = len(realized)
	if len(realized) == 0 {
		return
	}

	var winSum, lossSum, grossProfit, grossLoss float64
	losses := 0
	returns := make([]float64, 0, len(realized))
	for _, t := range realized {
		returns = append(returns, t.NetReturnPct)
		if t.PnL > 0 {
			sum.Wins++
			winSum += t.NetReturnPct
			grossProfit += t.PnL
		} else {
			losses++
			lossSum += t.NetReturnPct
			grossLoss += t.PnL
		}
	}

	wr := float64(sum.Wins) / float64(len(realized))
	sum.WinRate = wr * 100
	if sum.Wins > 0 {
		sum.AvgWinPct = winSum / float64(sum.Wins)
	}
	if losses > 0 {
		sum.AvgLossPct = lossSum / float64(losses)
	}
	sum.Expectancy = wr*sum.AvgWinPct + (1-wr)*sum.AvgLossPct
	if grossLoss < 0 {
		sum.ProfitFactor = grossProfit / -grossLoss
	} else if grossProfit > 0 {
		sum.ProfitFactor = math.Inf(1)
	}

	var total float64
	for _, r := range returns {
		total += r
	}
	sum.MeanReturnPct = total / float64(len(returns))

	sort.Float64s(returns)
	n := len(returns)
	if n%2 == 1 {
		sum.MedianReturnPct = returns[n/2]
	} else {
		sum.MedianReturnPct = (returns[n/2-1] + returns[n/2]) / 2
	}
}
