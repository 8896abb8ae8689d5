// Package report renders grid-search results and trade logs to plain text.
// The engine emits structs only; everything presentation-related lives here.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"vesper/internal/grid"
)

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatMoney formats a capital amount with comma separators and two
// decimals.
func FormatMoney(v float64) string {
	whole := int(math.Abs(v))
	frac := math.Abs(v) - float64(whole)
	s := fmt.Sprintf("%s.%02d", FormatInt(whole), int(math.Round(frac*100))%100)
	if v < 0 {
		return "-" + s
	}
	return s
}

// FormatPct formats a signed percentage, "-" for NaN.
func FormatPct(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%+.2f%%", v)
}

// FormatRatio formats a profit factor, "inf" for an all-win run.
func FormatRatio(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", v)
}

// RankingTable renders the top ranked combinations, best first. Unranked
// combinations are summarized in a trailing count line.
func RankingTable(results []grid.Result, top int) string {
	var b strings.Builder
	b.WriteString("rank  combination                       signals  win%    trades  expect   pfactor  maxdd    final          score\n")

	shown, unranked := 0, 0
	for _, r := range results {
		if !r.Ranked {
			unranked++
			continue
		}
		if shown >= top {
			continue
		}
		shown++
		fmt.Fprintf(&b, "%-5d %-33s %-8d %-7.1f %-7d %-8.2f %-8s %-8.2f %-14s %.2f\n",
			shown, r.Label,
			r.SignalCount, r.SignalWinRate,
			r.Summary.TradeCount, r.Summary.Expectancy,
			FormatRatio(r.Summary.ProfitFactor),
			r.Summary.MaxDrawdownPct,
			FormatMoney(r.Summary.FinalCapital),
			r.Score,
		)
	}
	if unranked > 0 {
		fmt.Fprintf(&b, "(%d combinations below the trade minimum, excluded from ranking)\n", unranked)
	}
	return b.String()
}

// Rollups renders mean scores grouped along each grid dimension so a glance
// shows which granularity, policy, or stop width carries the performance.
func Rollups(results []grid.Result) string {
	var b strings.Builder
	b.WriteString(rollup(results, "by granularity", func(r grid.Result) string {
		return string(r.Combo.Granularity)
	}))
	b.WriteString(rollup(results, "by trigger policy", func(r grid.Result) string {
		return r.Combo.Policy.Label()
	}))
	b.WriteString(rollup(results, "by trailing stop", func(r grid.Result) string {
		return fmt.Sprintf("%g%%", r.Combo.TrailingPct*100)
	}))
	return b.String()
}

func rollup(results []grid.Result, title string, key func(grid.Result) string) string {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range results {
		if !r.Ranked {
			continue
		}
		k := key(r)
		sums[k] += r.Score
		counts[k]++
	}
	if len(sums) == 0 {
		return ""
	}

	keys := make([]string, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return sums[keys[i]]/float64(counts[keys[i]]) > sums[keys[j]]/float64(counts[keys[j]])
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %-16s mean score %6.2f  (%d ranked)\n", k, sums[k]/float64(counts[k]), counts[k])
	}
	return b.String()
}

// ExitReasons renders the exit-reason distribution of one combination's
// realized trades.
func ExitReasons(r grid.Result) string {
	if len(r.Trades) == 0 {
		return "no realized trades\n"
	}
	counts := make(map[string]int)
	for _, t := range r.Trades {
		counts[string(t.ExitReason)]++
	}
	reasons := make([]string, 0, len(counts))
	for k := range counts {
		reasons = append(reasons, k)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if counts[reasons[i]] != counts[reasons[j]] {
			return counts[reasons[i]] > counts[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})

	var b strings.Builder
	fmt.Fprintf(&b, "exit reasons for %s:\n", r.Label)
	for _, reason := range reasons {
		fmt.Fprintf(&b, "  %-16s %5d  (%.1f%%)\n",
			reason, counts[reason], float64(counts[reason])/float64(len(r.Trades))*100)
	}
	return b.String()
}

// TradeLog renders one combination's realized trades, oldest first. The cash
// and equity columns trace the run's equity curve fill by fill.
func TradeLog(r grid.Result) string {
	var b strings.Builder
	b.WriteString("entry       symbol  shares  entry     exit      reason           net%     pnl           cash           equity\n")
	for _, t := range r.Trades {
		fmt.Fprintf(&b, "%-11s %-7s %-7d %-9.2f %-9.2f %-16s %-8s %-13s %-14s %s\n",
			t.EntryDate, t.Symbol, t.Shares, t.EntryPrice, t.ExitPrice,
			t.ExitReason, FormatPct(t.NetReturnPct), FormatMoney(t.PnL),
			FormatMoney(t.CashAfter), FormatMoney(t.EquityAfter))
	}
	return b.String()
}

// Summary renders the full report: ranking, rollups, and the best
// combination's exit distribution.
func Summary(results []grid.Result, top int) string {
	var b strings.Builder
	b.WriteString(RankingTable(results, top))
	b.WriteByte('\n')
	b.WriteString(Rollups(results))
	for _, r := range results {
		if r.Ranked {
			b.WriteByte('\n')
			b.WriteString(ExitReasons(r))
			break
		}
	}
	return b.String()
}
