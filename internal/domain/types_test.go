package domain

import (
	"math"
	"testing"
	"time"
)

func TestGranularityBarsPerDay(t *testing.T) {
	cases := []struct {
		g    Granularity
		want int
	}{
		{Granularity5Min, 48},
		{Granularity15Min, 16},
		{Granularity30Min, 8},
		{GranularityDaily, 1},
	}
	for _, c := range cases {
		if got := c.g.BarsPerDay(); got != c.want {
			t.Errorf("BarsPerDay(%s) = %d, want %d", c.g, got, c.want)
		}
	}
}

func TestLookbackTradingDays(t *testing.T) {
	if d, ok := LookbackTradingDays("3m"); !ok || d != 63 {
		t.Errorf("LookbackTradingDays(3m) = %d, %v; want 63, true", d, ok)
	}
	if d, ok := LookbackTradingDays("1y"); !ok || d != 250 {
		t.Errorf("LookbackTradingDays(1y) = %d, %v; want 250, true", d, ok)
	}
	if _, ok := LookbackTradingDays("2w"); ok {
		t.Error("LookbackTradingDays(2w) should not be recognised")
	}
}

func TestBarReturn(t *testing.T) {
	b := Bar{Open: 10, Close: 10.5}
	if got := b.Return(); math.Abs(got-0.05) > 1e-12 {
		t.Errorf("Return = %v, want 0.05", got)
	}

	// Missing open must yield NaN, not a crash or a zero.
	zero := Bar{Open: 0, Close: 10}
	if !math.IsNaN(zero.Return()) {
		t.Errorf("Return with zero open = %v, want NaN", zero.Return())
	}
}

func TestBarDate(t *testing.T) {
	b := Bar{Timestamp: time.Date(2025, 3, 14, 10, 35, 0, 0, time.UTC)}
	if got := b.Date(); got != "2025-03-14" {
		t.Errorf("Date = %q, want 2025-03-14", got)
	}
}

func TestLimitPct(t *testing.T) {
	cases := []struct {
		code string
		want float64
	}{
		{"600519", 0.10}, // SSE main board
		{"000002", 0.10}, // SZSE main board
		{"300014", 0.20}, // ChiNext
		{"688126", 0.20}, // STAR
	}
	for _, c := range cases {
		if got := LimitPct(c.code); got != c.want {
			t.Errorf("LimitPct(%s) = %v, want %v", c.code, got, c.want)
		}
	}
}
