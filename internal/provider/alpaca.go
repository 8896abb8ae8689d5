package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"vesper/internal/domain"
	"vesper/internal/util"
)

// Compile-time interface check.
var _ MarketData = (*Alpaca)(nil)

const (
	retryAttempts = 3
	retryBase     = time.Second
)

// Alpaca implements MarketData on the Alpaca data and trading APIs. All
// remote calls go through a token-bucket rate limiter and retry with
// exponential backoff.
type Alpaca struct {
	md      *marketdata.Client
	trading *alpaca.Client
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewAlpaca creates an Alpaca provider. baseURL and dataURL override the
// default endpoints when non-empty; ratePerMin bounds outbound calls.
func NewAlpaca(apiKey, apiSecret, baseURL, dataURL string, ratePerMin int) *Alpaca {
	mdOpts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		mdOpts.BaseURL = dataURL
	}
	return &Alpaca{
		md: marketdata.NewClient(mdOpts),
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		limiter: util.NewRateLimiter(ratePerMin),
		log:     slog.Default().With("provider", "alpaca"),
	}
}

// DailyBars fetches daily bars for a batch of symbols in one API call.
func (a *Alpaca) DailyBars(ctx context.Context, symbols []string, start, end time.Time) ([]domain.Bar, error) {
	return a.multiBars(ctx, symbols, marketdata.OneDay, start, end)
}

// IntradayBars fetches sub-day bars at the granularity for a batch of
// symbols.
func (a *Alpaca) IntradayBars(ctx context.Context, symbols []string, g domain.Granularity, start, end time.Time) ([]domain.Bar, error) {
	minutes := g.Minutes()
	if minutes == 0 {
		return nil, fmt.Errorf("granularity %q is not intraday", g)
	}
	return a.multiBars(ctx, symbols, marketdata.NewTimeFrame(minutes, marketdata.Min), start, end)
}

func (a *Alpaca) multiBars(ctx context.Context, symbols []string, tf marketdata.TimeFrame, start, end time.Time) ([]domain.Bar, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var multiBars map[string][]marketdata.Bar
	err := util.Retry(ctx, retryAttempts, retryBase, func() error {
		var err error
		multiBars, err = a.md.GetMultiBars(symbols, marketdata.GetBarsRequest{
			TimeFrame: tf,
			Start:     start,
			End:       end,
			Feed:      "sip",
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for symbol, symBars := range multiBars {
		for _, b := range symBars {
			bars = append(bars, domain.Bar{
				Symbol:    strings.ToUpper(symbol),
				Timestamp: b.Timestamp,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    int64(b.Volume),
			})
		}
	}
	return bars, nil
}

// TradingCalendar returns the trading days in [start, end] from the Alpaca
// calendar API.
func (a *Alpaca) TradingCalendar(ctx context.Context, start, end time.Time) ([]string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var days []alpaca.CalendarDay
	err := util.Retry(ctx, retryAttempts, retryBase, func() error {
		var err error
		days, err = a.trading.GetCalendar(alpaca.GetCalendarRequest{
			Start: start,
			End:   end,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetCalendar: %w", err)
	}

	dates := make([]string, 0, len(days))
	for _, d := range days {
		dates = append(dates, d.Date)
	}
	return dates, nil
}
