// Package config loads the vesper YAML configuration and applies environment
// variable overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the vesper backtester.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Logging  Logging        `yaml:"logging"`
	Provider Provider       `yaml:"provider"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Backtest BacktestConfig `yaml:"backtest"`
	Pool     PoolConfig     `yaml:"pool"`
	Grid     GridConfig     `yaml:"grid"`
	Ledger   LedgerConfig   `yaml:"ledger"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir          string `yaml:"data_dir"`
	SQLitePath       string `yaml:"sqlite_path"`
	FundamentalsPath string `yaml:"fundamentals_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// Provider holds credentials and endpoints for the market-data provider.
type Provider struct {
	APIKey         string `yaml:"api_key"`
	APISecret      string `yaml:"api_secret"`
	BaseURL        string `yaml:"base_url"`
	DataURL        string `yaml:"data_url"`
	CalendarSymbol string `yaml:"calendar_symbol"` // proxy symbol for the trading calendar
}

// FetchConfig controls the bar-gathering job.
type FetchConfig struct {
	Symbols         []string `yaml:"symbols"`
	StartDate       string   `yaml:"start_date"`
	EndDate         string   `yaml:"end_date"`
	Granularities   []string `yaml:"granularities"`
	BatchSize       int      `yaml:"batch_size"`
	MaxWorkers      int      `yaml:"max_workers"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
}

// BacktestConfig bounds a backtest run.
type BacktestConfig struct {
	StartDate      string `yaml:"start_date"`
	EndDate        string `yaml:"end_date"`
	MaxInstruments int    `yaml:"max_instruments"`
	CooldownDays   int    `yaml:"cooldown_days"`
	MinDayBars     int    `yaml:"min_day_bars"`
}

// CapTier is one (cap floor, max price ratio) step of the drawdown screen.
// Tiers are evaluated in descending cap-floor order; the first tier whose
// floor the instrument's market cap meets decides the required drawdown.
type CapTier struct {
	CapFloor      float64 `yaml:"cap_floor"`
	MaxPriceRatio float64 `yaml:"max_price_ratio"`
}

// PoolConfig parameterizes the eligibility screen.
type PoolConfig struct {
	MinMarketCap      float64   `yaml:"min_market_cap"`
	DefaultPriceRatio float64   `yaml:"default_price_ratio"`
	Tiers             []CapTier `yaml:"tiers"`
	TrailingDays      int       `yaml:"trailing_days"`
	MinBars           int       `yaml:"min_bars"`
	RangeFloor        float64   `yaml:"range_floor"` // 0 disables the free-fall guard
	ExcludeST         bool      `yaml:"exclude_st"`
	MinListingDays    int       `yaml:"min_listing_days"`
}

// MultiDayExit parameterizes the multi-day trailing/breakeven exit.
type MultiDayExit struct {
	MaxHoldDays         int     `yaml:"max_hold_days"`
	InitialStopPct      float64 `yaml:"initial_stop_pct"`
	BreakevenTriggerPct float64 `yaml:"breakeven_trigger_pct"`
	TrailingProfitPct   float64 `yaml:"trailing_profit_pct"`
}

// GridConfig spans the parameter search space.
type GridConfig struct {
	Granularities     []string     `yaml:"granularities"`
	Lookbacks         []string     `yaml:"lookbacks"`
	IncludeMaxBreak   bool         `yaml:"include_max_break"`
	MedianMultipliers []float64    `yaml:"median_multipliers"`
	TrailingStops     []float64    `yaml:"trailing_stops"`
	FloorStop         float64      `yaml:"floor_stop"`
	ExitPolicy        string       `yaml:"exit_policy"` // intraday_trailing | next_bar | multi_day
	MultiDay          MultiDayExit `yaml:"multi_day"`
	MinTrades         int          `yaml:"min_trades"`
	Workers           int          `yaml:"workers"`
}

// LedgerConfig defines capital and risk-control parameters.
type LedgerConfig struct {
	InitialCapital         float64 `yaml:"initial_capital"`
	MaxPerTradeNotional    float64 `yaml:"max_per_trade_notional"`
	CommissionPerSide      float64 `yaml:"commission_per_side"`
	CommissionBps          float64 `yaml:"commission_bps"`
	SellTaxRate            float64 `yaml:"sell_tax_rate"`
	MaxConcurrentPositions int     `yaml:"max_concurrent_positions"`
	DailyLossLimit         float64 `yaml:"daily_loss_limit"` // negative
	MaxConsecutiveLosses   int     `yaml:"max_consecutive_losses"`
	TotalLossLimit         float64 `yaml:"total_loss_limit"` // negative
	Settlement             string  `yaml:"settlement"`       // t_plus_1 | same_day
	RoundLot               int64   `yaml:"round_lot"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would make a run meaningless. Expected
// runtime conditions (missing bars, empty pools) are not validated here; only
// contract-level mistakes are.
func (c *Config) Validate() error {
	if c.Ledger.InitialCapital <= 0 {
		return fmt.Errorf("ledger.initial_capital must be positive, got %v", c.Ledger.InitialCapital)
	}
	if c.Ledger.Settlement != "t_plus_1" && c.Ledger.Settlement != "same_day" {
		return fmt.Errorf("ledger.settlement must be t_plus_1 or same_day, got %q", c.Ledger.Settlement)
	}
	switch c.Grid.ExitPolicy {
	case "intraday_trailing", "next_bar", "multi_day":
	default:
		return fmt.Errorf("grid.exit_policy must be intraday_trailing, next_bar, or multi_day, got %q", c.Grid.ExitPolicy)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Provider.CalendarSymbol == "" {
		cfg.Provider.CalendarSymbol = "SPY"
	}
	if cfg.Backtest.CooldownDays == 0 {
		cfg.Backtest.CooldownDays = 2
	}
	if cfg.Backtest.MinDayBars == 0 {
		cfg.Backtest.MinDayBars = 5
	}
	if cfg.Pool.TrailingDays == 0 {
		cfg.Pool.TrailingDays = 250
	}
	if cfg.Pool.MinBars == 0 {
		cfg.Pool.MinBars = 300
	}
	if cfg.Grid.ExitPolicy == "" {
		cfg.Grid.ExitPolicy = "intraday_trailing"
	}
	if cfg.Grid.MinTrades == 0 {
		cfg.Grid.MinTrades = 5
	}
	if cfg.Grid.Workers == 0 {
		cfg.Grid.Workers = 4
	}
	if cfg.Ledger.Settlement == "" {
		cfg.Ledger.Settlement = "t_plus_1"
	}
	if cfg.Ledger.RoundLot == 0 {
		cfg.Ledger.RoundLot = 100
	}
	if cfg.Fetch.BatchSize == 0 {
		cfg.Fetch.BatchSize = 100
	}
	if cfg.Fetch.MaxWorkers == 0 {
		cfg.Fetch.MaxWorkers = 4
	}
	if cfg.Fetch.RateLimitPerMin == 0 {
		cfg.Fetch.RateLimitPerMin = 200
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("PROVIDER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("PROVIDER_API_SECRET"); v != "" {
		cfg.Provider.APISecret = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Provider.APISecret = v
	}
}
