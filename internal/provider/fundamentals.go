package provider

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"vesper/internal/pool"
)

// Compile-time interface check.
var _ Fundamentals = (*FileFundamentals)(nil)

// FileFundamentals serves a fundamentals snapshot from a YAML file. Backtests
// only need a point-in-time snapshot, so a checked-in file stands in for a
// live fundamentals feed.
type FileFundamentals struct {
	path string
}

// NewFileFundamentals creates a FileFundamentals reading from path.
func NewFileFundamentals(path string) *FileFundamentals {
	return &FileFundamentals{path: path}
}

type fundamentalsFile struct {
	Instruments []struct {
		Symbol      string  `yaml:"symbol"`
		MarketCap   float64 `yaml:"market_cap"`
		Industry    string  `yaml:"industry"`
		IsST        bool    `yaml:"is_st"`
		ListingDate string  `yaml:"listing_date"`
	} `yaml:"instruments"`
}

// Instruments loads and parses the snapshot.
func (f *FileFundamentals) Instruments(_ context.Context) (map[string]pool.Instrument, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}

	var file fundamentalsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing fundamentals %s: %w", f.path, err)
	}

	out := make(map[string]pool.Instrument, len(file.Instruments))
	for _, in := range file.Instruments {
		if in.Symbol == "" {
			return nil, fmt.Errorf("fundamentals %s: instrument with empty symbol", f.path)
		}
		out[in.Symbol] = pool.Instrument{
			Symbol:      in.Symbol,
			MarketCap:   in.MarketCap,
			Industry:    in.Industry,
			IsST:        in.IsST,
			ListingDate: in.ListingDate,
		}
	}
	return out, nil
}
