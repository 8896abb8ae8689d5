// Package series provides in-memory, point-in-time indexed bar series.
// A Store is loaded once from a BarStore before a run and is read-only
// afterward; every lookup the scanner and exit simulator need is answered
// from memory without touching disk again.
package series

import (
	"context"
	"fmt"
	"sort"
	"time"

	"vesper/internal/domain"
	"vesper/internal/store"
)

// ---------------------------------------------------------------------------
// DayIndex
// ---------------------------------------------------------------------------

// DayIndex groups a chronological bar sequence by trading day. It answers the
// two queries the engine needs while honoring the no-lookahead rule: the bars
// of one day, and the full history strictly before a day.
type DayIndex struct {
	bars    []domain.Bar
	days    []string // sorted, one entry per distinct trading day
	offsets []int    // offsets[i] = index of the first bar of days[i]
}

// NewDayIndex builds an index over bars. The input is sorted by timestamp if
// it is not already.
func NewDayIndex(bars []domain.Bar) *DayIndex {
	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	idx := &DayIndex{bars: sorted}
	for i, b := range sorted {
		d := b.Date()
		if len(idx.days) == 0 || idx.days[len(idx.days)-1] != d {
			idx.days = append(idx.days, d)
			idx.offsets = append(idx.offsets, i)
		}
	}
	return idx
}

// Len returns the number of distinct trading days.
func (x *DayIndex) Len() int { return len(x.days) }

// Bars returns the full chronological bar sequence. Callers must not modify
// the slice.
func (x *DayIndex) Bars() []domain.Bar { return x.bars }

// BarCount returns the total number of bars.
func (x *DayIndex) BarCount() int { return len(x.bars) }

// Days returns the sorted trading days. Callers must not modify the slice.
func (x *DayIndex) Days() []string { return x.days }

// Day returns the i-th trading day.
func (x *DayIndex) Day(i int) string { return x.days[i] }

// DayBars returns the bars of one trading day in chronological order, or nil
// if the day is absent. The returned slice aliases the index.
func (x *DayIndex) DayBars(date string) []domain.Bar {
	i := sort.SearchStrings(x.days, date)
	if i >= len(x.days) || x.days[i] != date {
		return nil
	}
	return x.bars[x.offsets[i]:x.dayEnd(i)]
}

// HistoryBefore returns every bar strictly dated before date, in
// chronological order. The returned slice aliases the index.
func (x *DayIndex) HistoryBefore(date string) []domain.Bar {
	i := sort.SearchStrings(x.days, date)
	if i == len(x.days) {
		return x.bars
	}
	return x.bars[:x.offsets[i]]
}

// NextDay returns the first trading day strictly after date, or false when
// the index has no later day.
func (x *DayIndex) NextDay(date string) (string, bool) {
	i := sort.SearchStrings(x.days, date)
	if i < len(x.days) && x.days[i] == date {
		i++
	}
	if i >= len(x.days) {
		return "", false
	}
	return x.days[i], true
}

// DaysFrom returns the trading days starting at the first day strictly after
// date. The returned slice aliases the index.
func (x *DayIndex) DaysFrom(date string) []string {
	i := sort.SearchStrings(x.days, date)
	if i < len(x.days) && x.days[i] == date {
		i++
	}
	return x.days[i:]
}

func (x *DayIndex) dayEnd(i int) int {
	if i+1 < len(x.offsets) {
		return x.offsets[i+1]
	}
	return len(x.bars)
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

type seriesKey struct {
	symbol      string
	granularity domain.Granularity
}

// Store caches DayIndex instances per instrument and granularity. Load once,
// then read concurrently — the store is immutable after Preload returns.
type Store struct {
	source  store.BarStore
	indexes map[seriesKey]*DayIndex
}

// NewStore creates an empty Store reading from source.
func NewStore(source store.BarStore) *Store {
	return &Store{
		source:  source,
		indexes: make(map[seriesKey]*DayIndex),
	}
}

// Preload reads bars for every symbol and granularity in [start, end] and
// indexes them. Symbols with no bars are simply absent afterward; only real
// storage failures are returned.
func (s *Store) Preload(ctx context.Context, symbols []string, gs []domain.Granularity, start, end time.Time) error {
	for _, sym := range symbols {
		for _, g := range gs {
			bars, err := s.source.ReadBars(ctx, sym, g, start, end)
			if err != nil {
				return fmt.Errorf("loading %s %s bars: %w", sym, g, err)
			}
			if len(bars) == 0 {
				continue
			}
			s.indexes[seriesKey{sym, g}] = NewDayIndex(bars)
		}
	}
	return nil
}

// Put indexes a pre-fetched bar sequence directly, bypassing the BarStore.
// Used by tests and by callers that already hold bars in memory.
func (s *Store) Put(symbol string, g domain.Granularity, bars []domain.Bar) {
	if len(bars) == 0 {
		return
	}
	s.indexes[seriesKey{symbol, g}] = NewDayIndex(bars)
}

// Index returns the DayIndex for one symbol and granularity, or false when no
// bars were loaded for it.
func (s *Store) Index(symbol string, g domain.Granularity) (*DayIndex, bool) {
	idx, ok := s.indexes[seriesKey{symbol, g}]
	return idx, ok
}

// Symbols returns the sorted symbols that have data at the granularity.
func (s *Store) Symbols(g domain.Granularity) []string {
	var out []string
	for k := range s.indexes {
		if k.granularity == g {
			out = append(out, k.symbol)
		}
	}
	sort.Strings(out)
	return out
}
