package util

import "sort"

// Calendar is an ordered index of trading days (YYYY-MM-DD strings). It
// answers next-day and day-distance queries for dates that may or may not be
// trading days themselves.
type Calendar struct {
	days  []string
	index map[string]int
}

// NewCalendar builds a Calendar from a list of trading days. The input is
// copied, sorted, and deduplicated.
func NewCalendar(days []string) *Calendar {
	sorted := make([]string, 0, len(days))
	seen := make(map[string]struct{}, len(days))
	for _, d := range days {
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)

	index := make(map[string]int, len(sorted))
	for i, d := range sorted {
		index[d] = i
	}
	return &Calendar{days: sorted, index: index}
}

// Len returns the number of trading days.
func (c *Calendar) Len() int { return len(c.days) }

// Days returns the ordered trading days. Callers must not mutate the slice.
func (c *Calendar) Days() []string { return c.days }

// Contains reports whether date is a trading day.
func (c *Calendar) Contains(date string) bool {
	_, ok := c.index[date]
	return ok
}

// Next returns the first trading day strictly after date. date itself need
// not be a trading day. ok is false when no later trading day exists.
func (c *Calendar) Next(date string) (string, bool) {
	i := sort.SearchStrings(c.days, date)
	if i < len(c.days) && c.days[i] == date {
		i++
	}
	if i >= len(c.days) {
		return "", false
	}
	return c.days[i], true
}

// DaysBetween returns the number of trading days after a, up to and
// including b. Returns 0 when b <= a.
func (c *Calendar) DaysBetween(a, b string) int {
	if b <= a {
		return 0
	}
	ia := sort.SearchStrings(c.days, a)
	if ia < len(c.days) && c.days[ia] == a {
		ia++
	}
	ib := sort.SearchStrings(c.days, b)
	if ib < len(c.days) && c.days[ib] == b {
		ib++
	}
	return ib - ia
}
