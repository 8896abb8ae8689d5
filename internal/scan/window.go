package scan

import (
	"math"
	"sort"
)

// returnWindow is a fixed-capacity rolling window of bar returns. The rolling
// max is maintained incrementally with a monotonic deque so a day-by-day scan
// never re-walks the window; the median of positive returns is computed on
// demand from the buffer.
type returnWindow struct {
	capacity int
	buf      []float64
	pos      int // total values pushed so far
	size     int

	// Monotonic max deque: (push position, value), values strictly
	// decreasing front to back.
	deque []maxEntry
}

type maxEntry struct {
	pos int
	val float64
}

func newReturnWindow(capacity int) *returnWindow {
	return &returnWindow{
		capacity: capacity,
		buf:      make([]float64, capacity),
	}
}

// Push appends one return, evicting the oldest once the window is full. NaN
// values are dropped silently so a single bad bar cannot poison the max.
func (w *returnWindow) Push(v float64) {
	if math.IsNaN(v) {
		return
	}
	w.buf[w.pos%w.capacity] = v
	for len(w.deque) > 0 && w.deque[len(w.deque)-1].val <= v {
		w.deque = w.deque[:len(w.deque)-1]
	}
	w.deque = append(w.deque, maxEntry{pos: w.pos, val: v})
	w.pos++
	if w.size < w.capacity {
		w.size++
	}
	// Evict deque entries that slid out of the window.
	for len(w.deque) > 0 && w.deque[0].pos < w.pos-w.capacity {
		w.deque = w.deque[1:]
	}
}

// Full reports whether the window holds its full capacity of returns.
func (w *returnWindow) Full() bool { return w.size == w.capacity }

// Len returns the number of returns currently held.
func (w *returnWindow) Len() int { return w.size }

// Max returns the window maximum; false when the window is empty.
func (w *returnWindow) Max() (float64, bool) {
	if len(w.deque) == 0 {
		return 0, false
	}
	return w.deque[0].val, true
}

// MedianPositive returns the median of the window's strictly positive
// returns; false when the window holds no positive return.
func (w *returnWindow) MedianPositive() (float64, bool) {
	pos := make([]float64, 0, w.size)
	for i := 0; i < w.size; i++ {
		if v := w.buf[i]; v > 0 {
			pos = append(pos, v)
		}
	}
	if len(pos) == 0 {
		return 0, false
	}
	sort.Float64s(pos)
	n := len(pos)
	if n%2 == 1 {
		return pos[n/2], true
	}
	return (pos[n/2-1] + pos[n/2]) / 2, true
}
