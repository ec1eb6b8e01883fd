package conditioning

import (
	"math"
	"sort"
)

// RollingMedian returns the centered median of x over window samples.
// Missing samples are ignored, edge windows are truncated and an empty
// window yields NaN.
func RollingMedian(x []float64, window int) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if window < 1 {
		window = 1
	}
	half := window / 2
	w := newSortedWindow(window)
	lo, hi := 0, 0
	for i := 0; i < n; i++ {
		for ; hi < n && hi < i-half+window; hi++ {
			w.insert(x[hi])
		}
		for ; lo < i-half; lo++ {
			w.remove(x[lo])
		}
		out[i] = w.median()
	}
	return out
}

// Despike returns a copy of x with every sample further than threshold from
// its rolling median replaced by that median.
func Despike(x []float64, window int, threshold float64) []float64 {
	out := append([]float64(nil), x...)
	despikeInPlace(out, window, threshold)
	return out
}

func despikeInPlace(x []float64, window int, threshold float64) int {
	if len(x) == 0 {
		return 0
	}
	med := RollingMedian(x, window)
	n := 0
	for i, v := range x {
		if math.IsNaN(v) || math.IsNaN(med[i]) {
			continue
		}
		if math.Abs(v-med[i]) > threshold {
			x[i] = med[i]
			n++
		}
	}
	return n
}

// sortedWindow keeps the valid values of a sliding window in order.
type sortedWindow struct {
	vals []float64
}

func newSortedWindow(capacity int) *sortedWindow {
	return &sortedWindow{vals: make([]float64, 0, capacity)}
}

func (w *sortedWindow) insert(v float64) {
	if math.IsNaN(v) {
		return
	}
	i := sort.SearchFloat64s(w.vals, v)
	w.vals = append(w.vals, 0)
	copy(w.vals[i+1:], w.vals[i:])
	w.vals[i] = v
}

func (w *sortedWindow) remove(v float64) {
	if math.IsNaN(v) {
		return
	}
	i := sort.SearchFloat64s(w.vals, v)
	if i >= len(w.vals) || w.vals[i] != v {
		return
	}
	copy(w.vals[i:], w.vals[i+1:])
	w.vals = w.vals[:len(w.vals)-1]
}

func (w *sortedWindow) median() float64 {
	n := len(w.vals)
	switch {
	case n == 0:
		return math.NaN()
	case n%2 == 1:
		return w.vals[n/2]
	default:
		return (w.vals[n/2-1] + w.vals[n/2]) / 2
	}
}
