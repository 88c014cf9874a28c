package analysis

import "math"

// SteadyState returns the earliest time after which every sample in a
// trailing window of the given duration stays within tol of the final
// value, relative to its magnitude (absolute below 1). It reports false
// when the series has not settled for at least one window.
func SteadyState(times, data []float64, tol, window float64) (float64, bool) {
	n := len(data)
	if n == 0 || n != len(times) {
		return 0, false
	}
	final := data[n-1]
	scale := math.Max(1, math.Abs(final))

	start := n - 1
	for start > 0 && math.Abs(data[start-1]-final) <= tol*scale {
		start--
	}
	if times[n-1]-times[start] < window {
		return 0, false
	}
	return times[start], true
}

// Crossing is one pass of a series through a threshold.
type Crossing struct {
	Time   float64
	Rising bool
}

// Crossings finds threshold passes, interpolating the time linearly
// between the samples on either side.
func Crossings(times, data []float64, threshold float64) []Crossing {
	var out []Crossing
	for i := 1; i < len(data) && i < len(times); i++ {
		prev, curr := data[i-1]-threshold, data[i]-threshold
		if prev == curr || (prev < 0) == (curr < 0) {
			continue
		}
		frac := prev / (prev - curr)
		out = append(out, Crossing{
			Time:   times[i-1] + frac*(times[i]-times[i-1]),
			Rising: curr >= 0,
		})
	}
	return out
}
