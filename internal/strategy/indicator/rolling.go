package indicator

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// window returns series[end-n+1 : end+1], or false when it does not fit.
func window(series []float64, n, end int) ([]float64, bool) {
	if n <= 0 || end < 0 || end >= len(series) || end-n+1 < 0 {
		return nil, false
	}
	return series[end-n+1 : end+1], true
}

// SMAAt is the n-period simple moving average ending at index end.
func SMAAt(series []float64, n, end int) Value {
	w, ok := window(series, n, end)
	if !ok {
		return None
	}
	return Some(floats.Sum(w) / float64(n))
}

// SMA is the n-period simple moving average of the latest element.
func SMA(series []float64, n int) Value {
	return SMAAt(series, n, len(series)-1)
}

// SumAt is the n-period rolling sum ending at index end.
func SumAt(series []float64, n, end int) Value {
	w, ok := window(series, n, end)
	if !ok {
		return None
	}
	return Some(floats.Sum(w))
}

// MaxAt is the n-period rolling maximum ending at index end.
func MaxAt(series []float64, n, end int) Value {
	w, ok := window(series, n, end)
	if !ok {
		return None
	}
	return Some(floats.Max(w))
}

// MinAt is the n-period rolling minimum ending at index end.
func MinAt(series []float64, n, end int) Value {
	w, ok := window(series, n, end)
	if !ok {
		return None
	}
	return Some(floats.Min(w))
}

// Returns is the simple percentage change series; element i is
// series[i+1]/series[i]-1. Non-positive bases yield NaN.
func Returns(series []float64) []float64 {
	if len(series) < 2 {
		return nil
	}
	out := make([]float64, len(series)-1)
	for i := 1; i < len(series); i++ {
		if series[i-1] <= 0 {
			out[i-1] = math.NaN()
			continue
		}
		out[i-1] = series[i]/series[i-1] - 1
	}
	return out
}
