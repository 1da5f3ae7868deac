package indicator

import (
	"gonum.org/v1/gonum/floats"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/history"
)

// RangeWindow 최근 고가/저가 기간
const RangeWindow = 20

// RecentRange is the highest bar high and lowest bar low over the last
// RangeWindow bars. Shorter histories use every bar they have.
func RecentRange(bars []history.Bar) (high, low Value) {
	if len(bars) == 0 {
		return None, None
	}
	tail := bars[max(0, len(bars)-RangeWindow):]
	highs := make([]float64, len(tail))
	lows := make([]float64, len(tail))
	for i, b := range tail {
		highs[i] = b.High
		lows[i] = b.Low
	}
	return Some(floats.Max(highs)), Some(floats.Min(lows))
}
