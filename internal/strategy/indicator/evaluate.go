package indicator

import (
	"fmt"
	"time"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/history"
)

// Options 지표 계산 옵션
type Options struct {
	// VolumeRatioSentinel is used when the 20-bar volume average is
	// unavailable or zero.
	VolumeRatioSentinel float64

	// Benchmark enables beta when set.
	Benchmark *history.History
}

// Result is the full indicator set of the latest bar.
type Result struct {
	Symbol      string      `json:"symbol"`
	Date        time.Time   `json:"date"`
	Close       float64     `json:"close"`
	Bars        int         `json:"bars"`
	Trend       Trend       `json:"trend"`
	Volume      Volume      `json:"volume"`
	Flow        FlowSignal  `json:"flow"`
	Breakout    Breakout    `json:"breakout"`
	Candle      Candle      `json:"candle"`
	Beta        Value       `json:"beta"`
	Suitability Suitability `json:"suitability"`

	// 최근 20일 고가/저가 (일봉 고가·저가 기준)
	RecentHigh Value `json:"recent_high"`
	RecentLow  Value `json:"recent_low"`
}

// Evaluate computes every indicator for the latest bar of h.
func Evaluate(h *history.History, opts Options) (Result, error) {
	if h == nil {
		return Result{}, fmt.Errorf("%w: nil history", history.ErrInsufficientHistory)
	}
	last, ok := h.Last()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s has no bars", history.ErrInsufficientHistory, h.Symbol)
	}
	if err := h.Validate(); err != nil {
		return Result{}, err
	}

	closes := h.Closes()
	volumes := h.Volumes()
	foreign, institution := alignedFlows(h)
	recentHigh, recentLow := RecentRange(h.Bars)

	r := Result{
		Symbol:   h.Symbol,
		Date:     last.Date,
		Close:    last.Close,
		Bars:     len(h.Bars),
		Trend:    TrendOf(closes),
		Volume:   VolumeRatio(volumes, opts.VolumeRatioSentinel),
		Flow:     FlowScore(foreign, institution),
		Breakout: BreakoutOf(closes, volumes),
		Candle:   CandleOf(last.Open, last.High, last.Low, last.Close),
		Beta:     Beta(h, opts.Benchmark),

		RecentHigh: recentHigh,
		RecentLow:  recentLow,
	}
	r.Suitability = SuitabilityOf(closes, r.Volume)
	return r, nil
}
