// Package scoring combines the indicator set into one score per security and
// ranks a universe by it.
package scoring

import (
	"fmt"
	"math"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/history"
	"github.com/Jeongbyungkyu/korea-investment/internal/domain/ranking"
	"github.com/Jeongbyungkyu/korea-investment/internal/strategy/indicator"
)

// Weights 점수 가중치
type Weights struct {
	Trend    float64
	Volume   float64
	Flow     float64
	Breakout float64
	Candle   float64

	// 추세 내부 가중치 (단기/중기/장기)
	TrendShort float64
	TrendMid   float64
	TrendLong  float64
}

// DefaultWeights returns the standard weighting.
func DefaultWeights() Weights {
	return Weights{
		Trend:      0.30,
		Volume:     0.20,
		Flow:       0.20,
		Breakout:   0.15,
		Candle:     0.15,
		TrendShort: 0.4,
		TrendMid:   0.3,
		TrendLong:  0.3,
	}
}

// VolumeRatioCap 거래량 비율 상한
const VolumeRatioCap = 2.0

// DefaultMinBars MA120 계산에 필요한 최소 일봉 수
const DefaultMinBars = indicator.PeriodMax

// Scorer 종목 점수 계산기
type Scorer struct {
	weights  Weights
	minBars  int
	sentinel float64
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithWeights overrides the default weights.
func WithWeights(w Weights) Option {
	return func(s *Scorer) { s.weights = w }
}

// WithMinBars sets the minimum bar count; values below 120 still require
// every trend flag to be computable.
func WithMinBars(n int) Option {
	return func(s *Scorer) { s.minBars = n }
}

// WithVolumeRatioSentinel sets the ratio used when the volume average is
// unavailable or zero.
func WithVolumeRatioSentinel(v float64) Option {
	return func(s *Scorer) { s.sentinel = v }
}

// NewScorer 새 Scorer 생성
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		weights: DefaultWeights(),
		minBars: DefaultMinBars,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes the weighted score of the latest bar of h. Histories too
// short for the trend averages yield ErrInsufficientHistory.
func (s *Scorer) Score(h *history.History) (ranking.ScoreEntry, error) {
	if h == nil {
		return ranking.ScoreEntry{}, fmt.Errorf("%w: nil history", history.ErrInsufficientHistory)
	}
	if len(h.Bars) < s.minBars {
		return ranking.ScoreEntry{}, fmt.Errorf("%w: %s has %d bars, need %d",
			history.ErrInsufficientHistory, h.Symbol, len(h.Bars), s.minBars)
	}

	res, err := indicator.Evaluate(h, indicator.Options{VolumeRatioSentinel: s.sentinel})
	if err != nil {
		return ranking.ScoreEntry{}, err
	}
	return s.FromIndicators(h.Name, res)
}

// FromIndicators scores an already evaluated indicator set.
func (s *Scorer) FromIndicators(name string, res indicator.Result) (ranking.ScoreEntry, error) {
	if !res.Trend.Available() {
		return ranking.ScoreEntry{}, fmt.Errorf("%w: %s trend needs %d bars, has %d",
			history.ErrInsufficientHistory, res.Symbol, indicator.PeriodMax, res.Bars)
	}

	w := s.weights
	trend := w.TrendShort*res.Trend.Short.Bit() +
		w.TrendMid*res.Trend.Mid.Bit() +
		w.TrendLong*res.Trend.Long.Bit()

	b := ranking.ScoreBreakdown{
		Trend:    w.Trend * trend,
		Volume:   w.Volume * math.Min(res.Volume.Ratio, VolumeRatioCap) / VolumeRatioCap,
		Flow:     w.Flow * res.Flow.Mean(),
		Breakout: w.Breakout * res.Breakout.Component(),
		Candle:   w.Candle * res.Candle.Component(),
	}

	return ranking.ScoreEntry{
		Symbol:    res.Symbol,
		Name:      name,
		Score:     b.Total(),
		Breakdown: b,
	}, nil
}
