package indicator

import "math"

// Candle 캔들 형태
type Candle struct {
	Body         float64 `json:"body"`
	UpperShadow  float64 `json:"upper_shadow"`
	LowerShadow  float64 `json:"lower_shadow"`
	Bullish      bool    `json:"bullish"`
	BodyStrength float64 `json:"body_strength"` // body / (high - low), 0 when high == low
	ShadowRatio  float64 `json:"shadow_ratio"`  // (upper + lower) / body, 0 when body == 0
}

// CandleOf measures one bar.
func CandleOf(open, high, low, close float64) Candle {
	c := Candle{
		Body:        math.Abs(close - open),
		UpperShadow: high - math.Max(open, close),
		LowerShadow: math.Min(open, close) - low,
		Bullish:     close > open,
	}
	if rng := high - low; rng != 0 {
		c.BodyStrength = c.Body / rng
	}
	if c.Body != 0 {
		c.ShadowRatio = (c.UpperShadow + c.LowerShadow) / c.Body
	}
	return c
}

// Component is bullish x min(2 x bodyStrength, 1).
func (c Candle) Component() float64 {
	if !c.Bullish {
		return 0
	}
	return math.Min(2*c.BodyStrength, 1)
}
