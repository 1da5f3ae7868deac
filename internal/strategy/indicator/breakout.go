package indicator

// BreakoutWindow 돌파 기준 기간
const BreakoutWindow = 20

// VolumeConfirmMultiple 돌파 시 거래량 확인 배수
const VolumeConfirmMultiple = 1.5

// Breakout 전고점 돌파
type Breakout struct {
	High20     Value `json:"high20"` // 당일 포함 20일 최고 종가
	Low20      Value `json:"low20"`
	PrevHigh20 Value `json:"prev_high20"` // 전일 기준 20일 최고 종가

	IsBreakout      bool `json:"is_breakout"`
	VolumeConfirmed bool `json:"volume_confirmed"`
}

// BreakoutAt evaluates bar i: a breakout is a close above the previous bar's
// 20-bar rolling maximum. Volume is confirmed when volume[i] exceeds 1.5x its
// 20-bar average.
func BreakoutAt(closes, volumes []float64, i int) Breakout {
	b := Breakout{
		High20:     MaxAt(closes, BreakoutWindow, i),
		Low20:      MinAt(closes, BreakoutWindow, i),
		PrevHigh20: MaxAt(closes, BreakoutWindow, i-1),
	}
	if i < 0 || i >= len(closes) {
		return b
	}

	b.IsBreakout = b.PrevHigh20.Valid && closes[i] > b.PrevHigh20.V

	if avg := SMAAt(volumes, VolumeWindow, i); avg.Valid && i < len(volumes) {
		b.VolumeConfirmed = volumes[i] > VolumeConfirmMultiple*avg.V
	}
	return b
}

// BreakoutOf evaluates the latest bar.
func BreakoutOf(closes, volumes []float64) Breakout {
	return BreakoutAt(closes, volumes, len(closes)-1)
}

// Component is 1 for a volume-confirmed breakout, 0.5 for an unconfirmed
// one and 0 otherwise.
func (b Breakout) Component() float64 {
	switch {
	case b.IsBreakout && b.VolumeConfirmed:
		return 1
	case b.IsBreakout:
		return 0.5
	default:
		return 0
	}
}
