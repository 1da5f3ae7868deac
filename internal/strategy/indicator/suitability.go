package indicator

// SlopeLookback MA120 기울기 측정 간격
const SlopeLookback = 5

// SuitabilityVolumeRatio 매매 적합 최소 거래량 비율
const SuitabilityVolumeRatio = 2.0

// Suitability 매매 적합성
type Suitability struct {
	AboveMA120  Flag `json:"above_ma120"`  // close > MA120
	MA120Rising Flag `json:"ma120_rising"` // MA120 - MA120[5봉 전] > 0
	VolumeSurge bool `json:"volume_surge"` // volume ratio > 2
}

// OK reports whether every condition holds.
func (s Suitability) OK() bool {
	return s.AboveMA120.Bit() == 1 && s.MA120Rising.Bit() == 1 && s.VolumeSurge
}

// SuitabilityOf evaluates the latest bar. A sentinel volume ratio never
// counts as a surge.
func SuitabilityOf(closes []float64, volume Volume) Suitability {
	last := len(closes) - 1
	ma := SMAAt(closes, PeriodMax, last)
	prev := SMAAt(closes, PeriodMax, last-SlopeLookback)

	s := Suitability{
		VolumeSurge: !volume.Sentinel && volume.Ratio > SuitabilityVolumeRatio,
	}
	if last >= 0 {
		s.AboveMA120 = greater(Some(closes[last]), ma)
	}
	if ma.Valid && prev.Valid {
		s.MA120Rising = greater(Some(ma.V-prev.V), Some(0))
	}
	return s
}
