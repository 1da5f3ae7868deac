package indicator

// VolumeWindow 거래량 평균 기간
const VolumeWindow = 20

// Volume 거래량 비율
type Volume struct {
	Latest  Value   `json:"latest"`
	Average Value   `json:"average"` // 최근 20일 평균 (당일 포함)
	Ratio   float64 `json:"ratio"`

	// Sentinel is true when Ratio holds the configured fallback because the
	// average was unavailable or zero.
	Sentinel bool `json:"sentinel"`
}

// VolumeRatio divides the latest volume by its trailing 20-bar average.
// When the average is unavailable or zero, Ratio is set to sentinel.
func VolumeRatio(volumes []float64, sentinel float64) Volume {
	v := Volume{Average: SMA(volumes, VolumeWindow)}
	if n := len(volumes); n > 0 {
		v.Latest = Some(volumes[n-1])
	}

	if !v.Latest.Valid || !v.Average.Valid || v.Average.V == 0 {
		v.Ratio = sentinel
		v.Sentinel = true
		return v
	}
	v.Ratio = v.Latest.V / v.Average.V
	return v
}
