package indicator

// 이동평균 기간
const (
	PeriodShort = 5
	PeriodMid   = 20
	PeriodLong  = 60
	PeriodMax   = 120
)

// Trend 이동평균 정배열 여부
type Trend struct {
	MA5   Value `json:"ma5"`
	MA20  Value `json:"ma20"`
	MA60  Value `json:"ma60"`
	MA120 Value `json:"ma120"`

	Short Flag `json:"short"` // MA5 > MA20
	Mid   Flag `json:"mid"`   // MA20 > MA60
	Long  Flag `json:"long"`  // MA60 > MA120
}

// TrendOf computes the moving averages and trend flags of the latest bar.
func TrendOf(closes []float64) Trend {
	t := Trend{
		MA5:   SMA(closes, PeriodShort),
		MA20:  SMA(closes, PeriodMid),
		MA60:  SMA(closes, PeriodLong),
		MA120: SMA(closes, PeriodMax),
	}
	t.Short = greater(t.MA5, t.MA20)
	t.Mid = greater(t.MA20, t.MA60)
	t.Long = greater(t.MA60, t.MA120)
	return t
}

// Available reports whether all three flags could be computed.
func (t Trend) Available() bool {
	return t.Short.Valid && t.Mid.Valid && t.Long.Valid
}
