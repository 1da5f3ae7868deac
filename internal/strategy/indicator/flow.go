package indicator

import "github.com/Jeongbyungkyu/korea-investment/internal/domain/history"

// FlowWindow 수급 합산 기간
const FlowWindow = 20

// FlowSignal 외국인/기관 순매수 여부
type FlowSignal struct {
	ForeignSum     Value `json:"foreign_sum"`
	InstitutionSum Value `json:"institution_sum"`

	Foreign     Flag `json:"foreign"`     // 20일 외국인 순매수 합 > 0
	Institution Flag `json:"institution"` // 20일 기관 순매수 합 > 0
}

// FlowScore sums the trailing 20 entries of each flow series.
func FlowScore(foreign, institution []float64) FlowSignal {
	f := FlowSignal{
		ForeignSum:     SumAt(foreign, FlowWindow, len(foreign)-1),
		InstitutionSum: SumAt(institution, FlowWindow, len(institution)-1),
	}
	f.Foreign = greater(f.ForeignSum, Some(0))
	f.Institution = greater(f.InstitutionSum, Some(0))
	return f
}

// Mean is the average of the two flags as 0/1 values.
func (f FlowSignal) Mean() float64 {
	return (f.Foreign.Bit() + f.Institution.Bit()) / 2
}

// alignedFlows returns the flow series restricted to the dates of the last
// FlowWindow bars. Flows after the latest bar or before the window are
// dropped.
func alignedFlows(h *history.History) (foreign, institution []float64) {
	n := len(h.Bars)
	if n == 0 {
		return nil, nil
	}
	from := h.Bars[max(0, n-FlowWindow)].Date
	to := h.Bars[n-1].Date

	for _, f := range h.Flows {
		if f.Date.Before(from) && !sameDate(f.Date, from) {
			continue
		}
		if f.Date.After(to) && !sameDate(f.Date, to) {
			continue
		}
		foreign = append(foreign, float64(f.ForeignNet))
		institution = append(institution, float64(f.InstitutionNet))
	}
	return foreign, institution
}
