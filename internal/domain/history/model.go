package history

import (
	"fmt"
	"time"
)

// Bar 일봉
type Bar struct {
	Date   time.Time `json:"date" db:"trade_date"`
	Open   float64   `json:"open" db:"open_price"`
	High   float64   `json:"high" db:"high_price"`
	Low    float64   `json:"low" db:"low_price"`
	Close  float64   `json:"close" db:"close_price"`
	Volume int64     `json:"volume" db:"volume"`
	Amount int64     `json:"amount" db:"trading_value"` // 거래대금
}

// Flow 투자자별 순매수 (수량)
type Flow struct {
	Date           time.Time `json:"date" db:"trade_date"`
	ForeignNet     int64     `json:"foreign_net" db:"foreign_net_qty"`
	InstitutionNet int64     `json:"institution_net" db:"inst_net_qty"`
}

// History is the daily series of one security, oldest first.
type History struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name,omitempty"`
	Bars   []Bar  `json:"bars"`
	Flows  []Flow `json:"flows,omitempty"`
}

// Validate checks that bar and flow dates are strictly increasing.
func (h *History) Validate() error {
	for i := 1; i < len(h.Bars); i++ {
		if !h.Bars[i].Date.After(h.Bars[i-1].Date) {
			return fmt.Errorf("%w: %s bar %d (%s) not after %s", ErrOutOfOrder, h.Symbol, i,
				h.Bars[i].Date.Format("2006-01-02"), h.Bars[i-1].Date.Format("2006-01-02"))
		}
	}
	for i := 1; i < len(h.Flows); i++ {
		if !h.Flows[i].Date.After(h.Flows[i-1].Date) {
			return fmt.Errorf("%w: %s flow %d", ErrOutOfOrder, h.Symbol, i)
		}
	}
	return nil
}

// UpsertBar replaces the last bar when it has the same date, appends a newer
// bar, and rejects anything older than the last bar.
func (h *History) UpsertBar(b Bar) error {
	n := len(h.Bars)
	if n == 0 {
		h.Bars = append(h.Bars, b)
		return nil
	}

	last := h.Bars[n-1].Date
	switch {
	case sameDay(b.Date, last):
		h.Bars[n-1] = b
	case b.Date.After(last):
		h.Bars = append(h.Bars, b)
	default:
		return fmt.Errorf("%w: %s bar %s before %s", ErrOutOfOrder, h.Symbol,
			b.Date.Format("2006-01-02"), last.Format("2006-01-02"))
	}
	return nil
}

// Last returns the latest bar.
func (h *History) Last() (Bar, bool) {
	if len(h.Bars) == 0 {
		return Bar{}, false
	}
	return h.Bars[len(h.Bars)-1], true
}

// Clone returns a deep copy safe to hand to another goroutine.
func (h *History) Clone() *History {
	c := &History{Symbol: h.Symbol, Name: h.Name}
	c.Bars = append([]Bar(nil), h.Bars...)
	c.Flows = append([]Flow(nil), h.Flows...)
	return c
}

// Closes returns the close series.
func (h *History) Closes() []float64 {
	out := make([]float64, len(h.Bars))
	for i, b := range h.Bars {
		out[i] = b.Close
	}
	return out
}

// Volumes returns the volume series as floats.
func (h *History) Volumes() []float64 {
	out := make([]float64, len(h.Bars))
	for i, b := range h.Bars {
		out[i] = float64(b.Volume)
	}
	return out
}

// FlowSeries returns the foreign and institutional net-buy series.
func (h *History) FlowSeries() (foreign, institution []float64) {
	foreign = make([]float64, len(h.Flows))
	institution = make([]float64, len(h.Flows))
	for i, f := range h.Flows {
		foreign[i] = float64(f.ForeignNet)
		institution[i] = float64(f.InstitutionNet)
	}
	return foreign, institution
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
