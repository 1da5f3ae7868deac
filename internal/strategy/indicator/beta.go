package indicator

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/history"
)

// BetaWindow 베타 계산에 쓰는 수익률 개수
const BetaWindow = 60

// Beta is cov(r_sec, r_bench) / var(r_bench) over the trailing 60 returns
// of the closes both series share. It is unavailable with fewer than 60
// common returns or a flat benchmark.
func Beta(sec, bench *history.History) Value {
	if sec == nil || bench == nil {
		return None
	}

	s, b := alignCloses(sec.Bars, bench.Bars)
	rs, rb := Returns(s), Returns(b)
	if len(rs) < BetaWindow {
		return None
	}
	rs = rs[len(rs)-BetaWindow:]
	rb = rb[len(rb)-BetaWindow:]
	for i := range rs {
		if math.IsNaN(rs[i]) || math.IsNaN(rb[i]) {
			return None
		}
	}

	v := stat.Variance(rb, nil)
	if v == 0 || math.IsNaN(v) {
		return None
	}
	return Some(stat.Covariance(rs, rb, nil) / v)
}

// alignCloses keeps only dates present in both series, oldest first.
func alignCloses(a, b []history.Bar) ([]float64, []float64) {
	var xs, ys []float64
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		da, db := a[i].Date, b[j].Date
		switch {
		case da.Before(db) && !sameDate(da, db):
			i++
		case db.Before(da) && !sameDate(da, db):
			j++
		default:
			xs = append(xs, a[i].Close)
			ys = append(ys, b[j].Close)
			i++
			j++
		}
	}
	return xs, ys
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
