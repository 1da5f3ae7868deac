package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/history"
)

func session(i int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

// risingHistory has increasing closes with a flat final close (no breakout),
// constant volume and a full-bodied bullish last candle.
func risingHistory(symbol string, n int) *history.History {
	h := &history.History{Symbol: symbol, Name: symbol + " name"}
	for i := 0; i < n; i++ {
		c := float64(1000 + 10*i)
		if i == n-1 {
			c = float64(1000 + 10*(i-1))
		}
		h.Bars = append(h.Bars, history.Bar{
			Date: session(i), Open: c - 5, High: c, Low: c - 5, Close: c, Volume: 10000,
		})
	}
	for i := 0; i < 20; i++ {
		h.Flows = append(h.Flows, history.Flow{Date: session(n - 20 + i), ForeignNet: 100, InstitutionNet: 50})
	}
	return h
}

// flatHistory scores zero on every component except volume.
func flatHistory(symbol string, n int) *history.History {
	h := &history.History{Symbol: symbol}
	for i := 0; i < n; i++ {
		h.Bars = append(h.Bars, history.Bar{
			Date: session(i), Open: 100, High: 100, Low: 100, Close: 100, Volume: 10,
		})
	}
	return h
}

func TestScore(t *testing.T) {
	s := NewScorer()

	t.Run("rising series", func(t *testing.T) {
		e, err := s.Score(risingHistory("005930", 120))
		require.NoError(t, err)

		assert.Equal(t, "005930", e.Symbol)
		assert.Equal(t, "005930 name", e.Name)
		assert.InDelta(t, 0.3, e.Breakdown.Trend, 1e-12)
		assert.InDelta(t, 0.1, e.Breakdown.Volume, 1e-12)
		assert.InDelta(t, 0.2, e.Breakdown.Flow, 1e-12)
		assert.Equal(t, 0.0, e.Breakdown.Breakout)
		assert.InDelta(t, 0.15, e.Breakdown.Candle, 1e-12)
		assert.InDelta(t, 0.75, e.Score, 1e-12)
		assert.GreaterOrEqual(t, e.Score, 0.6)
	})

	t.Run("deterministic", func(t *testing.T) {
		h := risingHistory("005930", 150)
		a, err := s.Score(h)
		require.NoError(t, err)
		b, err := s.Score(h)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("insufficient history", func(t *testing.T) {
		_, err := s.Score(risingHistory("005930", 119))
		assert.ErrorIs(t, err, history.ErrInsufficientHistory)

		_, err = s.Score(nil)
		assert.ErrorIs(t, err, history.ErrInsufficientHistory)
	})

	t.Run("min bars below trend window still needs trend", func(t *testing.T) {
		_, err := NewScorer(WithMinBars(30)).Score(risingHistory("005930", 60))
		assert.ErrorIs(t, err, history.ErrInsufficientHistory)
	})

	t.Run("volume capped at 2", func(t *testing.T) {
		h := risingHistory("005930", 120)
		h.Bars[119].Volume = 1_000_000
		e, err := s.Score(h)
		require.NoError(t, err)
		assert.InDelta(t, 0.2, e.Breakdown.Volume, 1e-12)
	})

	t.Run("breakout with volume", func(t *testing.T) {
		h := risingHistory("005930", 120)
		h.Bars[119].Close = 5000
		h.Bars[119].High = 5000
		h.Bars[119].Volume = 100000
		e, err := s.Score(h)
		require.NoError(t, err)
		assert.InDelta(t, 0.15, e.Breakdown.Breakout, 1e-12)
	})

	t.Run("custom weights", func(t *testing.T) {
		w := DefaultWeights()
		w.Flow = 0
		e, err := NewScorer(WithWeights(w)).Score(risingHistory("005930", 120))
		require.NoError(t, err)
		assert.Equal(t, 0.0, e.Breakdown.Flow)
	})

	t.Run("sentinel volume ratio", func(t *testing.T) {
		h := flatHistory("000660", 120)
		for i := range h.Bars {
			h.Bars[i].Volume = 0
		}
		e, err := NewScorer(WithVolumeRatioSentinel(1)).Score(h)
		require.NoError(t, err)
		assert.InDelta(t, 0.1, e.Breakdown.Volume, 1e-12)
	})
}

func TestRank(t *testing.T) {
	s := NewScorer()
	ctx := context.Background()

	t.Run("orders by score and excludes failures", func(t *testing.T) {
		hs := []*history.History{
			flatHistory("A", 120),
			risingHistory("B", 120),
			risingHistory("C", 50), // too short
			nil,
		}
		res, err := s.Rank(ctx, hs, 10, 2)
		require.NoError(t, err)

		require.Len(t, res.Rankings, 2)
		assert.Equal(t, 2, res.Scored)
		assert.Equal(t, "B", res.Rankings[0].Symbol)
		assert.Equal(t, 1, res.Rankings[0].Rank)
		assert.Equal(t, "A", res.Rankings[1].Symbol)
		assert.Equal(t, 2, res.Rankings[1].Rank)

		require.Len(t, res.Failures, 2)
		assert.Equal(t, "C", res.Failures[0].Symbol)
		assert.ErrorIs(t, res.Failures[0].Err, history.ErrInsufficientHistory)
	})

	t.Run("ties keep input order", func(t *testing.T) {
		hs := []*history.History{flatHistory("X", 120), flatHistory("Y", 120), flatHistory("Z", 120)}
		res, err := s.Rank(ctx, hs, 10, 0)
		require.NoError(t, err)

		got := []string{res.Rankings[0].Symbol, res.Rankings[1].Symbol, res.Rankings[2].Symbol}
		assert.Equal(t, []string{"X", "Y", "Z"}, got)
	})

	t.Run("top n", func(t *testing.T) {
		var hs []*history.History
		for i := 0; i < 15; i++ {
			hs = append(hs, flatHistory(string(rune('a'+i)), 120))
		}
		res, err := s.Rank(ctx, hs, 0, 4)
		require.NoError(t, err)
		assert.Len(t, res.Rankings, DefaultTopN)
		assert.Equal(t, 15, res.Scored)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.Rank(cctx, []*history.History{flatHistory("A", 120)}, 10, 1)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
