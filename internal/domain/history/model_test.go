package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestValidate(t *testing.T) {
	t.Run("increasing", func(t *testing.T) {
		h := &History{Symbol: "005930", Bars: []Bar{{Date: day(2)}, {Date: day(3)}}}
		assert.NoError(t, h.Validate())
	})

	t.Run("duplicate date", func(t *testing.T) {
		h := &History{Symbol: "005930", Bars: []Bar{{Date: day(2)}, {Date: day(2)}}}
		assert.ErrorIs(t, h.Validate(), ErrOutOfOrder)
	})

	t.Run("flows out of order", func(t *testing.T) {
		h := &History{Symbol: "005930", Flows: []Flow{{Date: day(3)}, {Date: day(2)}}}
		assert.ErrorIs(t, h.Validate(), ErrOutOfOrder)
	})
}

func TestUpsertBar(t *testing.T) {
	h := &History{Symbol: "005930"}

	require.NoError(t, h.UpsertBar(Bar{Date: day(2), Close: 100}))
	require.NoError(t, h.UpsertBar(Bar{Date: day(3), Close: 101}))

	t.Run("same day replaces", func(t *testing.T) {
		require.NoError(t, h.UpsertBar(Bar{Date: day(3).Add(5 * time.Hour), Close: 105}))
		require.Len(t, h.Bars, 2)
		last, ok := h.Last()
		require.True(t, ok)
		assert.Equal(t, 105.0, last.Close)
	})

	t.Run("older rejected", func(t *testing.T) {
		assert.ErrorIs(t, h.UpsertBar(Bar{Date: day(1)}), ErrOutOfOrder)
		assert.Len(t, h.Bars, 2)
	})

	assert.NoError(t, h.Validate())
}

func TestClone(t *testing.T) {
	h := &History{Symbol: "005930", Bars: []Bar{{Date: day(2), Close: 1}}}
	c := h.Clone()
	c.Bars[0].Close = 2
	assert.Equal(t, 1.0, h.Bars[0].Close)
}
