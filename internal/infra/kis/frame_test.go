package kis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/stream"
)

func TestDecode(t *testing.T) {
	t.Run("data frame", func(t *testing.T) {
		msg, err := Decode([]byte("0|H0STCNT0|1|005930^50000^1000"))
		require.NoError(t, err)
		require.Equal(t, stream.KindData, msg.Kind)
		require.NotNil(t, msg.Frame)
		assert.Nil(t, msg.Control)

		assert.Equal(t, "0", msg.Frame.Encrypted)
		assert.Equal(t, "H0STCNT0", msg.Frame.TrID)
		assert.Equal(t, "1", msg.Frame.RecordCount)
		assert.Equal(t, []string{"005930", "50000", "1000"}, msg.Frame.Values)
	})

	t.Run("payload without caret", func(t *testing.T) {
		msg, err := Decode([]byte("0|H0STASP0|1|005930"))
		require.NoError(t, err)
		assert.Equal(t, []string{"005930"}, msg.Frame.Values)
	})

	t.Run("payload keeps extra pipes", func(t *testing.T) {
		msg, err := Decode([]byte("1|H0STCNT0|1|abc|def"))
		require.NoError(t, err)
		assert.Equal(t, "abc|def", msg.Frame.Payload)
	})

	t.Run("fewer than four fields", func(t *testing.T) {
		for _, raw := range []string{"", "0", "0|H0STCNT0", "0|H0STCNT0|1", "garbage"} {
			msg, err := Decode([]byte(raw))
			assert.ErrorIs(t, err, stream.ErrMalformedFrame, "raw=%q", raw)
			assert.Nil(t, msg.Frame)
			assert.Nil(t, msg.Control)
		}
	})

	t.Run("control ack", func(t *testing.T) {
		raw := `{"header":{"tr_id":"H0STCNT0","tr_key":"005930","encrypt":"N"},"body":{"rt_cd":"0","msg_cd":"OPSP0000","msg1":"SUBSCRIBE SUCCESS","output":{"iv":"0123456789abcdef","key":"k"}}}`
		msg, err := Decode([]byte(raw))
		require.NoError(t, err)
		require.Equal(t, stream.KindControl, msg.Kind)

		ctl := msg.Control
		assert.Equal(t, "H0STCNT0", ctl.TrID)
		assert.Equal(t, "005930", ctl.TrKey)
		assert.Equal(t, "0", ctl.RtCd)
		assert.Equal(t, "0123456789abcdef", ctl.IV)
		assert.True(t, ctl.Accepted())
		assert.False(t, ctl.IsHeartbeat())
	})

	t.Run("heartbeat", func(t *testing.T) {
		msg, err := Decode([]byte(`{"header":{"tr_id":"PINGPONG","datetime":"20240102090000"}}`))
		require.NoError(t, err)
		assert.True(t, msg.Control.IsHeartbeat())
	})

	t.Run("broken json falls through to delimited", func(t *testing.T) {
		_, err := Decode([]byte(`{"header":`))
		assert.ErrorIs(t, err, stream.ErrMalformedFrame)
	})
}

func TestDecodeIsPure(t *testing.T) {
	inputs := []string{
		"0|H0STCNT0|1|005930^50000^1000",
		`{"header":{"tr_id":"H0STCNT0","tr_key":"005930"},"body":{"rt_cd":"0","msg1":"SUBSCRIBE SUCCESS"}}`,
		"0|H0STCNT0",
	}
	for _, in := range inputs {
		a, errA := Decode([]byte(in))
		b, errB := Decode([]byte(in))
		assert.Equal(t, a, b, in)
		assert.Equal(t, errA, errB, in)
	}

	t.Run("raw is copied", func(t *testing.T) {
		buf := []byte(`{"header":{"tr_id":"PINGPONG"}}`)
		msg, err := Decode(buf)
		require.NoError(t, err)
		buf[2] = 'X'
		assert.Equal(t, `{"header":{"tr_id":"PINGPONG"}}`, string(msg.Control.Raw))
	})
}
