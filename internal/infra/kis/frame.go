package kis

import (
	"encoding/json"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/stream"
)

// wsMessage is the JSON shape of control frames (acks, errors, PINGPONG).
type wsMessage struct {
	Header struct {
		TrID    string `json:"tr_id"`
		TrKey   string `json:"tr_key"`
		Encrypt string `json:"encrypt"`
	} `json:"header"`
	Body struct {
		RtCd   string          `json:"rt_cd"` // 응답코드
		MsgCd  string          `json:"msg_cd"`
		Msg1   string          `json:"msg1"`
		Output json.RawMessage `json:"output"` // 구독 응답은 객체 (iv, key)
	} `json:"body"`
}

type wsOutput struct {
	IV  string `json:"iv"`
	Key string `json:"key"`
}

// Decode turns one inbound frame into a control message or a data frame.
// JSON is tried first; anything else must be a delimited frame
// enc|tr_id|count|payload with at least four fields.
func Decode(raw []byte) (stream.DecodedMessage, error) {
	if ctl, ok := decodeControl(raw); ok {
		return stream.DecodedMessage{Kind: stream.KindControl, Control: ctl}, nil
	}

	frame, err := decodeFrame(string(raw))
	if err != nil {
		return stream.DecodedMessage{}, err
	}
	return stream.DecodedMessage{Kind: stream.KindData, Frame: frame}, nil
}

func decodeControl(raw []byte) (*stream.ControlMessage, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}

	var msg wsMessage
	if err := sonic.UnmarshalString(trimmed, &msg); err != nil {
		return nil, false
	}

	ctl := &stream.ControlMessage{
		TrID:    msg.Header.TrID,
		TrKey:   msg.Header.TrKey,
		Encrypt: msg.Header.Encrypt,
		RtCd:    msg.Body.RtCd,
		MsgCd:   msg.Body.MsgCd,
		Msg1:    msg.Body.Msg1,
		Raw:     append([]byte(nil), raw...),
	}

	if len(msg.Body.Output) > 0 && msg.Body.Output[0] == '{' {
		var out wsOutput
		if err := sonic.Unmarshal(msg.Body.Output, &out); err == nil {
			ctl.IV = out.IV
			ctl.Key = out.Key
		}
	}
	return ctl, true
}

func decodeFrame(s string) (*stream.DataFrame, error) {
	parts := strings.SplitN(s, "|", 4)
	if len(parts) < 4 {
		return nil, &stream.FrameError{Raw: s, Fields: len(parts), Reason: "expected enc|tr_id|count|payload"}
	}

	payload := parts[3]
	var values []string
	if strings.Contains(payload, "^") {
		values = strings.Split(payload, "^")
	} else {
		values = []string{payload}
	}

	return &stream.DataFrame{
		Encrypted:   parts[0],
		TrID:        parts[1],
		RecordCount: parts[2],
		Payload:     payload,
		Values:      values,
	}, nil
}
