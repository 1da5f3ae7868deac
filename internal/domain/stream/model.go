package stream

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// State is the lifecycle position of a stream session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateStreaming
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Message-type tags (tr_id) used on the real-time channel.
const (
	TrIDTrade     = "H0STCNT0" // 국내주식 실시간 체결가
	TrIDOrderBook = "H0STASP0" // 국내주식 실시간 호가
	TrIDPingPong  = "PINGPONG"
)

// Ack result texts returned by the venue in body.msg1.
const (
	MsgSubscribeSuccess   = "SUBSCRIBE SUCCESS"
	MsgAlreadySubscribed  = "ALREADY IN SUBSCRIBE"
	MsgUnsubscribeSuccess = "UNSUBSCRIBE SUCCESS"
)

// Subscription identifies one real-time feed.
type Subscription struct {
	SecurityID string `json:"security_id"`
	TrID       string `json:"tr_id"`
}

// MessageKind tags a DecodedMessage variant.
type MessageKind int

const (
	KindControl MessageKind = iota + 1
	KindData
)

// DecodedMessage is exactly one of a control message or a data frame.
type DecodedMessage struct {
	Kind    MessageKind
	Control *ControlMessage
	Frame   *DataFrame
}

// ControlMessage is a JSON frame: subscribe ack, error, or heartbeat.
type ControlMessage struct {
	TrID    string
	TrKey   string
	Encrypt string

	RtCd  string // "0" 성공
	MsgCd string
	Msg1  string

	// AES material returned with acks for encrypted feeds
	IV  string
	Key string

	Raw []byte
}

// IsHeartbeat reports whether the message is the venue's PINGPONG keepalive.
func (m *ControlMessage) IsHeartbeat() bool {
	return m.TrID == TrIDPingPong
}

// Accepted reports whether an ack confirms the subscription.
func (m *ControlMessage) Accepted() bool {
	return m.Msg1 == MsgSubscribeSuccess || m.Msg1 == MsgAlreadySubscribed
}

// DataFrame is a delimited real-time frame: enc|tr_id|count|payload.
type DataFrame struct {
	Encrypted   string
	TrID        string
	RecordCount string
	Payload     string
	Values      []string
}

// Count parses RecordCount, returning 1 when it is not a positive integer.
func (f *DataFrame) Count() int {
	n, err := strconv.Atoi(f.RecordCount)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// TickHandler receives every decoded inbound message of a streaming session.
type TickHandler func(DecodedMessage)

// TradeTick is one execution record of the H0STCNT0 feed.
type TradeTick struct {
	Symbol      string          `json:"symbol"`
	Time        string          `json:"time"` // HHMMSS (KST)
	Price       decimal.Decimal `json:"price"`
	Change      decimal.Decimal `json:"change"`
	ChangeRate  decimal.Decimal `json:"change_rate"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Volume      int64           `json:"volume"`       // 체결 거래량
	AccumVolume int64           `json:"accum_volume"` // 누적 거래량
	AccumAmount int64           `json:"accum_amount"` // 누적 거래대금
}
