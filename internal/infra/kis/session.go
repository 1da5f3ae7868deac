package kis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/auth"
	"github.com/Jeongbyungkyu/korea-investment/internal/domain/stream"
)

// ApprovalSource supplies the approval credential used to open the stream.
type ApprovalSource interface {
	GetApprovalCredential(ctx context.Context) (auth.Credential, error)
}

// SessionConfig controls one stream session.
type SessionConfig struct {
	URL               string
	AckTimeout        time.Duration
	HeartbeatInterval time.Duration
	InboundBuffer     int
	WriteTimeout      time.Duration
	CustType          string // P: 개인, B: 법인
}

func (c *SessionConfig) withDefaults() {
	if c.AckTimeout <= 0 {
		c.AckTimeout = 5 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.InboundBuffer <= 0 {
		c.InboundBuffer = 1024
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.CustType == "" {
		c.CustType = "P"
	}
}

// Session owns one websocket connection to the KIS real-time channel,
// its subscription set and the receive loop.
//
// Connect, Subscribe, Unsubscribe and Close are serialized. RunReceiveLoop
// runs concurrently with them and only consumes frames; it never touches
// the subscription set except to clear it when the transport is lost.
type Session struct {
	cfg    SessionConfig
	creds  ApprovalSource
	dialer Dialer

	state atomic.Int32

	opMu sync.Mutex
	cur  *link

	subMu sync.RWMutex
	subs  map[string]stream.Subscription

	dropped atomic.Int64
}

// link is the per-connection state. A reconnect creates a new link;
// nothing carries over from the previous one.
type link struct {
	conn        Conn
	approvalKey string

	writeMu sync.Mutex

	inbound chan []byte
	done    chan struct{} // closed when the reader exits
	err     error         // reader exit cause, valid after done

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closing    atomic.Bool
	loopActive atomic.Bool
	heartbeat  sync.Once

	ackMu  sync.Mutex
	waiter *ackWaiter
}

type ackWaiter struct {
	trID  string
	trKey string
	ch    chan *stream.ControlMessage
}

// NewSession creates a disconnected session.
func NewSession(cfg SessionConfig, creds ApprovalSource, dialer Dialer) *Session {
	cfg.withDefaults()
	if dialer == nil {
		dialer = WebSocketDialer{}
	}
	s := &Session{
		cfg:    cfg,
		creds:  creds,
		dialer: dialer,
		subs:   make(map[string]stream.Subscription),
	}
	s.state.Store(int32(stream.StateDisconnected))
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() stream.State {
	return stream.State(s.state.Load())
}

func (s *Session) setState(st stream.State) {
	prev := stream.State(s.state.Swap(int32(st)))
	if prev != st {
		log.Debug().Str("from", prev.String()).Str("to", st.String()).Msg("[WS] State changed")
	}
}

// Subscriptions returns the active subscriptions ordered by security id.
func (s *Session) Subscriptions() []stream.Subscription {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	out := make([]stream.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SecurityID == out[j].SecurityID {
			return out[i].TrID < out[j].TrID
		}
		return out[i].SecurityID < out[j].SecurityID
	})
	return out
}

// Dropped returns how many inbound frames were discarded because the
// receive buffer was full.
func (s *Session) Dropped() int64 {
	return s.dropped.Load()
}

// Connect obtains an approval credential and opens the transport.
// Failures leave the session Disconnected; there is no internal retry.
func (s *Session) Connect(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if st := s.State(); st != stream.StateDisconnected {
		return fmt.Errorf("%w: connect in %s", stream.ErrInvalidState, st)
	}
	s.setState(stream.StateConnecting)

	cred, err := s.creds.GetApprovalCredential(ctx)
	if err != nil {
		s.setState(stream.StateDisconnected)
		return fmt.Errorf("%w: approval credential: %w", stream.ErrConnectionFailed, err)
	}

	conn, err := s.dialer.Dial(ctx, s.cfg.URL)
	if err != nil {
		s.setState(stream.StateDisconnected)
		return fmt.Errorf("%w: dial %s: %w", stream.ErrConnectionFailed, s.cfg.URL, err)
	}

	linkCtx, cancel := context.WithCancel(context.Background())
	l := &link{
		conn:        conn,
		approvalKey: cred.Token,
		inbound:     make(chan []byte, s.cfg.InboundBuffer),
		done:        make(chan struct{}),
		ctx:         linkCtx,
		cancel:      cancel,
	}
	s.cur = l
	s.resetSubscriptions()

	l.wg.Add(1)
	go s.readLoop(l)

	s.setState(stream.StateConnected)
	log.Info().Str("url", s.cfg.URL).Msg("[WS] Connected")
	return nil
}

// Subscribe registers securityID on the trID feed and waits for the venue's ack.
// Subscribing an already active pair succeeds without a wire request.
func (s *Session) Subscribe(ctx context.Context, securityID, trID string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	st := s.State()
	if st != stream.StateConnected && st != stream.StateStreaming {
		return fmt.Errorf("%w: subscribe in %s", stream.ErrInvalidState, st)
	}
	l := s.cur

	key := subKey(securityID, trID)
	s.subMu.RLock()
	_, exists := s.subs[key]
	s.subMu.RUnlock()
	if exists {
		return nil
	}

	w := &ackWaiter{trID: trID, trKey: securityID, ch: make(chan *stream.ControlMessage, 1)}
	l.ackMu.Lock()
	l.waiter = w
	l.ackMu.Unlock()
	defer func() {
		l.ackMu.Lock()
		l.waiter = nil
		l.ackMu.Unlock()
	}()

	if err := s.sendControl(l, "1", securityID, trID); err != nil {
		return fmt.Errorf("%w: send subscribe %s: %w", stream.ErrStreamClosed, securityID, err)
	}

	timer := time.NewTimer(s.cfg.AckTimeout)
	defer timer.Stop()

	var ack *stream.ControlMessage
	select {
	case ack = <-w.ch:
	case <-timer.C:
		return fmt.Errorf("%w: %s/%s after %s", stream.ErrAckTimeout, trID, securityID, s.cfg.AckTimeout)
	case <-l.done:
		return fmt.Errorf("%w: while subscribing %s: %v", stream.ErrStreamClosed, securityID, l.err)
	case <-ctx.Done():
		return ctx.Err()
	}

	if !ack.Accepted() {
		return &stream.RejectedError{SecurityID: securityID, TrID: trID, Code: ack.MsgCd, Reason: ack.Msg1}
	}

	s.subMu.Lock()
	s.subs[key] = stream.Subscription{SecurityID: securityID, TrID: trID}
	s.subMu.Unlock()

	if st == stream.StateConnected {
		s.setState(stream.StateStreaming)
		l.heartbeat.Do(func() {
			l.wg.Add(1)
			go s.heartbeatLoop(l)
		})
	}

	log.Info().
		Str("symbol", securityID).
		Str("tr_id", trID).
		Str("msg", ack.Msg1).
		Msg("[WS] Subscribed")
	return nil
}

// Unsubscribe removes securityID from every feed it is active on.
// The subscription is dropped locally even when the wire request fails.
func (s *Session) Unsubscribe(ctx context.Context, securityID string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.cur == nil {
		return nil
	}

	var errs []error
	for _, sub := range s.Subscriptions() {
		if sub.SecurityID != securityID {
			continue
		}
		if err := s.sendControl(s.cur, "2", sub.SecurityID, sub.TrID); err != nil {
			log.Warn().Err(err).Str("symbol", securityID).Str("tr_id", sub.TrID).Msg("[WS] Unsubscribe failed")
			errs = append(errs, err)
		}
		s.subMu.Lock()
		delete(s.subs, subKey(sub.SecurityID, sub.TrID))
		s.subMu.Unlock()
	}
	return errors.Join(errs...)
}

// RunReceiveLoop delivers every decoded inbound message to onTick until ctx
// is done, the session is closed, or the transport drops. Undecodable frames
// are logged and skipped. A dropped transport returns ErrStreamClosed and
// leaves the session Disconnected with no subscriptions.
func (s *Session) RunReceiveLoop(ctx context.Context, onTick stream.TickHandler) error {
	s.opMu.Lock()
	st := s.State()
	l := s.cur
	s.opMu.Unlock()

	if st != stream.StateStreaming || l == nil {
		return fmt.Errorf("%w: receive loop in %s", stream.ErrInvalidState, st)
	}
	if !l.loopActive.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: receive loop already running", stream.ErrInvalidState)
	}
	defer l.loopActive.Store(false)

	log.Info().Msg("[WS] Receive loop started")

	for {
		// 연결 종료가 감지되면 버퍼에 남은 프레임은 전달하지 않음
		select {
		case <-l.done:
			return s.linkEnded(l)
		default:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return s.linkEnded(l)
		case raw := <-l.inbound:
			msg, err := Decode(raw)
			if err != nil {
				log.Warn().Err(err).Msg("[WS] Skipping undecodable frame")
				continue
			}
			onTick(msg)
		}
	}
}

func (s *Session) linkEnded(l *link) error {
	if l.closing.Load() {
		log.Info().Msg("[WS] Receive loop stopped (session closed)")
		return nil
	}
	s.dropLink(l)
	log.Warn().Err(l.err).Msg("[WS] Connection lost")
	return fmt.Errorf("%w: %v", stream.ErrStreamClosed, l.err)
}

// Close unsubscribes everything (best effort), closes the transport and
// waits for the session goroutines. Safe to call repeatedly.
func (s *Session) Close() error {
	s.opMu.Lock()
	l := s.cur
	if l == nil {
		s.setState(stream.StateDisconnected)
		s.opMu.Unlock()
		return nil
	}

	s.setState(stream.StateClosing)
	l.closing.Store(true)

	for _, sub := range s.Subscriptions() {
		if err := s.sendControl(l, "2", sub.SecurityID, sub.TrID); err != nil {
			log.Warn().Err(err).Str("symbol", sub.SecurityID).Msg("[WS] Unsubscribe on close failed")
		}
	}

	l.writeMu.Lock()
	_ = l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	l.writeMu.Unlock()

	s.teardown(l)
	s.opMu.Unlock()

	l.wg.Wait()
	log.Info().Msg("[WS] Closed")
	return nil
}

// dropLink tears down l if it is still the current link.
func (s *Session) dropLink(l *link) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.cur != l {
		return
	}
	s.teardown(l)
}

// teardown requires opMu.
func (s *Session) teardown(l *link) {
	l.cancel()
	_ = l.conn.Close()
	s.cur = nil
	s.resetSubscriptions()
	s.setState(stream.StateDisconnected)
}

func (s *Session) resetSubscriptions() {
	s.subMu.Lock()
	s.subs = make(map[string]stream.Subscription)
	s.subMu.Unlock()
}

// readLoop is the only reader of l.conn. It answers PINGPONG, hands
// subscribe acks to the waiting Subscribe call and queues the rest.
func (s *Session) readLoop(l *link) {
	defer l.wg.Done()

	for {
		_, message, err := l.conn.ReadMessage()
		if err != nil {
			l.err = err
			close(l.done)
			if !l.closing.Load() {
				s.dropLink(l)
			}
			return
		}

		if ctl, ok := decodeControl(message); ok {
			if ctl.IsHeartbeat() {
				// KIS PINGPONG: 받은 메시지를 그대로 회신
				l.writeMu.Lock()
				_ = l.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
				if err := l.conn.WriteMessage(websocket.TextMessage, message); err != nil {
					log.Warn().Err(err).Msg("[WS] Failed to send PINGPONG response")
				}
				l.writeMu.Unlock()
				continue
			}
			if l.deliverAck(ctl) {
				continue
			}
		}

		select {
		case l.inbound <- message:
		default:
			if n := s.dropped.Add(1); n == 1 || n%1000 == 0 {
				log.Warn().Int64("dropped", n).Msg("[WS] Inbound buffer full, dropping frames")
			}
		}
	}
}

// deliverAck hands ctl to the pending Subscribe call when it answers it.
// Error responses without a usable key are treated as answering the only
// outstanding request.
func (l *link) deliverAck(ctl *stream.ControlMessage) bool {
	l.ackMu.Lock()
	defer l.ackMu.Unlock()

	w := l.waiter
	if w == nil {
		return false
	}

	matches := ctl.TrKey == w.trKey && (ctl.TrID == "" || ctl.TrID == w.trID)
	if !matches && (ctl.RtCd == "" || ctl.RtCd == "0") {
		return false
	}
	if ctl.Msg1 == stream.MsgUnsubscribeSuccess {
		return false
	}

	select {
	case w.ch <- ctl:
	default:
	}
	l.waiter = nil
	return true
}

func (s *Session) heartbeatLoop(l *link) {
	defer l.wg.Done()

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			// 실패해도 세션은 유지, 끊김은 readLoop 가 감지
			if err := l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				log.Warn().Err(err).Msg("[WS] Heartbeat failed")
			}
		}
	}
}

type controlRequest struct {
	Header controlHeader `json:"header"`
	Body   controlBody   `json:"body"`
}

type controlHeader struct {
	ApprovalKey string `json:"approval_key"`
	CustType    string `json:"custtype"`
	TrType      string `json:"tr_type"` // 1: 등록, 2: 해제
	ContentType string `json:"content-type"`
}

type controlBody struct {
	Input controlInput `json:"input"`
}

type controlInput struct {
	TrID  string `json:"tr_id"`
	TrKey string `json:"tr_key"`
}

func (s *Session) sendControl(l *link, trType, securityID, trID string) error {
	payload, err := sonic.Marshal(controlRequest{
		Header: controlHeader{
			ApprovalKey: l.approvalKey,
			CustType:    s.cfg.CustType,
			TrType:      trType,
			ContentType: "utf-8",
		},
		Body: controlBody{Input: controlInput{TrID: trID, TrKey: securityID}},
	})
	if err != nil {
		return fmt.Errorf("marshal control message: %w", err)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return l.conn.WriteMessage(websocket.TextMessage, payload)
}

func subKey(securityID, trID string) string {
	return trID + "|" + securityID
}
