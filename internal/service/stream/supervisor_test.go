package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/auth"
	domain "github.com/Jeongbyungkyu/korea-investment/internal/domain/stream"
)

type loopFunc func(ctx context.Context, onTick domain.TickHandler) error

type fakeSession struct {
	mu          sync.Mutex
	connectErrs []error
	runs        []loopFunc
	reject      map[string]bool
	subErr      error
	connects    int
	subscribes  []string
	closes      int
	state       domain.State
}

func (f *fakeSession) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	f.state = domain.StateConnected
	return nil
}

func (f *fakeSession) Subscribe(ctx context.Context, securityID, trID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes = append(f.subscribes, securityID)
	if f.subErr != nil {
		return f.subErr
	}
	if f.reject[securityID] {
		return &domain.RejectedError{SecurityID: securityID, TrID: trID, Code: "OPSP0011", Reason: "invalid tr_key"}
	}
	f.state = domain.StateStreaming
	return nil
}

func (f *fakeSession) RunReceiveLoop(ctx context.Context, onTick domain.TickHandler) error {
	f.mu.Lock()
	var run loopFunc
	if len(f.runs) > 0 {
		run = f.runs[0]
		f.runs = f.runs[1:]
	}
	f.mu.Unlock()

	if run == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return run(ctx, onTick)
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.state = domain.StateDisconnected
	return nil
}

func (f *fakeSession) State() domain.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) Subscriptions() []domain.Subscription { return nil }
func (f *fakeSession) Dropped() int64                       { return 0 }

func (f *fakeSession) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeSession) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribes)
}

type recordingInvalidator struct {
	mu    sync.Mutex
	kinds []auth.Kind
}

func (r *recordingInvalidator) Invalidate(kind auth.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

type fakeHours struct {
	mu   sync.Mutex
	open bool
	next time.Time
}

func (h *fakeHours) IsOpen(time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open
}

func (h *fakeHours) NextOpen(time.Time) time.Time { return h.next }

func (h *fakeHours) set(open bool) {
	h.mu.Lock()
	h.open = open
	h.mu.Unlock()
}

func dataFrame(symbol string) domain.DecodedMessage {
	return domain.DecodedMessage{
		Kind:  domain.KindData,
		Frame: &domain.DataFrame{Encrypted: "0", TrID: domain.TrIDTrade, RecordCount: "1", Values: []string{symbol}},
	}
}

func closedAfter(msgs ...domain.DecodedMessage) loopFunc {
	return func(ctx context.Context, onTick domain.TickHandler) error {
		for _, m := range msgs {
			onTick(m)
		}
		return domain.ErrStreamClosed
	}
}

func newTestSupervisor(sess Session, symbols []string, cfg Config, hours MarketHours, inv CredentialInvalidator) (*Supervisor, *[]time.Duration) {
	cfg.Backoff = Backoff{Min: 10 * time.Millisecond, Max: time.Second, Factor: 2}
	s := NewSupervisor(cfg, sess, symbols, hours, inv)

	var mu sync.Mutex
	waits := []time.Duration{}
	s.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		waits = append(waits, d)
		mu.Unlock()
		return ctx.Err()
	}
	return s, &waits
}

func runAsync(s *Supervisor, ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

func TestBackoffNext(t *testing.T) {
	b := Backoff{Min: time.Second, Max: 30 * time.Second, Factor: 2}

	assert.Equal(t, time.Second, b.Next(0))
	assert.Equal(t, time.Second, b.Next(1))
	assert.Equal(t, 4*time.Second, b.Next(3))
	assert.Equal(t, 30*time.Second, b.Next(10))

	t.Run("jitter stays in band", func(t *testing.T) {
		j := Backoff{Min: time.Second, Max: time.Second, Factor: 2, Jitter: 0.2}
		for i := 0; i < 50; i++ {
			d := j.Next(1)
			assert.GreaterOrEqual(t, d, 800*time.Millisecond)
			assert.LessOrEqual(t, d, 1200*time.Millisecond)
		}
	})
}

func TestSupervisorReconnects(t *testing.T) {
	sess := &fakeSession{runs: []loopFunc{closedAfter(dataFrame("005930"), dataFrame("000660"))}}
	s, waits := newTestSupervisor(sess, []string{"005930", "000660"}, Config{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(s, ctx)

	first := <-s.Frames()
	second := <-s.Frames()
	assert.Equal(t, []string{"005930"}, first.Values)
	assert.Equal(t, []string{"000660"}, second.Values)

	require.Eventually(t, func() bool { return sess.connectCount() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return sess.subscribeCount() == 4 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	_, open := <-s.Frames()
	assert.False(t, open, "frames channel closed after Run")
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, *waits)
	assert.Equal(t, int64(1), s.Stats().Reconnects)
	assert.Equal(t, int64(2), s.Stats().Forwarded)
}

func TestSupervisorGivesUp(t *testing.T) {
	fail := errors.New("dial refused")
	sess := &fakeSession{connectErrs: []error{
		errors.Join(domain.ErrConnectionFailed, fail),
		errors.Join(domain.ErrConnectionFailed, fail),
		errors.Join(domain.ErrConnectionFailed, fail),
	}}
	s, waits := newTestSupervisor(sess, []string{"005930"}, Config{MaxAttempts: 3}, nil, nil)

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConnectionFailed)
	assert.Equal(t, 3, sess.connectCount())
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *waits)
}

func TestSupervisorStreamResetsFailures(t *testing.T) {
	sess := &fakeSession{
		connectErrs: []error{domain.ErrConnectionFailed, nil, domain.ErrConnectionFailed},
		runs:        []loopFunc{closedAfter()},
	}
	s, waits := newTestSupervisor(sess, []string{"005930"}, Config{MaxAttempts: 3}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(s, ctx)

	require.Eventually(t, func() bool { return sess.connectCount() == 4 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	// 스트리밍 성공 후 실패 카운터가 초기화됨
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond}, *waits)
}

func TestSupervisorRejections(t *testing.T) {
	t.Run("partial rejection keeps streaming", func(t *testing.T) {
		sess := &fakeSession{reject: map[string]bool{"999999": true}}
		s, _ := newTestSupervisor(sess, []string{"005930", "999999"}, Config{}, nil, nil)

		ctx, cancel := context.WithCancel(context.Background())
		done := runAsync(s, ctx)

		require.Eventually(t, func() bool { return sess.State() == domain.StateStreaming }, time.Second, 5*time.Millisecond)
		require.Eventually(t, func() bool { return len(s.Stats().Rejected) == 1 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, []string{"999999"}, s.Stats().Rejected)

		cancel()
		require.NoError(t, <-done)
		assert.Equal(t, 1, sess.connectCount())
	})

	t.Run("all rejected invalidates approval", func(t *testing.T) {
		sess := &fakeSession{reject: map[string]bool{"005930": true}}
		inv := &recordingInvalidator{}
		s, _ := newTestSupervisor(sess, []string{"005930"}, Config{MaxAttempts: 2}, nil, inv)

		err := s.Run(context.Background())
		assert.ErrorIs(t, err, domain.ErrSubscriptionRejected)
		assert.Equal(t, []auth.Kind{auth.KindApproval}, inv.kinds)
	})

	t.Run("ack timeout aborts the run", func(t *testing.T) {
		sess := &fakeSession{subErr: domain.ErrAckTimeout}
		s, _ := newTestSupervisor(sess, []string{"005930", "000660"}, Config{MaxAttempts: 1}, nil, nil)

		err := s.Run(context.Background())
		assert.ErrorIs(t, err, domain.ErrAckTimeout)
		assert.Equal(t, 1, sess.subscribeCount())
	})
}

func TestSupervisorDropsWhenFull(t *testing.T) {
	sess := &fakeSession{runs: []loopFunc{func(ctx context.Context, onTick domain.TickHandler) error {
		onTick(dataFrame("a"))
		onTick(dataFrame("b"))
		onTick(dataFrame("c"))
		onTick(domain.DecodedMessage{Kind: domain.KindControl, Control: &domain.ControlMessage{TrID: domain.TrIDPingPong}})
		<-ctx.Done()
		return ctx.Err()
	}}}
	s, _ := newTestSupervisor(sess, []string{"005930"}, Config{FrameBuffer: 1}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(s, ctx)

	require.Eventually(t, func() bool { return s.Stats().Dropped == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), s.Stats().Forwarded)

	cancel()
	require.NoError(t, <-done)

	f, ok := <-s.Frames()
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, f.Values)
}

func TestSupervisorMarketHours(t *testing.T) {
	t.Run("waits for the open before dialing", func(t *testing.T) {
		now := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
		hours := &fakeHours{open: false, next: now.Add(time.Hour)}
		sess := &fakeSession{}
		s, waits := newTestSupervisor(sess, []string{"005930"}, Config{MarketHoursOnly: true}, hours, nil)
		s.now = func() time.Time { return now }

		ctx, cancel := context.WithCancel(context.Background())
		s.sleep = func(ctx context.Context, d time.Duration) error {
			*waits = append(*waits, d)
			cancel()
			return context.Canceled
		}

		require.NoError(t, s.Run(ctx))
		assert.Equal(t, []time.Duration{time.Hour}, *waits)
		assert.Equal(t, 0, sess.connectCount())
	})

	t.Run("disconnects at the close", func(t *testing.T) {
		hours := &fakeHours{open: true}
		sess := &fakeSession{}
		s, _ := newTestSupervisor(sess, []string{"005930"}, Config{MarketHoursOnly: true, HoursPoll: 5 * time.Millisecond}, hours, nil)

		ctx, cancel := context.WithCancel(context.Background())
		slept := make(chan struct{}, 1)
		s.sleep = func(ctx context.Context, d time.Duration) error {
			slept <- struct{}{}
			cancel()
			return context.Canceled
		}
		done := runAsync(s, ctx)

		require.Eventually(t, func() bool { return sess.State() == domain.StateStreaming }, time.Second, 5*time.Millisecond)
		hours.set(false)

		<-slept
		require.NoError(t, <-done)
		assert.Equal(t, 1, sess.connectCount())
		assert.Equal(t, int64(0), s.Stats().Reconnects)
	})
}
