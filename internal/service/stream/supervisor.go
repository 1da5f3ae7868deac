// Package stream keeps one real-time session alive: it dials, subscribes
// the configured universe, forwards data frames and reconnects with backoff.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/auth"
	domain "github.com/Jeongbyungkyu/korea-investment/internal/domain/stream"
)

// Session is the stream session the supervisor drives.
type Session interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, securityID, trID string) error
	RunReceiveLoop(ctx context.Context, onTick domain.TickHandler) error
	Close() error
	State() domain.State
	Subscriptions() []domain.Subscription
	Dropped() int64
}

// MarketHours gates dialing to the regular session.
type MarketHours interface {
	IsOpen(t time.Time) bool
	NextOpen(t time.Time) time.Time
}

// CredentialInvalidator drops a cached credential so the next request re-issues it.
type CredentialInvalidator interface {
	Invalidate(kind auth.Kind)
}

// Config 슈퍼바이저 설정
type Config struct {
	TrID            string
	Backoff         Backoff
	MaxAttempts     int // 연속 실패 허용 횟수
	FrameBuffer     int
	MarketHoursOnly bool
	HoursPoll       time.Duration // 장중 마감 여부 확인 주기
}

func (c *Config) withDefaults() {
	if c.TrID == "" {
		c.TrID = domain.TrIDTrade
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.FrameBuffer <= 0 {
		c.FrameBuffer = 4096
	}
	if c.HoursPoll <= 0 {
		c.HoursPoll = time.Minute
	}
}

// Stats 스트림 통계
type Stats struct {
	State         domain.State          `json:"state"`
	Subscriptions []domain.Subscription `json:"subscriptions"`
	Forwarded     int64                 `json:"forwarded"`
	Dropped       int64                 `json:"dropped"`         // 소비자 채널이 가득 차서 버린 프레임
	SessionDrops  int64                 `json:"session_dropped"` // 세션 수신 버퍼에서 버린 프레임
	Reconnects    int64                 `json:"reconnects"`
	Rejected      []string              `json:"rejected,omitempty"`
}

// Supervisor 실시간 세션 관리자
type Supervisor struct {
	cfg     Config
	session Session
	symbols []string
	hours   MarketHours
	creds   CredentialInvalidator

	frames chan *domain.DataFrame

	forwarded  atomic.Int64
	dropped    atomic.Int64
	reconnects atomic.Int64

	mu       sync.Mutex
	rejected map[string]string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSupervisor creates a supervisor for symbols. hours and creds may be nil.
func NewSupervisor(cfg Config, session Session, symbols []string, hours MarketHours, creds CredentialInvalidator) *Supervisor {
	cfg.withDefaults()
	return &Supervisor{
		cfg:      cfg,
		session:  session,
		symbols:  append([]string(nil), symbols...),
		hours:    hours,
		creds:    creds,
		frames:   make(chan *domain.DataFrame, cfg.FrameBuffer),
		rejected: make(map[string]string),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Frames returns the channel of data frames. It is closed when Run returns.
func (s *Supervisor) Frames() <-chan *domain.DataFrame {
	return s.frames
}

// Stats returns a point-in-time view of the stream.
func (s *Supervisor) Stats() Stats {
	st := Stats{
		State:         s.session.State(),
		Subscriptions: s.session.Subscriptions(),
		Forwarded:     s.forwarded.Load(),
		Dropped:       s.dropped.Load(),
		SessionDrops:  s.session.Dropped(),
		Reconnects:    s.reconnects.Load(),
	}
	s.mu.Lock()
	for sym := range s.rejected {
		st.Rejected = append(st.Rejected, sym)
	}
	s.mu.Unlock()
	return st
}

// Run streams until ctx is done or MaxAttempts consecutive runs fail.
// Returns nil on cancellation.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.frames)
	defer func() {
		if err := s.session.Close(); err != nil {
			log.Warn().Err(err).Msg("[STREAM] Session close failed")
		}
	}()

	log.Info().
		Int("symbols", len(s.symbols)).
		Str("tr_id", s.cfg.TrID).
		Bool("market_hours_only", s.cfg.MarketHoursOnly).
		Msg("[STREAM] Supervisor started")

	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := s.waitForMarket(ctx); err != nil {
			return nil
		}

		streamed, err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if streamed {
			failures = 0
		}
		if err == nil {
			// 장 마감으로 정상 종료
			continue
		}

		failures++
		if failures >= s.cfg.MaxAttempts {
			log.Error().Err(err).Int("attempts", failures).Msg("[STREAM] Giving up")
			return fmt.Errorf("stream failed after %d attempts: %w", failures, err)
		}

		if errors.Is(err, domain.ErrSubscriptionRejected) && s.creds != nil {
			s.creds.Invalidate(auth.KindApproval)
		}

		wait := s.cfg.Backoff.Next(failures)
		log.Warn().
			Err(err).
			Int("attempt", failures).
			Dur("backoff", wait).
			Msg("[STREAM] Reconnecting")
		s.reconnects.Add(1)

		if err := s.sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

// runOnce performs one connect, subscribe, receive cycle. streamed reports
// whether at least one subscription was acknowledged.
func (s *Supervisor) runOnce(ctx context.Context) (streamed bool, err error) {
	defer func() {
		if cerr := s.session.Close(); cerr != nil {
			log.Debug().Err(cerr).Msg("[STREAM] Close after run")
		}
	}()

	if err := s.session.Connect(ctx); err != nil {
		return false, err
	}

	if err := s.subscribeAll(ctx); err != nil {
		return false, err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var closedForDay atomic.Bool
	if s.cfg.MarketHoursOnly && s.hours != nil {
		go s.watchClose(loopCtx, cancel, &closedForDay)
	}

	err = s.session.RunReceiveLoop(loopCtx, s.handle)
	if closedForDay.Load() {
		log.Info().Msg("[STREAM] Market closed, disconnecting")
		return true, nil
	}
	if err == nil && ctx.Err() == nil {
		err = domain.ErrStreamClosed
	}
	return true, err
}

// subscribeAll subscribes every symbol. A rejected symbol is recorded and
// skipped; any other failure, or rejection of all symbols, aborts the run.
func (s *Supervisor) subscribeAll(ctx context.Context) error {
	ok := 0
	var lastErr error
	for _, sym := range s.symbols {
		err := s.session.Subscribe(ctx, sym, s.cfg.TrID)
		if err == nil {
			ok++
			s.mu.Lock()
			delete(s.rejected, sym)
			s.mu.Unlock()
			continue
		}

		var rej *domain.RejectedError
		if errors.As(err, &rej) {
			log.Warn().Str("symbol", sym).Str("reason", rej.Reason).Msg("[STREAM] Subscription rejected")
			s.mu.Lock()
			s.rejected[sym] = rej.Reason
			s.mu.Unlock()
			lastErr = err
			continue
		}
		return fmt.Errorf("subscribe %s: %w", sym, err)
	}

	if ok == 0 {
		if lastErr == nil {
			return fmt.Errorf("%w: no symbols configured", domain.ErrInvalidState)
		}
		return fmt.Errorf("no subscription accepted: %w", lastErr)
	}

	log.Info().Int("subscribed", ok).Int("total", len(s.symbols)).Msg("[STREAM] Subscriptions established")
	return nil
}

// handle runs on the receive loop and must never block.
func (s *Supervisor) handle(msg domain.DecodedMessage) {
	if msg.Kind != domain.KindData || msg.Frame == nil {
		if msg.Control != nil && !msg.Control.IsHeartbeat() {
			log.Debug().Str("tr_id", msg.Control.TrID).Str("msg", msg.Control.Msg1).Msg("[STREAM] Control message")
		}
		return
	}

	select {
	case s.frames <- msg.Frame:
		s.forwarded.Add(1)
	default:
		n := s.dropped.Add(1)
		if n == 1 || n%1000 == 0 {
			log.Warn().Int64("dropped", n).Msg("[STREAM] Frame channel full, dropping")
		}
	}
}

func (s *Supervisor) waitForMarket(ctx context.Context) error {
	if !s.cfg.MarketHoursOnly || s.hours == nil {
		return nil
	}
	now := s.now()
	if s.hours.IsOpen(now) {
		return nil
	}
	next := s.hours.NextOpen(now)
	if next.IsZero() {
		// 2주 내 개장일 없음
		next = now.Add(time.Hour)
	}
	log.Info().Time("next_open", next).Msg("[STREAM] Market closed, waiting")
	return s.sleep(ctx, next.Sub(now))
}

func (s *Supervisor) watchClose(ctx context.Context, cancel context.CancelFunc, closed *atomic.Bool) {
	ticker := time.NewTicker(s.cfg.HoursPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.hours.IsOpen(s.now()) {
				closed.Store(true)
				cancel()
				return
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
