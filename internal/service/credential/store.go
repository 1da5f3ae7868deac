// Package credential keeps the access and approval credentials fresh.
package credential

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/auth"
)

// Config holds store settings.
type Config struct {
	AppKey       string
	AppSecret    string
	IssueTimeout time.Duration
}

// Store hands out usable credentials, issuing new ones when the held
// credential is absent or expired. Concurrent refreshes of the same kind
// share one issuance.
type Store struct {
	cfg    Config
	issuer auth.Issuer
	cache  auth.Cache // access credential only, may be nil
	now    func() time.Time

	mu          sync.RWMutex
	held        map[auth.Kind]auth.Credential
	cacheLoaded bool

	// Singleflight to prevent stampede
	sf singleflight.Group
}

// NewStore creates a Store. cache may be nil.
func NewStore(cfg Config, issuer auth.Issuer, cache auth.Cache) *Store {
	if cfg.IssueTimeout <= 0 {
		cfg.IssueTimeout = 10 * time.Second
	}
	return &Store{
		cfg:    cfg,
		issuer: issuer,
		cache:  cache,
		now:    time.Now,
		held:   make(map[auth.Kind]auth.Credential),
	}
}

// GetApprovalCredential returns a usable stream approval credential.
func (s *Store) GetApprovalCredential(ctx context.Context) (auth.Credential, error) {
	return s.get(ctx, auth.KindApproval)
}

// GetAccessCredential returns a usable REST access credential.
func (s *Store) GetAccessCredential(ctx context.Context) (auth.Credential, error) {
	return s.get(ctx, auth.KindAccess)
}

// Held returns the credential currently held for kind, usable or not.
func (s *Store) Held(kind auth.Kind) (auth.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.held[kind]
	return c, ok
}

// Invalidate drops the held credential so the next call re-issues.
func (s *Store) Invalidate(kind auth.Kind) {
	s.mu.Lock()
	delete(s.held, kind)
	s.mu.Unlock()
	log.Info().Str("kind", string(kind)).Msg("[AUTH] Credential invalidated")
}

func (s *Store) usable(kind auth.Kind) (auth.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.held[kind]
	if !ok || !c.IsUsable(s.now()) {
		return auth.Credential{}, false
	}
	return c, true
}

func (s *Store) get(ctx context.Context, kind auth.Kind) (auth.Credential, error) {
	if c, ok := s.usable(kind); ok {
		return c, nil
	}
	if kind == auth.KindAccess {
		s.loadCache()
		if c, ok := s.usable(kind); ok {
			return c, nil
		}
	}

	// 발급은 호출자 취소와 분리: 먼저 취소한 호출자가 다른 대기자의 발급을 깨지 않도록
	ch := s.sf.DoChan(string(kind), func() (interface{}, error) {
		if c, ok := s.usable(kind); ok {
			return c, nil
		}
		return s.refresh(context.WithoutCancel(ctx), kind)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return auth.Credential{}, res.Err
		}
		return res.Val.(auth.Credential), nil
	case <-ctx.Done():
		return auth.Credential{}, ctx.Err()
	}
}

func (s *Store) refresh(ctx context.Context, kind auth.Kind) (auth.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.IssueTimeout)
	defer cancel()

	start := s.now()
	var (
		cred auth.Credential
		err  error
	)
	switch kind {
	case auth.KindAccess:
		cred, err = s.issuer.IssueAccessCredential(ctx, s.cfg.AppKey, s.cfg.AppSecret)
	case auth.KindApproval:
		cred, err = s.issuer.IssueApprovalCredential(ctx, s.cfg.AppKey, s.cfg.AppSecret)
	default:
		return auth.Credential{}, fmt.Errorf("%w: unknown credential kind %q", auth.ErrIssuanceFailed, kind)
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || isTimeout(err) {
			log.Error().Str("kind", string(kind)).Dur("timeout", s.cfg.IssueTimeout).Msg("[AUTH] Issuance timed out")
			return auth.Credential{}, fmt.Errorf("%w: %s after %s", auth.ErrIssuanceTimeout, kind, s.cfg.IssueTimeout)
		}
		log.Error().Err(err).Str("kind", string(kind)).Msg("[AUTH] Issuance failed")
		return auth.Credential{}, fmt.Errorf("%w: %s: %w", auth.ErrIssuanceFailed, kind, err)
	}

	cred.Kind = kind
	if !cred.IsUsable(s.now()) {
		return auth.Credential{}, fmt.Errorf("%w: %s credential already expired at issuance", auth.ErrIssuanceFailed, kind)
	}

	s.mu.Lock()
	s.held[kind] = cred
	s.mu.Unlock()

	log.Info().
		Str("kind", string(kind)).
		Time("expires_at", cred.ExpiresAt()).
		Dur("took", s.now().Sub(start)).
		Msg("[AUTH] Credential refreshed")

	if kind == auth.KindAccess && s.cache != nil {
		if err := s.cache.Save(cred); err != nil {
			log.Warn().Err(err).Msg("[AUTH] Failed to persist access credential")
		}
	}
	return cred, nil
}

// isTimeout reports whether err is a deadline hit anywhere below the store,
// e.g. the issuer's own HTTP client timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// loadCache reads the persisted access credential once.
func (s *Store) loadCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cacheLoaded || s.cache == nil {
		return
	}
	s.cacheLoaded = true

	cred, err := s.cache.Load(s.now())
	if err != nil {
		log.Warn().Err(err).Msg("[AUTH] Ignoring unreadable token cache")
		return
	}
	if cred == nil {
		return
	}
	cred.Kind = auth.KindAccess
	s.held[auth.KindAccess] = *cred
	log.Info().Time("expires_at", cred.ExpiresAt()).Msg("[AUTH] Access credential loaded from cache")
}
