// Package history loads the daily history the ranking needs, preferring the
// local repository and falling back to the venue REST API.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	domain "github.com/Jeongbyungkyu/korea-investment/internal/domain/history"
	"github.com/Jeongbyungkyu/korea-investment/internal/pkg/config"
)

// Config 이력 로더 설정
type Config struct {
	RequiredBars int           // 종목당 필요한 일봉 수
	FlowDays     int           // 저장소에서 읽을 수급 일수
	MaxAge       time.Duration // 마지막 일봉이 이보다 오래되면 다시 조회
	Concurrency  int
}

func (c *Config) withDefaults() {
	if c.RequiredBars <= 0 {
		c.RequiredBars = 120
	}
	if c.FlowDays <= 0 {
		c.FlowDays = 60
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 4 * 24 * time.Hour
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
}

// Failure records a security that could not be loaded.
type Failure struct {
	Symbol string
	Err    error
}

// Loader 일봉/수급 이력 로더
type Loader struct {
	cfg    Config
	source domain.Source
	repo   domain.Repository // nil 이면 REST 만 사용
	now    func() time.Time
}

// NewLoader creates a loader. repo may be nil.
func NewLoader(cfg Config, source domain.Source, repo domain.Repository) *Loader {
	cfg.withDefaults()
	return &Loader{
		cfg:    cfg,
		source: source,
		repo:   repo,
		now:    time.Now,
	}
}

// Load returns the history of one security.
func (l *Loader) Load(ctx context.Context, sec config.Security) (*domain.History, error) {
	if h, ok := l.fromRepository(ctx, sec); ok {
		return h, nil
	}

	name, bars, err := l.source.GetDailyBars(ctx, sec.Code, l.cfg.RequiredBars)
	if err != nil {
		return nil, fmt.Errorf("fetch bars %s: %w", sec.Code, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s returned no bars", domain.ErrInsufficientHistory, sec.Code)
	}

	flows, err := l.source.GetInvestorFlows(ctx, sec.Code)
	if err != nil {
		// 수급 없이도 일봉 지표는 계산 가능
		log.Warn().Err(err).Str("symbol", sec.Code).Msg("[HISTORY] Investor flows unavailable")
		flows = nil
	}

	if sec.Name != "" {
		name = sec.Name
	}
	h := &domain.History{Symbol: sec.Code, Name: name, Bars: bars, Flows: flows}
	if err := h.Validate(); err != nil {
		return nil, err
	}

	l.store(ctx, h)

	log.Debug().
		Str("symbol", sec.Code).
		Int("bars", len(bars)).
		Int("flows", len(flows)).
		Msg("[HISTORY] Loaded from venue")
	return h, nil
}

// LoadAll loads every security with bounded concurrency. Results keep the
// input order; failed securities are skipped and reported. Only ctx
// cancellation returns an error.
func (l *Loader) LoadAll(ctx context.Context, secs []config.Security) ([]*domain.History, []Failure, error) {
	results := make([]*domain.History, len(secs))
	errs := make([]error, len(secs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Concurrency)
	for i, sec := range secs {
		i, sec := i, sec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h, err := l.Load(gctx, sec)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				errs[i] = err
				return nil
			}
			results[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	out := make([]*domain.History, 0, len(secs))
	var failures []Failure
	for i, h := range results {
		if h != nil {
			out = append(out, h)
			continue
		}
		log.Warn().Err(errs[i]).Str("symbol", secs[i].Code).Msg("[HISTORY] Skipping security")
		failures = append(failures, Failure{Symbol: secs[i].Code, Err: errs[i]})
	}

	log.Info().
		Int("loaded", len(out)).
		Int("failed", len(failures)).
		Msg("[HISTORY] Universe loaded")
	return out, failures, nil
}

func (l *Loader) fromRepository(ctx context.Context, sec config.Security) (*domain.History, bool) {
	if l.repo == nil {
		return nil, false
	}

	bars, err := l.repo.GetLatestBars(ctx, sec.Code, l.cfg.RequiredBars)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Warn().Err(err).Str("symbol", sec.Code).Msg("[HISTORY] Repository read failed")
		}
		return nil, false
	}
	if len(bars) < l.cfg.RequiredBars {
		return nil, false
	}
	if last := bars[len(bars)-1].Date; l.now().Sub(last) > l.cfg.MaxAge {
		log.Debug().Str("symbol", sec.Code).Time("last_bar", last).Msg("[HISTORY] Repository history stale")
		return nil, false
	}

	flows, err := l.repo.GetLatestFlows(ctx, sec.Code, l.cfg.FlowDays)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Warn().Err(err).Str("symbol", sec.Code).Msg("[HISTORY] Repository flow read failed")
		return nil, false
	}

	h := &domain.History{Symbol: sec.Code, Name: sec.Name, Bars: bars, Flows: flows}
	if err := h.Validate(); err != nil {
		log.Warn().Err(err).Str("symbol", sec.Code).Msg("[HISTORY] Repository history invalid")
		return nil, false
	}
	return h, true
}

// store writes fetched history back; failures only cost a refetch next time.
func (l *Loader) store(ctx context.Context, h *domain.History) {
	if l.repo == nil {
		return
	}
	if _, err := l.repo.UpsertBars(ctx, h.Symbol, h.Bars); err != nil {
		log.Warn().Err(err).Str("symbol", h.Symbol).Msg("[HISTORY] Failed to save bars")
	}
	if len(h.Flows) == 0 {
		return
	}
	if _, err := l.repo.UpsertFlows(ctx, h.Symbol, h.Flows); err != nil {
		log.Warn().Err(err).Str("symbol", h.Symbol).Msg("[HISTORY] Failed to save flows")
	}
}
