package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	domainhistory "github.com/Jeongbyungkyu/korea-investment/internal/domain/history"
	"github.com/Jeongbyungkyu/korea-investment/internal/domain/ranking"
	"github.com/Jeongbyungkyu/korea-investment/internal/infra/database/postgres"
	"github.com/Jeongbyungkyu/korea-investment/internal/infra/kis"
	"github.com/Jeongbyungkyu/korea-investment/internal/infra/tokencache"
	"github.com/Jeongbyungkyu/korea-investment/internal/pkg/config"
	"github.com/Jeongbyungkyu/korea-investment/internal/pkg/market"
	"github.com/Jeongbyungkyu/korea-investment/internal/service/credential"
	"github.com/Jeongbyungkyu/korea-investment/internal/service/history"
	"github.com/Jeongbyungkyu/korea-investment/internal/strategy/scoring"
)

// app holds the components shared by every command.
type app struct {
	universe *config.Universe
	calendar *market.Calendar
	kisCfg   *kis.Config
	creds    *credential.Store
	rest     *kis.RESTClient
	scorer   *scoring.Scorer

	// nil when DATABASE_URL is empty
	pool        *postgres.Pool
	historyRepo domainhistory.Repository
	rankingRepo ranking.RankingRepository
}

func newApp(ctx context.Context, withUniverse bool) (*app, error) {
	a := &app{calendar: market.NewKRX()}

	if withUniverse {
		u, err := config.LoadUniverse(cfg.UniverseFile)
		if err != nil {
			return nil, err
		}
		a.universe = u
		log.Info().
			Str("file", cfg.UniverseFile).
			Int("securities", len(u.Securities)).
			Str("benchmark", u.Benchmark).
			Msg("Universe loaded")
	}

	a.kisCfg = kis.NewConfig(cfg.KIS.AppKey, cfg.KIS.AppSecret, cfg.KIS.IsProd)
	a.kisCfg.ApprovalValidity = cfg.KIS.ApprovalValidity
	a.kisCfg.RequestInterval = cfg.KIS.RequestInterval

	cache := tokencache.NewFileCache(filepath.Clean(cfg.KIS.TokenCacheFile), a.calendar.Location())
	a.creds = credential.NewStore(credential.Config{
		AppKey:       cfg.KIS.AppKey,
		AppSecret:    cfg.KIS.AppSecret,
		IssueTimeout: cfg.KIS.IssueTimeout,
	}, kis.NewIssuer(a.kisCfg), cache)
	a.rest = kis.NewRESTClient(a.kisCfg, a.creds)

	a.scorer = scoring.NewScorer(
		scoring.WithMinBars(cfg.Scoring.MinBars),
		scoring.WithVolumeRatioSentinel(cfg.Scoring.VolumeRatioSentinel),
	)

	if cfg.Database.URL == "" {
		log.Warn().Msg("DATABASE_URL not set, running without persistence")
		return a, nil
	}

	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	a.pool = pool
	a.historyRepo = postgres.NewHistoryRepository(pool)
	a.rankingRepo = postgres.NewRankingRepository(pool)

	log.Info().Msg("✅ Database connected")
	return a, nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// loadHistories loads the universe and the benchmark. A benchmark that
// cannot be loaded only disables beta.
func (a *app) loadHistories(ctx context.Context) ([]*domainhistory.History, *domainhistory.History, error) {
	loader := history.NewLoader(history.Config{
		RequiredBars: cfg.Scoring.MinBars,
		Concurrency:  cfg.Scoring.Concurrency,
	}, a.rest, a.historyRepo)

	histories, failures, err := loader.LoadAll(ctx, a.universe.Securities)
	if err != nil {
		return nil, nil, err
	}
	for _, f := range failures {
		log.Warn().Err(f.Err).Str("symbol", f.Symbol).Msg("History load failed, excluded")
	}
	if len(histories) == 0 {
		return nil, nil, fmt.Errorf("no history loaded for %d securities", len(a.universe.Securities))
	}

	var bench *domainhistory.History
	if a.universe.Benchmark != "" {
		bench, err = loader.Load(ctx, config.Security{Code: a.universe.Benchmark})
		if err != nil {
			log.Warn().Err(err).Str("benchmark", a.universe.Benchmark).Msg("Benchmark load failed, beta disabled")
			bench = nil
		}
	}

	log.Info().
		Int("loaded", len(histories)).
		Int("failed", len(failures)).
		Bool("benchmark", bench != nil).
		Msg("✅ History loaded")
	return histories, bench, nil
}
