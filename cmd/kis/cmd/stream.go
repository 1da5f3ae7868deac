package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Jeongbyungkyu/korea-investment/internal/api/handlers"
	"github.com/Jeongbyungkyu/korea-investment/internal/api/router"
	domainhistory "github.com/Jeongbyungkyu/korea-investment/internal/domain/history"
	"github.com/Jeongbyungkyu/korea-investment/internal/infra/kis"
	"github.com/Jeongbyungkyu/korea-investment/internal/pkg/logger"
	"github.com/Jeongbyungkyu/korea-investment/internal/pkg/profiling"
	"github.com/Jeongbyungkyu/korea-investment/internal/service/market"
	"github.com/Jeongbyungkyu/korea-investment/internal/service/stream"
	"github.com/Jeongbyungkyu/korea-investment/internal/strategy/ranking"
)

var noServer bool

// streamCmd 실시간 스트림 실행
var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "실시간 체결 스트림 실행",
	Long: `일봉 이력을 불러온 뒤 실시간 체결을 구독하고, 주기적으로 순위를 계산합니다.
상태 API(/health, /api/...)를 함께 띄웁니다. Ctrl+C로 종료할 수 있습니다.

Examples:
  go run ./cmd/kis stream
  go run ./cmd/kis stream --no-server`,
	RunE: runStream,
}

func init() {
	streamCmd.Flags().BoolVar(&noServer, "no-server", false, "do not start the HTTP status API")
}

func runStream(cmd *cobra.Command, args []string) error {
	log.Info().
		Str("version", serviceVersion).
		Bool("prod", cfg.KIS.IsProd).
		Msg("🚀 Starting KIS stream...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopProfiler, err := profiling.Start(serviceName, cfg.Profiling.ServerAddress,
		map[string]string{"version": serviceVersion}, logger.Component("pyroscope"))
	if err != nil {
		log.Warn().Err(err).Msg("Profiler not started")
	} else {
		defer stopProfiler()
	}

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	// ========================================
	// 1. History → live bar book
	// ========================================
	histories, bench, err := a.loadHistories(ctx)
	if err != nil {
		return err
	}

	book := market.NewBook(a.calendar)
	symbols := make([]string, 0, len(histories))
	for _, h := range histories {
		book.Seed(h)
		symbols = append(symbols, h.Symbol)
	}

	// ========================================
	// 2. Stream session + supervisor
	// ========================================
	session := kis.NewSession(kis.SessionConfig{
		URL:               a.kisCfg.WebSocketURL,
		AckTimeout:        cfg.Stream.AckTimeout,
		HeartbeatInterval: cfg.Stream.HeartbeatInterval,
		InboundBuffer:     cfg.Stream.InboundBuffer,
	}, a.creds, nil)

	backoff := stream.DefaultBackoff()
	backoff.Min = cfg.Stream.BackoffMin
	backoff.Max = cfg.Stream.BackoffMax

	supervisor := stream.NewSupervisor(stream.Config{
		TrID:            cfg.Stream.TrID,
		Backoff:         backoff,
		MaxAttempts:     cfg.Stream.MaxAttempts,
		FrameBuffer:     cfg.Stream.TickBuffer,
		MarketHoursOnly: cfg.Stream.MarketHoursOnly,
	}, session, symbols, a.calendar, a.creds)

	streamDone := make(chan error, 1)
	go func() {
		streamDone <- supervisor.Run(ctx)
	}()
	go book.Consume(ctx, supervisor.Frames())

	log.Info().Int("symbols", len(symbols)).Str("tr_id", cfg.Stream.TrID).Msg("✅ Stream supervisor started")

	// ========================================
	// 3. Periodic ranking
	// ========================================
	rankingService := ranking.NewService(ctx, ranking.Config{
		TopN:        cfg.Scoring.TopN,
		Interval:    cfg.Scoring.Interval,
		Concurrency: cfg.Scoring.Concurrency,
		Keep:        cfg.Scoring.KeepSnapshots,
	}, book, a.scorer, a.rankingRepo)
	if err := rankingService.Start(); err != nil {
		return err
	}
	defer rankingService.Stop()

	log.Info().Dur("interval", cfg.Scoring.Interval).Msg("✅ Ranking service started")

	// ========================================
	// 4. Status API
	// ========================================
	var server *http.Server
	if !noServer {
		var db handlers.DBHealth
		if a.pool != nil {
			db = a.pool
		}
		benchmark := ""
		if bench != nil {
			benchmark = bench.Symbol
		}
		accessLogger := logger.Component("http")

		server = &http.Server{
			Addr: cfg.Server.Addr,
			Handler: router.NewRouter(&router.Config{
				HealthHandler:     handlers.NewHealthHandler(db, serviceVersion),
				SessionHandler:    handlers.NewSessionHandler(supervisor, book),
				RankingsHandler:   handlers.NewRankingsHandler(rankingService),
				SecuritiesHandler: handlers.NewSecuritiesHandler(withBenchmark{book: book, bench: bench}, a.scorer, benchmark, cfg.Scoring.VolumeRatioSentinel),
				AccessLogger:      &accessLogger,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.Server.Addr).Msg("✅ Status API listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Status API failed")
			}
		}()
	}

	log.Info().Msg("🎯 All services are running")

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("🛑 Shutdown signal received, stopping services...")
	case runErr = <-streamDone:
		if runErr != nil {
			log.Error().Err(runErr).Msg("Stream supervisor gave up")
		}
	}
	stop()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Status API shutdown")
		}
	}

	st := supervisor.Stats()
	log.Info().
		Int64("forwarded", st.Forwarded).
		Int64("dropped", st.Dropped).
		Int64("session_dropped", st.SessionDrops).
		Int64("reconnects", st.Reconnects).
		Int64("ticks_applied", book.Applied()).
		Msg("👋 KIS stream stopped")
	return runErr
}

// withBenchmark serves the benchmark history next to the book, which only
// tracks universe securities.
type withBenchmark struct {
	book  *market.Book
	bench *domainhistory.History
}

func (w withBenchmark) Snapshot(symbol string) (*domainhistory.History, bool) {
	if w.bench != nil && symbol == w.bench.Symbol {
		return w.bench.Clone(), true
	}
	return w.book.Snapshot(symbol)
}
