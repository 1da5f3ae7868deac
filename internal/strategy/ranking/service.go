package ranking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/history"
	"github.com/Jeongbyungkyu/korea-investment/internal/domain/ranking"
	"github.com/Jeongbyungkyu/korea-investment/internal/strategy/scoring"
)

// HistoryProvider 순위 계산용 이력 제공자
type HistoryProvider interface {
	// Snapshots returns independent copies in universe order.
	Snapshots() []*history.History
}

// Config 순위 서비스 설정
type Config struct {
	TopN        int
	Interval    time.Duration // 0 이면 주기 실행 안 함
	Concurrency int
	Keep        int // 저장소에 남길 스냅샷 수, 0 이면 전부 보관
}

// Pruner is implemented by repositories that can drop old snapshots.
type Pruner interface {
	Prune(ctx context.Context, keep int) (int64, error)
}

// Service Ranking 서비스
type Service struct {
	ctx context.Context
	cfg Config

	// Repositories
	rankingRepo ranking.RankingRepository // nil 이면 메모리만 사용

	// Inputs
	histories HistoryProvider
	scorer    *scoring.Scorer

	// Cache
	mu             sync.RWMutex
	latestSnapshot *ranking.RankingSnapshot

	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewService 새 서비스 생성
func NewService(
	ctx context.Context,
	cfg Config,
	histories HistoryProvider,
	scorer *scoring.Scorer,
	rankingRepo ranking.RankingRepository,
) *Service {
	if cfg.TopN <= 0 {
		cfg.TopN = scoring.DefaultTopN
	}
	if scorer == nil {
		scorer = scoring.NewScorer()
	}
	return &Service{
		ctx:         ctx,
		cfg:         cfg,
		rankingRepo: rankingRepo,
		histories:   histories,
		scorer:      scorer,
		now:         time.Now,
	}
}

// Start 서비스 시작
func (s *Service) Start() error {
	log.Info().Dur("interval", s.cfg.Interval).Int("top_n", s.cfg.TopN).Msg("[RANK] Starting ranking service")

	// Load latest snapshot on startup
	if s.rankingRepo != nil {
		snapshot, err := s.rankingRepo.GetLatestSnapshot(s.ctx)
		if err != nil {
			log.Warn().Err(err).Msg("[RANK] No existing snapshot")
		} else {
			s.setLatest(snapshot)
			log.Info().
				Str("snapshot_id", snapshot.SnapshotID).
				Int("rankings", len(snapshot.Rankings)).
				Msg("[RANK] Loaded latest ranking snapshot")
		}
	}

	if s.cfg.Interval <= 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop 서비스 정지
func (s *Service) Stop() error {
	log.Info().Msg("[RANK] Stopping ranking service")
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.GenerateRankings(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("[RANK] Ranking pass failed")
			}
		}
	}
}

// GenerateRankings 현재 이력으로 순위 생성
func (s *Service) GenerateRankings(ctx context.Context) (*ranking.RankingSnapshot, error) {
	started := s.now()

	// 1. Snapshot histories
	histories := s.histories.Snapshots()

	// 2. Score and select top N
	res, err := s.scorer.Rank(ctx, histories, s.cfg.TopN, s.cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}
	if res.Scored == 0 {
		return nil, ranking.ErrNoValidStocks
	}

	// 3. Create snapshot
	snapshot := &ranking.RankingSnapshot{
		SnapshotID:  generateSnapshotID(started),
		GeneratedAt: started,
		TotalCount:  len(histories),
		ScoredCount: res.Scored,
		Rankings:    res.Rankings,
		Stats:       calculateStats(res.Rankings),
	}

	// 4. Save snapshot
	if s.rankingRepo != nil {
		if err := s.rankingRepo.SaveSnapshot(ctx, snapshot); err != nil {
			return nil, fmt.Errorf("save snapshot: %w", err)
		}
		if p, ok := s.rankingRepo.(Pruner); ok && s.cfg.Keep > 0 {
			if _, err := p.Prune(ctx, s.cfg.Keep); err != nil {
				log.Warn().Err(err).Msg("[RANK] Failed to prune old snapshots")
			}
		}
	}

	// 5. Update cache
	s.setLatest(snapshot)

	log.Info().
		Str("snapshot_id", snapshot.SnapshotID).
		Int("total", snapshot.TotalCount).
		Int("scored", snapshot.ScoredCount).
		Int("selected", len(snapshot.Rankings)).
		Float64("avg_score", snapshot.Stats.AvgScore).
		Dur("elapsed", s.now().Sub(started)).
		Msg("[RANK] Rankings generated")

	return snapshot, nil
}

// GetLatestSnapshot 최신 스냅샷 조회
func (s *Service) GetLatestSnapshot(ctx context.Context) (*ranking.RankingSnapshot, error) {
	s.mu.RLock()
	latest := s.latestSnapshot
	s.mu.RUnlock()
	if latest != nil {
		return latest, nil
	}

	if s.rankingRepo == nil {
		return nil, ranking.ErrSnapshotNotFound
	}
	snapshot, err := s.rankingRepo.GetLatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	s.setLatest(snapshot)
	return snapshot, nil
}

// GetSnapshotByID 특정 스냅샷 조회
func (s *Service) GetSnapshotByID(ctx context.Context, snapshotID string) (*ranking.RankingSnapshot, error) {
	s.mu.RLock()
	latest := s.latestSnapshot
	s.mu.RUnlock()
	if latest != nil && latest.SnapshotID == snapshotID {
		return latest, nil
	}
	if s.rankingRepo == nil {
		return nil, ranking.ErrSnapshotNotFound
	}
	return s.rankingRepo.GetSnapshotByID(ctx, snapshotID)
}

// GetRankBySymbol 최신 스냅샷에서 종목 순위 조회
func (s *Service) GetRankBySymbol(ctx context.Context, symbol string) (*ranking.RankedStock, error) {
	snapshot, err := s.GetLatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	stock, ok := snapshot.Find(symbol)
	if !ok {
		return nil, ranking.ErrRankNotFound
	}
	return stock, nil
}

func (s *Service) setLatest(snapshot *ranking.RankingSnapshot) {
	s.mu.Lock()
	s.latestSnapshot = snapshot
	s.mu.Unlock()
}

// calculateStats 통계 계산
func calculateStats(selected []ranking.RankedStock) ranking.RankingStats {
	if len(selected) == 0 {
		return ranking.RankingStats{}
	}

	stats := ranking.RankingStats{
		MaxScore: selected[0].Score,
		MinScore: selected[0].Score,
	}
	total := 0.0
	for _, stock := range selected {
		total += stock.Score
		if stock.Score > stats.MaxScore {
			stats.MaxScore = stock.Score
		}
		if stock.Score < stats.MinScore {
			stats.MinScore = stock.Score
		}
	}
	stats.AvgScore = total / float64(len(selected))
	return stats
}

// generateSnapshotID 스냅샷 ID 생성
func generateSnapshotID(now time.Time) string {
	return fmt.Sprintf("%s-%s", now.Format("20060102"), uuid.New().String()[:8])
}

// IsNotFound reports whether err means no snapshot or rank exists.
func IsNotFound(err error) bool {
	return errors.Is(err, ranking.ErrSnapshotNotFound) || errors.Is(err, ranking.ErrRankNotFound)
}
