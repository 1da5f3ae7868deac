package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/ranking"
)

// RankingRepository PostgreSQL 순위 저장소 구현
type RankingRepository struct {
	pool *Pool
}

// NewRankingRepository 순위 저장소 생성
func NewRankingRepository(pool *Pool) *RankingRepository {
	return &RankingRepository{pool: pool}
}

// SaveSnapshot 스냅샷과 순위 항목을 한 트랜잭션으로 저장
func (r *RankingRepository) SaveSnapshot(ctx context.Context, snapshot *ranking.RankingSnapshot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO market.ranking_snapshots
			(snapshot_id, generated_at, total_count, scored_count, avg_score, max_score, min_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		snapshot.SnapshotID, snapshot.GeneratedAt, snapshot.TotalCount, snapshot.ScoredCount,
		snapshot.Stats.AvgScore, snapshot.Stats.MaxScore, snapshot.Stats.MinScore,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if len(snapshot.Rankings) > 0 {
		batch := &pgx.Batch{}
		for _, e := range snapshot.Rankings {
			batch.Queue(`
				INSERT INTO market.ranking_entries (
					snapshot_id, rank, stock_code, stock_name, score,
					trend_score, volume_score, flow_score, breakout_score, candle_score
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			`,
				snapshot.SnapshotID, e.Rank, e.Symbol, e.Name, e.Score,
				e.Breakdown.Trend, e.Breakdown.Volume, e.Breakdown.Flow, e.Breakdown.Breakout, e.Breakdown.Candle,
			)
		}

		br := tx.SendBatch(ctx, batch)
		for range snapshot.Rankings {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert ranking entry: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	log.Debug().
		Str("snapshot_id", snapshot.SnapshotID).
		Int("count", len(snapshot.Rankings)).
		Msg("Saved ranking snapshot")
	return nil
}

// GetLatestSnapshot 최신 스냅샷 조회
func (r *RankingRepository) GetLatestSnapshot(ctx context.Context) (*ranking.RankingSnapshot, error) {
	return r.getSnapshot(ctx, `
		SELECT snapshot_id, generated_at, total_count, scored_count, avg_score, max_score, min_score
		FROM market.ranking_snapshots
		ORDER BY generated_at DESC
		LIMIT 1
	`)
}

// GetSnapshotByID 특정 스냅샷 조회
func (r *RankingRepository) GetSnapshotByID(ctx context.Context, snapshotID string) (*ranking.RankingSnapshot, error) {
	return r.getSnapshot(ctx, `
		SELECT snapshot_id, generated_at, total_count, scored_count, avg_score, max_score, min_score
		FROM market.ranking_snapshots
		WHERE snapshot_id = $1
	`, snapshotID)
}

func (r *RankingRepository) getSnapshot(ctx context.Context, query string, args ...any) (*ranking.RankingSnapshot, error) {
	var s ranking.RankingSnapshot
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&s.SnapshotID, &s.GeneratedAt, &s.TotalCount, &s.ScoredCount,
		&s.Stats.AvgScore, &s.Stats.MaxScore, &s.Stats.MinScore,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ranking.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT rank, stock_code, stock_name, score,
			trend_score, volume_score, flow_score, breakout_score, candle_score
		FROM market.ranking_entries
		WHERE snapshot_id = $1
		ORDER BY rank
	`, s.SnapshotID)
	if err != nil {
		return nil, fmt.Errorf("query ranking entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e ranking.RankedStock
		if err := rows.Scan(
			&e.Rank, &e.Symbol, &e.Name, &e.Score,
			&e.Breakdown.Trend, &e.Breakdown.Volume, &e.Breakdown.Flow, &e.Breakdown.Breakout, &e.Breakdown.Candle,
		); err != nil {
			return nil, fmt.Errorf("scan ranking entry: %w", err)
		}
		s.Rankings = append(s.Rankings, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ranking entries: %w", err)
	}
	return &s, nil
}

// Prune 최근 keep 개를 제외한 스냅샷 삭제 (항목은 CASCADE)
func (r *RankingRepository) Prune(ctx context.Context, keep int) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM market.ranking_snapshots
		WHERE snapshot_id NOT IN (
			SELECT snapshot_id FROM market.ranking_snapshots
			ORDER BY generated_at DESC
			LIMIT $1
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("delete old snapshots: %w", err)
	}

	deleted := result.RowsAffected()
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Int("kept", keep).Msg("Deleted old ranking snapshots")
	}
	return deleted, nil
}
