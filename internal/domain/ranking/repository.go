package ranking

import (
	"context"
)

// RankingRepository 순위 저장소
type RankingRepository interface {
	// 스냅샷 저장
	SaveSnapshot(ctx context.Context, snapshot *RankingSnapshot) error

	// 최신 스냅샷 조회
	GetLatestSnapshot(ctx context.Context) (*RankingSnapshot, error)

	// 특정 스냅샷 조회
	GetSnapshotByID(ctx context.Context, snapshotID string) (*RankingSnapshot, error)
}
