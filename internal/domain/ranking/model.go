package ranking

import (
	"time"
)

// ScoreBreakdown 점수 구성 요소 (가중치 적용 후)
type ScoreBreakdown struct {
	Trend    float64 `json:"trend"`    // 0.30 max
	Volume   float64 `json:"volume"`   // 0.20 max
	Flow     float64 `json:"flow"`     // 0.20 max
	Breakout float64 `json:"breakout"` // 0.15 max
	Candle   float64 `json:"candle"`   // 0.15 max
}

// Total sums the weighted components.
func (b ScoreBreakdown) Total() float64 {
	return b.Trend + b.Volume + b.Flow + b.Breakout + b.Candle
}

// ScoreEntry is the score of one security.
type ScoreEntry struct {
	Symbol    string         `json:"symbol"`
	Name      string         `json:"name,omitempty"`
	Score     float64        `json:"score"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// RankedStock 순위가 매겨진 종목
type RankedStock struct {
	ScoreEntry
	Rank int `json:"rank"` // 1-based
}

// RankingSnapshot 특정 시점의 순위 스냅샷
type RankingSnapshot struct {
	SnapshotID  string        `json:"snapshot_id"` // YYYYMMDD-xxxxxxxx
	GeneratedAt time.Time     `json:"generated_at"`
	TotalCount  int           `json:"total_count"` // 평가 대상 종목 수
	ScoredCount int           `json:"scored_count"`
	Rankings    []RankedStock `json:"rankings"`
	Stats       RankingStats  `json:"stats"`
}

// RankingStats 순위 통계
type RankingStats struct {
	AvgScore float64 `json:"avg_score"`
	MaxScore float64 `json:"max_score"`
	MinScore float64 `json:"min_score"`
}

// Find returns the ranked entry for symbol.
func (s *RankingSnapshot) Find(symbol string) (*RankedStock, bool) {
	for i := range s.Rankings {
		if s.Rankings[i].Symbol == symbol {
			return &s.Rankings[i], true
		}
	}
	return nil, false
}
