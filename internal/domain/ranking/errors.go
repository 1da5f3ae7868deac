package ranking

import "errors"

var (
	// ErrSnapshotNotFound 스냅샷을 찾을 수 없음
	ErrSnapshotNotFound = errors.New("ranking snapshot not found")

	// ErrRankNotFound 순위를 찾을 수 없음
	ErrRankNotFound = errors.New("rank not found")

	// ErrNoValidStocks 점수 계산에 성공한 종목이 없음
	ErrNoValidStocks = errors.New("no securities could be scored")
)
