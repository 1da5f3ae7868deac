package history

import "errors"

var (
	// ErrInsufficientHistory 지표 계산에 필요한 일봉 부족
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrOutOfOrder 날짜가 엄격히 증가하지 않음
	ErrOutOfOrder = errors.New("history dates out of order")

	// ErrNotFound 저장된 이력 없음
	ErrNotFound = errors.New("history not found")
)
