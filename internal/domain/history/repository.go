package history

import "context"

// Repository 일봉/수급 저장소
type Repository interface {
	// UpsertBars 일봉 저장 (같은 날짜는 덮어씀)
	UpsertBars(ctx context.Context, symbol string, bars []Bar) (int, error)

	// GetLatestBars 최근 n개 일봉 (오래된 순)
	GetLatestBars(ctx context.Context, symbol string, n int) ([]Bar, error)

	UpsertFlows(ctx context.Context, symbol string, flows []Flow) (int, error)
	GetLatestFlows(ctx context.Context, symbol string, n int) ([]Flow, error)
}

// Source fetches history from the venue.
type Source interface {
	GetDailyBars(ctx context.Context, symbol string, required int) (name string, bars []Bar, err error)
	GetInvestorFlows(ctx context.Context, symbol string) ([]Flow, error)
}
