package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/history"
)

// HistoryRepository PostgreSQL 일봉/수급 저장소 (market.daily_bars, market.investor_flows)
type HistoryRepository struct {
	pool *Pool
}

// NewHistoryRepository 저장소 생성
func NewHistoryRepository(pool *Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

const upsertBarQuery = `
	INSERT INTO market.daily_bars
		(stock_code, trade_date, open_price, high_price, low_price, close_price, volume, trading_value, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	ON CONFLICT (stock_code, trade_date) DO UPDATE SET
		open_price = EXCLUDED.open_price,
		high_price = EXCLUDED.high_price,
		low_price = EXCLUDED.low_price,
		close_price = EXCLUDED.close_price,
		volume = EXCLUDED.volume,
		trading_value = EXCLUDED.trading_value,
		updated_at = NOW()
`

// UpsertBars 일봉 일괄 저장
func (r *HistoryRepository) UpsertBars(ctx context.Context, symbol string, bars []history.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(upsertBarQuery,
			symbol, b.Date,
			b.Open, b.High, b.Low, b.Close,
			b.Volume, b.Amount,
		)
	}

	count, err := r.sendBatch(ctx, batch, len(bars))
	if err != nil {
		return count, fmt.Errorf("batch upsert bars: %w", err)
	}

	log.Debug().Str("symbol", symbol).Int("count", count).Msg("Saved daily bars")
	return count, nil
}

// GetLatestBars 최근 n개 일봉 (오래된 순)
func (r *HistoryRepository) GetLatestBars(ctx context.Context, symbol string, n int) ([]history.Bar, error) {
	query := `
		SELECT trade_date, open_price, high_price, low_price, close_price, volume, trading_value
		FROM market.daily_bars
		WHERE stock_code = $1
		ORDER BY trade_date DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []history.Bar
	for rows.Next() {
		var b history.Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Amount); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, history.ErrNotFound
	}

	reverse(bars)
	return bars, nil
}

const upsertFlowQuery = `
	INSERT INTO market.investor_flows
		(stock_code, trade_date, foreign_net_qty, inst_net_qty, updated_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (stock_code, trade_date) DO UPDATE SET
		foreign_net_qty = EXCLUDED.foreign_net_qty,
		inst_net_qty = EXCLUDED.inst_net_qty,
		updated_at = NOW()
`

// UpsertFlows 수급 일괄 저장
func (r *HistoryRepository) UpsertFlows(ctx context.Context, symbol string, flows []history.Flow) (int, error) {
	if len(flows) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, f := range flows {
		batch.Queue(upsertFlowQuery, symbol, f.Date, f.ForeignNet, f.InstitutionNet)
	}

	count, err := r.sendBatch(ctx, batch, len(flows))
	if err != nil {
		return count, fmt.Errorf("batch upsert flows: %w", err)
	}
	return count, nil
}

// GetLatestFlows 최근 n일 수급 (오래된 순)
func (r *HistoryRepository) GetLatestFlows(ctx context.Context, symbol string, n int) ([]history.Flow, error) {
	query := `
		SELECT trade_date, foreign_net_qty, inst_net_qty
		FROM market.investor_flows
		WHERE stock_code = $1
		ORDER BY trade_date DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("query flows: %w", err)
	}
	defer rows.Close()

	var flows []history.Flow
	for rows.Next() {
		var f history.Flow
		if err := rows.Scan(&f.Date, &f.ForeignNet, &f.InstitutionNet); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		flows = append(flows, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flows: %w", err)
	}

	reverse(flows)
	return flows, nil
}

func (r *HistoryRepository) sendBatch(ctx context.Context, batch *pgx.Batch, n int) (int, error) {
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	count := 0
	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
