// Package market accumulates real-time trades into per-security daily history.
package market

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/history"
	"github.com/Jeongbyungkyu/korea-investment/internal/domain/stream"
	"github.com/Jeongbyungkyu/korea-investment/internal/infra/kis"
)

// Calendar decides which days produce bars.
type Calendar interface {
	Location() *time.Location
	IsTradingDay(t time.Time) bool
}

// Accumulator owns the daily history of one security.
type Accumulator struct {
	mu      sync.Mutex
	hist    *history.History
	updated time.Time
}

// Book 종목별 일봉 누적기 모음
type Book struct {
	cal Calendar
	now func() time.Time

	mu    sync.RWMutex
	accs  map[string]*Accumulator
	order []string // 유니버스 순서 (동점 시 입력 순서 유지)

	applied atomic.Int64
	ignored atomic.Int64
}

// NewBook creates an empty book.
func NewBook(cal Calendar) *Book {
	return &Book{
		cal:  cal,
		now:  time.Now,
		accs: make(map[string]*Accumulator),
	}
}

// Seed registers a security with its loaded history. Seeding an existing
// symbol replaces its history.
func (b *Book) Seed(h *history.History) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if acc, ok := b.accs[h.Symbol]; ok {
		acc.mu.Lock()
		acc.hist = h.Clone()
		acc.mu.Unlock()
		return
	}
	b.accs[h.Symbol] = &Accumulator{hist: h.Clone()}
	b.order = append(b.order, h.Symbol)
}

// Symbols returns the seeded symbols in seed order.
func (b *Book) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.order...)
}

// Apply folds one trade into today's bar of its security. Trades on
// non-business days are ignored.
func (b *Book) Apply(t stream.TradeTick) error {
	b.mu.RLock()
	acc, ok := b.accs[t.Symbol]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", history.ErrNotFound, t.Symbol)
	}

	now := b.now().In(b.cal.Location())
	if !b.cal.IsTradingDay(now) {
		b.ignored.Add(1)
		return nil
	}
	y, m, d := now.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	price := t.Price.InexactFloat64()
	bar := history.Bar{
		Date:   day,
		Open:   orPrice(t.Open.InexactFloat64(), price),
		High:   orPrice(t.High.InexactFloat64(), price),
		Low:    orPrice(t.Low.InexactFloat64(), price),
		Close:  price,
		Volume: t.AccumVolume,
		Amount: t.AccumAmount,
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()

	if last, ok := acc.hist.Last(); ok && sameDay(last.Date, day) {
		// 체결 순서가 뒤바뀌어도 고가/저가와 누적 거래량은 줄어들지 않음
		bar.High = math.Max(bar.High, last.High)
		bar.Low = math.Min(bar.Low, last.Low)
		if bar.Volume < last.Volume {
			bar.Volume = last.Volume
			bar.Amount = last.Amount
		}
	}
	if err := acc.hist.UpsertBar(bar); err != nil {
		return err
	}
	acc.updated = now
	b.applied.Add(1)
	return nil
}

// ApplyFrame parses a data frame and applies its trades. Non-trade frames
// are ignored.
func (b *Book) ApplyFrame(f *stream.DataFrame) error {
	if f.TrID != stream.TrIDTrade {
		return nil
	}
	ticks, err := kis.ParseTrades(f)
	if err != nil {
		return err
	}
	for _, t := range ticks {
		if err := b.Apply(t); err != nil {
			return err
		}
	}
	return nil
}

// Consume applies frames until ctx is done or frames is closed.
func (b *Book) Consume(ctx context.Context, frames <-chan *stream.DataFrame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if err := b.ApplyFrame(f); err != nil {
				log.Debug().Err(err).Str("tr_id", f.TrID).Msg("[BOOK] Frame skipped")
			}
		}
	}
}

// Snapshot returns a copy of the security's history.
func (b *Book) Snapshot(symbol string) (*history.History, bool) {
	b.mu.RLock()
	acc, ok := b.accs[symbol]
	b.mu.RUnlock()
	if !ok {
		return nil, false
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.hist.Clone(), true
}

// Snapshots copies every history in seed order.
func (b *Book) Snapshots() []*history.History {
	out := make([]*history.History, 0, len(b.Symbols()))
	for _, sym := range b.Symbols() {
		if h, ok := b.Snapshot(sym); ok {
			out = append(out, h)
		}
	}
	return out
}

// Applied returns the number of trades folded into bars.
func (b *Book) Applied() int64 { return b.applied.Load() }

// Ignored returns the number of trades dropped for non-business days.
func (b *Book) Ignored() int64 { return b.ignored.Load() }

func orPrice(v, price float64) float64 {
	if v <= 0 {
		return price
	}
	return v
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
