package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/Jeongbyungkyu/korea-investment/internal/domain/history"
	"github.com/Jeongbyungkyu/korea-investment/internal/pkg/config"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func bars(n int, last time.Time) []domain.Bar {
	out := make([]domain.Bar, n)
	for i := range out {
		out[i] = domain.Bar{Date: last.AddDate(0, 0, i-n+1), Close: float64(100 + i), Volume: 10}
	}
	return out
}

type fakeSource struct {
	mu       sync.Mutex
	bars     map[string][]domain.Bar
	flowsErr error
	barCalls int
}

func (f *fakeSource) GetDailyBars(ctx context.Context, symbol string, required int) (string, []domain.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.barCalls++
	b, ok := f.bars[symbol]
	if !ok {
		return "", nil, errors.New("KIS API error: code=EGW00201")
	}
	return "venue " + symbol, b, nil
}

func (f *fakeSource) GetInvestorFlows(ctx context.Context, symbol string) ([]domain.Flow, error) {
	if f.flowsErr != nil {
		return nil, f.flowsErr
	}
	return []domain.Flow{{Date: base, ForeignNet: 1, InstitutionNet: 2}}, nil
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.barCalls
}

type memRepo struct {
	mu    sync.Mutex
	bars  map[string][]domain.Bar
	flows map[string][]domain.Flow
}

func newMemRepo() *memRepo {
	return &memRepo{bars: map[string][]domain.Bar{}, flows: map[string][]domain.Flow{}}
}

func (r *memRepo) UpsertBars(ctx context.Context, symbol string, b []domain.Bar) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bars[symbol] = append([]domain.Bar(nil), b...)
	return len(b), nil
}

func (r *memRepo) GetLatestBars(ctx context.Context, symbol string, n int) ([]domain.Bar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bars[symbol]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return append([]domain.Bar(nil), b...), nil
}

func (r *memRepo) UpsertFlows(ctx context.Context, symbol string, f []domain.Flow) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows[symbol] = append([]domain.Flow(nil), f...)
	return len(f), nil
}

func (r *memRepo) GetLatestFlows(ctx context.Context, symbol string, n int) ([]domain.Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flows[symbol], nil
}

func newTestLoader(src domain.Source, repo domain.Repository, now time.Time) *Loader {
	l := NewLoader(Config{RequiredBars: 5, Concurrency: 2}, src, repo)
	l.now = func() time.Time { return now }
	return l
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	now := base.AddDate(0, 0, 30)

	t.Run("venue only", func(t *testing.T) {
		src := &fakeSource{bars: map[string][]domain.Bar{"005930": bars(5, now)}}
		h, err := newTestLoader(src, nil, now).Load(ctx, config.Security{Code: "005930"})
		require.NoError(t, err)

		assert.Equal(t, "venue 005930", h.Name)
		assert.Len(t, h.Bars, 5)
		assert.Len(t, h.Flows, 1)
	})

	t.Run("universe name wins", func(t *testing.T) {
		src := &fakeSource{bars: map[string][]domain.Bar{"005930": bars(5, now)}}
		h, err := newTestLoader(src, nil, now).Load(ctx, config.Security{Code: "005930", Name: "삼성전자"})
		require.NoError(t, err)
		assert.Equal(t, "삼성전자", h.Name)
	})

	t.Run("fetched history is stored then reused", func(t *testing.T) {
		src := &fakeSource{bars: map[string][]domain.Bar{"005930": bars(5, now)}}
		repo := newMemRepo()
		l := newTestLoader(src, repo, now)

		_, err := l.Load(ctx, config.Security{Code: "005930"})
		require.NoError(t, err)
		assert.Len(t, repo.bars["005930"], 5)
		assert.Len(t, repo.flows["005930"], 1)

		h, err := l.Load(ctx, config.Security{Code: "005930"})
		require.NoError(t, err)
		assert.Len(t, h.Bars, 5)
		assert.Equal(t, 1, src.calls())
	})

	t.Run("short repository history refetches", func(t *testing.T) {
		src := &fakeSource{bars: map[string][]domain.Bar{"005930": bars(5, now)}}
		repo := newMemRepo()
		repo.bars["005930"] = bars(3, now)

		h, err := newTestLoader(src, repo, now).Load(ctx, config.Security{Code: "005930"})
		require.NoError(t, err)
		assert.Len(t, h.Bars, 5)
		assert.Equal(t, 1, src.calls())
	})

	t.Run("stale repository history refetches", func(t *testing.T) {
		src := &fakeSource{bars: map[string][]domain.Bar{"005930": bars(5, now)}}
		repo := newMemRepo()
		repo.bars["005930"] = bars(5, now.AddDate(0, 0, -10))

		_, err := newTestLoader(src, repo, now).Load(ctx, config.Security{Code: "005930"})
		require.NoError(t, err)
		assert.Equal(t, 1, src.calls())
	})

	t.Run("flow failure keeps bars", func(t *testing.T) {
		src := &fakeSource{bars: map[string][]domain.Bar{"005930": bars(5, now)}, flowsErr: errors.New("timeout")}
		h, err := newTestLoader(src, nil, now).Load(ctx, config.Security{Code: "005930"})
		require.NoError(t, err)
		assert.Empty(t, h.Flows)
	})

	t.Run("no bars", func(t *testing.T) {
		src := &fakeSource{bars: map[string][]domain.Bar{"005930": nil}}
		_, err := newTestLoader(src, nil, now).Load(ctx, config.Security{Code: "005930"})
		assert.ErrorIs(t, err, domain.ErrInsufficientHistory)
	})
}

func TestLoadAll(t *testing.T) {
	now := base.AddDate(0, 0, 30)
	src := &fakeSource{bars: map[string][]domain.Bar{
		"A": bars(5, now),
		"C": bars(5, now),
	}}
	l := newTestLoader(src, nil, now)

	hs, failures, err := l.LoadAll(context.Background(), []config.Security{{Code: "A"}, {Code: "B"}, {Code: "C"}})
	require.NoError(t, err)

	require.Len(t, hs, 2)
	assert.Equal(t, "A", hs[0].Symbol)
	assert.Equal(t, "C", hs[1].Symbol)
	require.Len(t, failures, 1)
	assert.Equal(t, "B", failures[0].Symbol)

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _, err := l.LoadAll(ctx, []config.Security{{Code: "A"}})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
