package scoring

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/history"
	"github.com/Jeongbyungkyu/korea-investment/internal/domain/ranking"
)

// DefaultTopN 기본 선정 종목 수
const DefaultTopN = 10

// Failure records a security excluded from a ranking pass.
type Failure struct {
	Symbol string
	Err    error
}

// RankResult 순위 계산 결과
type RankResult struct {
	Rankings []ranking.RankedStock
	Scored   int
	Failures []Failure
}

// Rank scores every history in parallel and returns the top n, highest
// first. Equal scores keep input order. Securities that fail to score are
// excluded and reported in Failures; only ctx cancellation aborts the pass.
func (s *Scorer) Rank(ctx context.Context, histories []*history.History, n, concurrency int) (RankResult, error) {
	if n <= 0 {
		n = DefaultTopN
	}

	entries := make([]*ranking.ScoreEntry, len(histories))
	errs := make([]error, len(histories))

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, h := range histories {
		i, h := i, h
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e, err := s.Score(h)
			if err != nil {
				errs[i] = err
				return nil
			}
			entries[i] = &e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RankResult{}, err
	}

	var res RankResult
	scored := make([]ranking.ScoreEntry, 0, len(histories))
	for i, e := range entries {
		if e != nil {
			scored = append(scored, *e)
			continue
		}

		symbol := ""
		if histories[i] != nil {
			symbol = histories[i].Symbol
		}
		res.Failures = append(res.Failures, Failure{Symbol: symbol, Err: errs[i]})

		ev := log.Warn()
		if errors.Is(errs[i], history.ErrInsufficientHistory) {
			ev = log.Debug()
		}
		ev.Err(errs[i]).Str("symbol", symbol).Msg("Failed to score, skipping")
	}
	res.Scored = len(scored)
	res.Rankings = SelectTopN(scored, n)
	return res, nil
}

// SelectTopN sorts entries by score descending, keeping input order on ties,
// and assigns 1-based ranks to the first n.
func SelectTopN(entries []ranking.ScoreEntry, n int) []ranking.RankedStock {
	sorted := append([]ranking.ScoreEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}

	out := make([]ranking.RankedStock, len(sorted))
	for i, e := range sorted {
		out[i] = ranking.RankedStock{ScoreEntry: e, Rank: i + 1}
	}
	return out
}
