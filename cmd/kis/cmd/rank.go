package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	domainhistory "github.com/Jeongbyungkyu/korea-investment/internal/domain/history"
	"github.com/Jeongbyungkyu/korea-investment/internal/strategy/ranking"
)

var (
	rankTopN int
	rankJSON bool
)

// rankCmd 한 번 순위 계산
var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "일봉 이력으로 순위 한 번 계산",
	Long: `유니버스 종목의 일봉/수급 이력을 불러와 점수를 계산하고 상위 N개를 출력합니다.
DATABASE_URL 이 설정되어 있으면 스냅샷을 저장합니다.

Examples:
  go run ./cmd/kis rank
  go run ./cmd/kis rank --top 20 --json`,
	RunE: runRank,
}

func init() {
	rankCmd.Flags().IntVar(&rankTopN, "top", 0, "number of securities to keep (default SCORING_TOP_N)")
	rankCmd.Flags().BoolVar(&rankJSON, "json", false, "print the snapshot as JSON")
}

// staticHistories serves a fixed set of histories.
type staticHistories []*domainhistory.History

func (s staticHistories) Snapshots() []*domainhistory.History {
	out := make([]*domainhistory.History, len(s))
	for i, h := range s {
		out[i] = h.Clone()
	}
	return out
}

func runRank(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	histories, _, err := a.loadHistories(ctx)
	if err != nil {
		return err
	}

	topN := cfg.Scoring.TopN
	if rankTopN > 0 {
		topN = rankTopN
	}

	svc := ranking.NewService(ctx, ranking.Config{
		TopN:        topN,
		Concurrency: cfg.Scoring.Concurrency,
		Keep:        cfg.Scoring.KeepSnapshots,
	}, staticHistories(histories), a.scorer, a.rankingRepo)

	snapshot, err := svc.GenerateRankings(ctx)
	if err != nil {
		return err
	}

	log.Info().
		Str("snapshot_id", snapshot.SnapshotID).
		Int("scored", snapshot.ScoredCount).
		Int("total", snapshot.TotalCount).
		Msg("✅ Ranking generated")

	out := cmd.OutOrStdout()
	if rankJSON {
		body, err := sonic.ConfigStd.MarshalIndent(snapshot, "", "  ")
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		fmt.Fprintln(out, string(body))
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSYMBOL\tNAME\tSCORE\tTREND\tVOLUME\tFLOW\tBREAKOUT\tCANDLE")
	for _, r := range snapshot.Rankings {
		b := r.Breakdown
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.4f\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\n",
			r.Rank, r.Symbol, r.Name, r.Score, b.Trend, b.Volume, b.Flow, b.Breakout, b.Candle)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nsnapshot %s: %d/%d scored, avg %.4f\n",
		snapshot.SnapshotID, snapshot.ScoredCount, snapshot.TotalCount, snapshot.Stats.AvgScore)
	return nil
}
