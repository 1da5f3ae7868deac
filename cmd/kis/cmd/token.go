package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/auth"
)

// tokenCmd 자격 증명 발급 확인
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "접근 토큰/승인키 발급 확인",
	Long: `접근 토큰(REST)과 승인키(실시간)를 발급받아 만료 시각을 출력합니다.
접근 토큰은 TOKEN_CACHE_FILE 에 캐시되어 재사용됩니다.`,
	RunE: runToken,
}

func runToken(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	access, err := a.creds.GetAccessCredential(ctx)
	if err != nil {
		return fmt.Errorf("access credential: %w", err)
	}
	approval, err := a.creds.GetApprovalCredential(ctx)
	if err != nil {
		return fmt.Errorf("approval credential: %w", err)
	}

	out := cmd.OutOrStdout()
	loc := a.calendar.Location()
	for _, c := range []auth.Credential{access, approval} {
		fmt.Fprintf(out, "%-9s %s  expires %s (in %s)\n",
			c.Kind, mask(c.Token), c.ExpiresAt().In(loc).Format(time.DateTime), time.Until(c.ExpiresAt()).Round(time.Minute))
	}
	return nil
}

// mask keeps only the first and last four characters.
func mask(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "…" + token[len(token)-4:]
}
