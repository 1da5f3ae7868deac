// Package cmd - kis CLI commands
package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Jeongbyungkyu/korea-investment/internal/pkg/config"
	"github.com/Jeongbyungkyu/korea-investment/internal/pkg/logger"
)

const (
	serviceName    = "korea-investment"
	serviceVersion = "1.0.0"
)

var (
	// 공통 플래그
	cfgFile      string
	universeFile string
	verbose      bool

	cfg *config.Config
)

// rootCmd 루트 커맨드
var rootCmd = &cobra.Command{
	Use:   "kis",
	Short: "KIS real-time market data and scoring",
	Long: `KIS real-time market data and scoring

Usage:
    go run ./cmd/kis [command]

Commands:
    stream      실시간 체결 스트림 + 주기적 순위 + 상태 API
    rank        일봉 이력으로 한 번 순위 계산
    token       접근 토큰/승인키 발급 확인
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute 루트 커맨드 실행
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "env file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&universeFile, "universe", "", "universe YAML file (default UNIVERSE_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(tokenCmd)
}

// initConfig loads the env file, validates it and sets up logging
func initConfig() error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if verbose {
		loaded.Logging.Level = "debug"
	}
	if universeFile != "" {
		loaded.UniverseFile = universeFile
	}

	if err := logger.Init(logger.Config{
		Level:          loaded.Logging.Level,
		Format:         loaded.Logging.Format,
		FileEnabled:    loaded.Logging.FileEnabled,
		FilePath:       loaded.Logging.FilePath,
		RotationSize:   loaded.Logging.RotationSize,
		RetentionDays:  loaded.Logging.RetentionDays,
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := loaded.Validate(); err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return err
	}

	cfg = loaded
	return nil
}
