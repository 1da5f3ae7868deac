package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingCredentials is returned by Validate when any KIS account value is absent.
var ErrMissingCredentials = errors.New("missing KIS credentials")

// Config represents the application configuration
// SSOT: 모든 설정은 .env 파일 또는 환경 변수에서 로드됨
type Config struct {
	Debug     bool
	KIS       KISConfig
	Stream    StreamConfig
	Scoring   ScoringConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
	Server    ServerConfig
	Profiling ProfilingConfig

	UniverseFile string
}

type KISConfig struct {
	AppKey        string
	AppSecret     string
	AccountNumber string
	AccountCode   string
	IsProd        bool

	ApprovalValidity time.Duration // approval key 는 만료 정보가 없음
	IssueTimeout     time.Duration
	RequestInterval  time.Duration // REST 호출 간격 (rate limit)
	TokenCacheFile   string
}

type StreamConfig struct {
	TrID              string
	AckTimeout        time.Duration
	HeartbeatInterval time.Duration
	InboundBuffer     int
	TickBuffer        int
	BackoffMin        time.Duration
	BackoffMax        time.Duration
	MaxAttempts       int
	MarketHoursOnly   bool
}

type ScoringConfig struct {
	TopN                int
	Interval            time.Duration
	MinBars             int
	Concurrency         int
	VolumeRatioSentinel float64
	KeepSnapshots       int // 0 이면 전부 보관
}

type DatabaseConfig struct {
	URL             string // 비어 있으면 DB 없이 동작
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

type LoggingConfig struct {
	Level         string
	Format        string
	FileEnabled   bool
	FilePath      string
	RotationSize  int
	RetentionDays int
}

type ServerConfig struct {
	Addr string
}

type ProfilingConfig struct {
	ServerAddress string
}

// Load loads configuration from the given env file (".env" when empty)
// and the process environment.
func Load(envFile string) (*Config, error) {
	files := []string{}
	if envFile != "" {
		files = append(files, envFile)
	}
	if err := godotenv.Load(files...); err != nil {
		if envFile != "" {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
		// .env 파일이 없어도 계속 진행 (환경 변수에서 로드)
		fmt.Fprintln(os.Stderr, "Warning: .env file not found, using environment variables")
	}

	debug := getEnvBool("DEBUG", false)
	level := getEnv("LOG_LEVEL", "info")
	if debug {
		level = "debug"
	}

	cfg := &Config{
		Debug: debug,
		KIS: KISConfig{
			AppKey:           getEnv("APP_KEY", ""),
			AppSecret:        getEnv("APP_SECRET", ""),
			AccountNumber:    getEnv("ACCOUNT_NUMBER", ""),
			AccountCode:      getEnv("ACCOUNT_CODE", ""),
			IsProd:           getEnvBool("IS_PROD", false),
			ApprovalValidity: getEnvDuration("KIS_APPROVAL_VALIDITY", 4*time.Hour),
			IssueTimeout:     getEnvDuration("KIS_ISSUE_TIMEOUT", 10*time.Second),
			RequestInterval:  getEnvDuration("KIS_REQUEST_INTERVAL", 100*time.Millisecond),
			TokenCacheFile:   getEnv("TOKEN_CACHE_FILE", "token.json"),
		},
		Stream: StreamConfig{
			TrID:              getEnv("STREAM_TR_ID", "H0STCNT0"),
			AckTimeout:        getEnvDuration("STREAM_ACK_TIMEOUT", 5*time.Second),
			HeartbeatInterval: getEnvDuration("STREAM_HEARTBEAT_INTERVAL", 30*time.Second),
			InboundBuffer:     getEnvInt("STREAM_INBOUND_BUFFER", 1024),
			TickBuffer:        getEnvInt("STREAM_TICK_BUFFER", 4096),
			BackoffMin:        getEnvDuration("STREAM_BACKOFF_MIN", time.Second),
			BackoffMax:        getEnvDuration("STREAM_BACKOFF_MAX", 30*time.Second),
			MaxAttempts:       getEnvInt("STREAM_MAX_ATTEMPTS", 10),
			MarketHoursOnly:   getEnvBool("STREAM_MARKET_HOURS_ONLY", false),
		},
		Scoring: ScoringConfig{
			TopN:                getEnvInt("SCORING_TOP_N", 10),
			Interval:            getEnvDuration("SCORING_INTERVAL", time.Minute),
			MinBars:             getEnvInt("SCORING_MIN_BARS", 120),
			Concurrency:         getEnvInt("SCORING_CONCURRENCY", 8),
			VolumeRatioSentinel: getEnvFloat("VOLUME_RATIO_SENTINEL", 0),
			KeepSnapshots:       getEnvInt("SCORING_KEEP_SNAPSHOTS", 500),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns:        int32(getEnvInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:         level,
			Format:        getEnv("LOG_FORMAT", "pretty"),
			FileEnabled:   getEnvBool("LOG_FILE_ENABLED", false),
			FilePath:      getEnv("LOG_FILE_PATH", "logs"),
			RotationSize:  getEnvInt("LOG_ROTATION_SIZE", 100),
			RetentionDays: getEnvInt("LOG_RETENTION_DAYS", 14),
		},
		Server: ServerConfig{
			Addr: getEnv("HTTP_ADDR", ":8099"),
		},
		Profiling: ProfilingConfig{
			ServerAddress: getEnv("PYROSCOPE_URL", ""),
		},
		UniverseFile: getEnv("UNIVERSE_FILE", "universe.yaml"),
	}

	return cfg, nil
}

// Validate checks that every value needed before the first network call is present.
func (c *Config) Validate() error {
	var missing []string
	for _, kv := range []struct{ key, value string }{
		{"APP_KEY", c.KIS.AppKey},
		{"APP_SECRET", c.KIS.AppSecret},
		{"ACCOUNT_NUMBER", c.KIS.AccountNumber},
		{"ACCOUNT_CODE", c.KIS.AccountCode},
	} {
		if strings.TrimSpace(kv.value) == "" {
			missing = append(missing, kv.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}

	if c.Scoring.TopN <= 0 {
		return fmt.Errorf("SCORING_TOP_N must be positive, got %d", c.Scoring.TopN)
	}
	if c.Stream.MaxAttempts <= 0 {
		return fmt.Errorf("STREAM_MAX_ATTEMPTS must be positive, got %d", c.Stream.MaxAttempts)
	}
	return nil
}

// getEnv gets environment variable with fallback
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
