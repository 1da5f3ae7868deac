package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("env file and overrides", func(t *testing.T) {
		// godotenv never overrides variables that already exist
		for _, key := range []string{"APP_KEY", "APP_SECRET", "ACCOUNT_NUMBER", "ACCOUNT_CODE", "IS_PROD", "DEBUG", "SCORING_TOP_N", "STREAM_ACK_TIMEOUT"} {
			t.Setenv(key, "")
			require.NoError(t, os.Unsetenv(key))
		}

		env := writeFile(t, ".env", "APP_KEY=key\nAPP_SECRET=secret\nACCOUNT_NUMBER=12345678\nACCOUNT_CODE=01\nIS_PROD=true\nDEBUG=true\nSCORING_TOP_N=5\nSTREAM_ACK_TIMEOUT=2s\n")

		cfg, err := Load(env)
		require.NoError(t, err)

		assert.Equal(t, "key", cfg.KIS.AppKey)
		assert.True(t, cfg.KIS.IsProd)
		assert.True(t, cfg.Debug)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, 5, cfg.Scoring.TopN)
		assert.Equal(t, 2*time.Second, cfg.Stream.AckTimeout)
		assert.Equal(t, 4*time.Hour, cfg.KIS.ApprovalValidity)
		assert.Equal(t, "H0STCNT0", cfg.Stream.TrID)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing env file is an error when named", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.env"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			KIS:     KISConfig{AppKey: "k", AppSecret: "s", AccountNumber: "n", AccountCode: "01"},
			Stream:  StreamConfig{MaxAttempts: 3},
			Scoring: ScoringConfig{TopN: 10},
		}
	}

	t.Run("complete", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing secrets are listed", func(t *testing.T) {
		cfg := valid()
		cfg.KIS.AppSecret = ""
		cfg.KIS.AccountCode = "  "

		err := cfg.Validate()
		require.ErrorIs(t, err, ErrMissingCredentials)
		assert.Contains(t, err.Error(), "APP_SECRET")
		assert.Contains(t, err.Error(), "ACCOUNT_CODE")
		assert.NotContains(t, err.Error(), "APP_KEY")
	})

	t.Run("top n must be positive", func(t *testing.T) {
		cfg := valid()
		cfg.Scoring.TopN = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestLoadUniverse(t *testing.T) {
	t.Run("dedupes codes", func(t *testing.T) {
		path := writeFile(t, "universe.yaml", `
benchmark: "069500"
securities:
  - code: "005930"
    name: 삼성전자
  - code: "000660"
    name: SK하이닉스
  - code: "005930"
    name: dup
`)
		u, err := LoadUniverse(path)
		require.NoError(t, err)
		assert.Equal(t, "069500", u.Benchmark)
		assert.Equal(t, []string{"005930", "000660"}, u.Codes())
	})

	t.Run("empty universe", func(t *testing.T) {
		path := writeFile(t, "universe.yaml", "securities: []\n")
		_, err := LoadUniverse(path)
		assert.Error(t, err)
	})

	t.Run("entry without code", func(t *testing.T) {
		path := writeFile(t, "universe.yaml", "securities:\n  - name: x\n")
		_, err := LoadUniverse(path)
		assert.Error(t, err)
	})
}
