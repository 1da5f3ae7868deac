package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	t.Run("invalid level", func(t *testing.T) {
		err := Init(Config{Level: "loud"})
		assert.Error(t, err)
	})

	t.Run("file sinks", func(t *testing.T) {
		dir := t.TempDir()
		err := Init(Config{
			Level:         "info",
			Format:        "json",
			FileEnabled:   true,
			FilePath:      dir,
			RotationSize:  1,
			RetentionDays: 1,
			ServiceName:   "kis",
		})
		require.NoError(t, err)

		log.Error().Msg("boom")

		_, err = os.Stat(filepath.Join(dir, "app.log"))
		assert.NoError(t, err)
		data, err := os.ReadFile(filepath.Join(dir, "error.log"))
		require.NoError(t, err)
		assert.Contains(t, string(data), "boom")
		assert.NotContains(t, string(data), "Logger initialized")
	})
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	f := &levelFilter{Writer: &buf, min: zerolog.ErrorLevel}

	n, err := f.WriteLevel(zerolog.InfoLevel, []byte("info"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Empty(t, buf.String())

	_, err = f.WriteLevel(zerolog.ErrorLevel, []byte("err"))
	require.NoError(t, err)
	assert.Equal(t, "err", buf.String())
}
