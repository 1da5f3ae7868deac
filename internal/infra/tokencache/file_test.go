package tokencache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/auth"
)

var kst = time.FixedZone("KST", 9*60*60)

func TestFileCache(t *testing.T) {
	now := time.Date(2024, 1, 2, 9, 0, 0, 0, kst)

	t.Run("missing file is absent", func(t *testing.T) {
		c := NewFileCache(filepath.Join(t.TempDir(), "token.json"), kst)
		cred, err := c.Load(now)
		require.NoError(t, err)
		assert.Nil(t, cred)
	})

	t.Run("save then load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "token.json")
		c := NewFileCache(path, kst)

		require.NoError(t, c.Save(auth.Credential{
			Kind: auth.KindAccess, Token: "tok", TokenType: "Bearer",
			IssuedAt: now, Validity: 24 * time.Hour,
		}))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"expires_at": "2024-01-03 09:00:00"`)

		cred, err := c.Load(now.Add(time.Hour))
		require.NoError(t, err)
		require.NotNil(t, cred)
		assert.Equal(t, "tok", cred.Token)
		assert.True(t, cred.ExpiresAt().Equal(now.Add(24*time.Hour)))
	})

	t.Run("expired record is absent", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "token.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"access_token":"old","token_type":"Bearer","expires_at":"2024-01-02 08:59:59"}`), 0o600))

		cred, err := NewFileCache(path, kst).Load(now)
		require.NoError(t, err)
		assert.Nil(t, cred)
	})

	t.Run("record without issued_at", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "token.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"access_token":"tok","token_type":"Bearer","expires_at":"2024-01-02 13:00:00"}`), 0o600))

		cred, err := NewFileCache(path, kst).Load(now)
		require.NoError(t, err)
		require.NotNil(t, cred)
		assert.Equal(t, 4*time.Hour, cred.Validity)
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "token.json")
		require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))

		_, err := NewFileCache(path, kst).Load(now)
		assert.Error(t, err)
	})
}
