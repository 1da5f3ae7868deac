// Package tokencache persists the access credential between runs.
package tokencache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/auth"
)

const expiryLayout = "2006-01-02 15:04:05"

// record is the on-disk format.
type record struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"` // YYYY-MM-DD HH:MM:SS (local)
	IssuedAt    string `json:"issued_at,omitempty"`
}

// FileCache stores one access credential as JSON.
type FileCache struct {
	path string
	loc  *time.Location
}

// NewFileCache creates a cache at path. Timestamps are written in loc
// (time.Local when nil).
func NewFileCache(path string, loc *time.Location) *FileCache {
	if loc == nil {
		loc = time.Local
	}
	return &FileCache{path: path, loc: loc}
}

// Load returns the cached credential, or nil when the file is missing,
// unreadable as a credential, or already expired at now.
func (c *FileCache) Load(now time.Time) (*auth.Credential, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token cache: %w", err)
	}

	var rec record
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse token cache: %w", err)
	}
	if rec.AccessToken == "" {
		return nil, nil
	}

	expiresAt, err := time.ParseInLocation(expiryLayout, rec.ExpiresAt, c.loc)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at %q: %w", rec.ExpiresAt, err)
	}

	issuedAt := now
	if rec.IssuedAt != "" {
		if t, err := time.ParseInLocation(expiryLayout, rec.IssuedAt, c.loc); err == nil {
			issuedAt = t
		}
	}
	if !expiresAt.After(issuedAt) {
		return nil, nil
	}

	cred := &auth.Credential{
		Kind:      auth.KindAccess,
		Token:     rec.AccessToken,
		TokenType: rec.TokenType,
		IssuedAt:  issuedAt,
		Validity:  expiresAt.Sub(issuedAt),
	}
	if !cred.IsUsable(now) {
		return nil, nil
	}
	return cred, nil
}

// Save writes cred atomically (temp file + rename).
func (c *FileCache) Save(cred auth.Credential) error {
	rec := record{
		AccessToken: cred.Token,
		TokenType:   cred.TokenType,
		ExpiresAt:   cred.ExpiresAt().In(c.loc).Format(expiryLayout),
		IssuedAt:    cred.IssuedAt.In(c.loc).Format(expiryLayout),
	}
	data, err := sonic.ConfigStd.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*.json")
	if err != nil {
		return fmt.Errorf("create temp token cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write token cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close token cache: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("chmod token cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replace token cache: %w", err)
	}
	return nil
}
