package auth

import (
	"context"
	"time"
)

// Kind distinguishes the two credential families. They are never interchangeable.
type Kind string

const (
	// KindAccess authorizes REST calls (hours-scale validity).
	KindAccess Kind = "access"

	// KindApproval authorizes the real-time stream.
	KindApproval Kind = "approval"
)

// Credential is an issued token with a fixed validity window.
type Credential struct {
	Kind      Kind          `json:"kind"`
	Token     string        `json:"token"`
	TokenType string        `json:"token_type,omitempty"` // "Bearer" for access credentials
	IssuedAt  time.Time     `json:"issued_at"`
	Validity  time.Duration `json:"validity"`
}

// ExpiresAt returns the first instant at which the credential is no longer usable.
func (c Credential) ExpiresAt() time.Time {
	return c.IssuedAt.Add(c.Validity)
}

// IsUsable reports whether now < issuedAt + validity.
func (c Credential) IsUsable(now time.Time) bool {
	if c.Token == "" {
		return false
	}
	return now.Before(c.ExpiresAt())
}

// Authorization formats the credential as an HTTP authorization header value.
func (c Credential) Authorization() string {
	typ := c.TokenType
	if typ == "" {
		typ = "Bearer"
	}
	return typ + " " + c.Token
}

// Issuer obtains fresh credentials from the venue.
type Issuer interface {
	IssueAccessCredential(ctx context.Context, appKey, appSecret string) (Credential, error)
	IssueApprovalCredential(ctx context.Context, appKey, appSecret string) (Credential, error)
}

// Cache persists access credentials across process restarts.
// Load returns (nil, nil) when nothing usable is stored.
type Cache interface {
	Load(now time.Time) (*Credential, error)
	Save(c Credential) error
}
