package kis

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/auth"
)

const (
	// defaultAccessValidity is used when the venue omits expires_in.
	defaultAccessValidity = 4 * time.Hour

	// EGW00133 발생 시 재발급 보류 (1분 + 5초 버퍼)
	rateLimitHold = 65 * time.Second

	expiryLayout = "2006-01-02 15:04:05"
)

// Issuer issues access and approval credentials over the KIS OAuth endpoints.
type Issuer struct {
	baseURL          string
	approvalValidity time.Duration
	httpClient       *http.Client
	now              func() time.Time

	// Rate limit protection (EGW00133: 1분당 1회)
	mu        sync.Mutex
	holdUntil time.Time
}

// NewIssuer creates an Issuer bound to cfg's REST endpoint.
func NewIssuer(cfg *Config) *Issuer {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	validity := cfg.ApprovalValidity
	if validity <= 0 {
		validity = 4 * time.Hour
	}
	return &Issuer{
		baseURL:          cfg.BaseURL,
		approvalValidity: validity,
		httpClient:       &http.Client{Timeout: timeout},
		now:              time.Now,
	}
}

// TokenResponse represents KIS token API response
type TokenResponse struct {
	AccessToken        string `json:"access_token"`
	AccessTokenExpired string `json:"access_token_token_expired"` // YYYY-MM-DD HH:MM:SS
	TokenType          string `json:"token_type"`
	ExpiresIn          int    `json:"expires_in"`
}

// ApprovalResponse represents KIS websocket approval key response
type ApprovalResponse struct {
	ApprovalKey string `json:"approval_key"`
}

// IssueAccessCredential POST /oauth2/tokenP
func (c *Issuer) IssueAccessCredential(ctx context.Context, appKey, appSecret string) (auth.Credential, error) {
	body, err := c.post(ctx, "/oauth2/tokenP", map[string]string{
		"grant_type": "client_credentials",
		"appkey":     appKey,
		"appsecret":  appSecret,
	})
	if err != nil {
		return auth.Credential{}, err
	}

	var resp TokenResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return auth.Credential{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.AccessToken == "" {
		return auth.Credential{}, fmt.Errorf("empty access_token in response")
	}

	issuedAt := c.now()
	validity := time.Duration(resp.ExpiresIn) * time.Second
	if validity <= 0 {
		validity = c.validityFromExpiry(issuedAt, resp.AccessTokenExpired)
	}

	log.Info().
		Time("expires_at", issuedAt.Add(validity)).
		Msg("[AUTH] Access credential issued")

	return auth.Credential{
		Kind:      auth.KindAccess,
		Token:     resp.AccessToken,
		TokenType: resp.TokenType,
		IssuedAt:  issuedAt,
		Validity:  validity,
	}, nil
}

// IssueApprovalCredential POST /oauth2/Approval
// 접속키는 만료 정보를 주지 않으므로 설정된 유효기간을 적용
func (c *Issuer) IssueApprovalCredential(ctx context.Context, appKey, appSecret string) (auth.Credential, error) {
	body, err := c.post(ctx, "/oauth2/Approval", map[string]string{
		"grant_type": "client_credentials",
		"appkey":     appKey,
		"secretkey":  appSecret,
	})
	if err != nil {
		return auth.Credential{}, err
	}

	var resp ApprovalResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return auth.Credential{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.ApprovalKey == "" {
		return auth.Credential{}, fmt.Errorf("empty approval_key in response")
	}

	log.Info().Msg("[AUTH] Approval credential issued")

	return auth.Credential{
		Kind:     auth.KindApproval,
		Token:    resp.ApprovalKey,
		IssuedAt: c.now(),
		Validity: c.approvalValidity,
	}, nil
}

func (c *Issuer) post(ctx context.Context, path string, payload map[string]string) ([]byte, error) {
	c.mu.Lock()
	hold := c.holdUntil
	c.mu.Unlock()
	if c.now().Before(hold) {
		return nil, fmt.Errorf("%w: on hold until %s", auth.ErrRateLimited, hold.Format(time.RFC3339))
	}

	reqBody, err := sonic.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if isEGW00133(string(respBody)) {
			c.mu.Lock()
			c.holdUntil = c.now().Add(rateLimitHold)
			c.mu.Unlock()
			log.Warn().Dur("hold", rateLimitHold).Msg("[AUTH] EGW00133 rate limit, holding issuance")
			return nil, fmt.Errorf("%w: status=%d body=%s", auth.ErrRateLimited, resp.StatusCode, string(respBody))
		}
		return nil, fmt.Errorf("KIS API error: status=%d body=%s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func (c *Issuer) validityFromExpiry(issuedAt time.Time, expired string) time.Duration {
	if expired == "" {
		return defaultAccessValidity
	}
	at, err := time.ParseInLocation(expiryLayout, expired, kst)
	if err != nil || !at.After(issuedAt) {
		return defaultAccessValidity
	}
	return at.Sub(issuedAt)
}

// isEGW00133 checks if the error is EGW00133 (rate limit)
func isEGW00133(body string) bool {
	return strings.Contains(body, "EGW00133") || strings.Contains(body, "1분당 1회")
}

var kst = time.FixedZone("KST", 9*60*60)
