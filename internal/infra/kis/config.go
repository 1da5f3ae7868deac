package kis

import "time"

// Venue endpoints
const (
	ProdRESTURL  = "https://openapi.koreainvestment.com:9443"
	PaperRESTURL = "https://openapivts.koreainvestment.com:29443" // 모의투자

	ProdWebSocketURL  = "ws://ops.koreainvestment.com:21000"
	PaperWebSocketURL = "ws://ops.koreainvestment.com:31000"
)

// Config holds KIS API configuration
type Config struct {
	AppKey    string
	AppSecret string
	IsProd    bool

	BaseURL      string
	WebSocketURL string

	ApprovalValidity time.Duration
	HTTPTimeout      time.Duration
	RequestInterval  time.Duration
}

// NewConfig selects production or paper endpoints from the production flag.
func NewConfig(appKey, appSecret string, isProd bool) *Config {
	cfg := &Config{
		AppKey:           appKey,
		AppSecret:        appSecret,
		IsProd:           isProd,
		BaseURL:          PaperRESTURL,
		WebSocketURL:     PaperWebSocketURL,
		ApprovalValidity: 4 * time.Hour,
		HTTPTimeout:      10 * time.Second,
		RequestInterval:  100 * time.Millisecond,
	}
	if isProd {
		cfg.BaseURL = ProdRESTURL
		cfg.WebSocketURL = ProdWebSocketURL
	}
	return cfg
}
