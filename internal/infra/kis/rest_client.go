package kis

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/auth"
	"github.com/Jeongbyungkyu/korea-investment/internal/domain/history"
)

const (
	dailyChartPath = "/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice"
	investorPath   = "/uapi/domestic-stock/v1/quotations/inquire-investor"

	trIDDailyChart = "FHKST03010100" // 국내주식기간별시세(일/주/월/년)
	trIDInvestor   = "FHKST01010900" // 주식현재가 투자자

	// 한 번 조회에 최대 100건이므로 100일 단위로 끊어서 요청
	chartChunkDays = 100

	dateLayout = "20060102"
)

// AccessSource supplies access credentials for REST calls.
type AccessSource interface {
	GetAccessCredential(ctx context.Context) (auth.Credential, error)
}

// RESTClient handles KIS REST API requests
type RESTClient struct {
	creds      AccessSource
	appKey     string
	appSecret  string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time

	// pacing (KIS 초당 호출 제한)
	interval time.Duration
	paceMu   sync.Mutex
	lastCall time.Time
}

// NewRESTClient creates a new RESTClient
func NewRESTClient(cfg *Config, creds AccessSource) *RESTClient {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RESTClient{
		creds:      creds,
		appKey:     cfg.AppKey,
		appSecret:  cfg.AppSecret,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
		interval:   cfg.RequestInterval,
	}
}

type apiHeader struct {
	RtCd  string `json:"rt_cd"` // "0" = success
	MsgCd string `json:"msg_cd"`
	Msg1  string `json:"msg1"`
}

// DailyChartResponse represents inquire-daily-itemchartprice
type DailyChartResponse struct {
	apiHeader
	Output1 struct {
		Name string `json:"hts_kor_isnm"` // 종목명
	} `json:"output1"`
	Output2 []DailyChartRow `json:"output2"`
}

// DailyChartRow 일봉 한 행
type DailyChartRow struct {
	Date   string `json:"stck_bsop_date"` // 영업일자 YYYYMMDD
	Close  string `json:"stck_clpr"`
	Open   string `json:"stck_oprc"`
	High   string `json:"stck_hgpr"`
	Low    string `json:"stck_lwpr"`
	Volume string `json:"acml_vol"`
	Amount string `json:"acml_tr_pbmn"`
}

// InvestorResponse represents inquire-investor
type InvestorResponse struct {
	apiHeader
	Output []InvestorRow `json:"output"`
}

// InvestorRow 일자별 투자자 순매수
type InvestorRow struct {
	Date       string `json:"stck_bsop_date"`
	ForeignNet string `json:"frgn_ntby_qty"` // 외국인 순매수 수량
	OrgNet     string `json:"orgn_ntby_qty"` // 기관계 순매수 수량
}

// GetDailyBars fetches at least required daily bars (when available), oldest first.
func (c *RESTClient) GetDailyBars(ctx context.Context, symbol string, required int) (string, []history.Bar, error) {
	end := c.now().In(kst)
	byDate := make(map[string]history.Bar)
	name := ""

	// 상장 기간이 짧은 종목은 빈 응답에서 멈춤
	maxChunks := required/50 + 3
	for chunk := 0; chunk < maxChunks && len(byDate) < required; chunk++ {
		start := end.AddDate(0, 0, -chartChunkDays)

		var resp DailyChartResponse
		err := c.get(ctx, dailyChartPath, trIDDailyChart, map[string]string{
			"FID_COND_MRKT_DIV_CODE": "J",
			"FID_INPUT_ISCD":         symbol,
			"FID_INPUT_DATE_1":       start.Format(dateLayout),
			"FID_INPUT_DATE_2":       end.Format(dateLayout),
			"FID_PERIOD_DIV_CODE":    "D",
			"FID_ORG_ADJ_PRC":        "1", // 수정주가
		}, &resp)
		if err != nil {
			return "", nil, fmt.Errorf("daily chart %s: %w", symbol, err)
		}
		if name == "" {
			name = resp.Output1.Name
		}

		added := 0
		for _, row := range resp.Output2 {
			bar, ok := row.toBar()
			if !ok {
				continue
			}
			byDate[row.Date] = bar
			added++
		}

		log.Debug().
			Str("symbol", symbol).
			Str("from", start.Format(dateLayout)).
			Str("to", end.Format(dateLayout)).
			Int("rows", added).
			Msg("[REST] Daily chart chunk")

		if added == 0 {
			break
		}
		end = start.AddDate(0, 0, -1)
	}

	bars := make([]history.Bar, 0, len(byDate))
	for _, b := range byDate {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	if required > 0 && len(bars) > required {
		bars = bars[len(bars)-required:]
	}
	return name, bars, nil
}

// GetInvestorFlows fetches recent foreign/institutional net buying, oldest first.
func (c *RESTClient) GetInvestorFlows(ctx context.Context, symbol string) ([]history.Flow, error) {
	var resp InvestorResponse
	err := c.get(ctx, investorPath, trIDInvestor, map[string]string{
		"FID_COND_MRKT_DIV_CODE": "J",
		"FID_INPUT_ISCD":         symbol,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("investor flows %s: %w", symbol, err)
	}

	flows := make([]history.Flow, 0, len(resp.Output))
	seen := make(map[string]bool, len(resp.Output))
	for _, row := range resp.Output {
		d, err := time.ParseInLocation(dateLayout, row.Date, kst)
		if err != nil || seen[row.Date] {
			continue
		}
		seen[row.Date] = true
		flows = append(flows, history.Flow{
			Date:           d,
			ForeignNet:     atoi(row.ForeignNet),
			InstitutionNet: atoi(row.OrgNet),
		})
	}
	sort.Slice(flows, func(i, j int) bool { return flows[i].Date.Before(flows[j].Date) })
	return flows, nil
}

func (c *RESTClient) get(ctx context.Context, path, trID string, params map[string]string, out interface{}) error {
	cred, err := c.creds.GetAccessCredential(ctx)
	if err != nil {
		return fmt.Errorf("get access credential: %w", err)
	}

	if err := c.pace(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	q := req.URL.Query()
	for k, v := range params {
		q.Add(k, v)
	}
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("authorization", cred.Authorization())
	req.Header.Set("appkey", c.appKey)
	req.Header.Set("appsecret", c.appSecret)
	req.Header.Set("tr_id", trID)
	req.Header.Set("custtype", "P")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("KIS API error: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var hdr apiHeader
	if err := sonic.Unmarshal(respBody, &hdr); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if hdr.RtCd != "0" {
		return fmt.Errorf("KIS API error: code=%s msg=%s", hdr.MsgCd, hdr.Msg1)
	}

	if err := sonic.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// pace spaces consecutive requests by at least interval.
func (c *RESTClient) pace(ctx context.Context) error {
	if c.interval <= 0 {
		return nil
	}

	c.paceMu.Lock()
	defer c.paceMu.Unlock()

	wait := c.lastCall.Add(c.interval).Sub(time.Now())
	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	c.lastCall = time.Now()
	return nil
}

func (r DailyChartRow) toBar() (history.Bar, bool) {
	d, err := time.ParseInLocation(dateLayout, r.Date, kst)
	if err != nil {
		return history.Bar{}, false
	}
	closePrice := atof(r.Close)
	if closePrice <= 0 {
		return history.Bar{}, false
	}
	return history.Bar{
		Date:   d,
		Open:   atof(r.Open),
		High:   atof(r.High),
		Low:    atof(r.Low),
		Close:  closePrice,
		Volume: atoi(r.Volume),
		Amount: atoi(r.Amount),
	}, true
}

func atof(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func atoi(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
