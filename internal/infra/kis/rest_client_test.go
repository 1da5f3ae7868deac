package kis

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/auth"
)

type staticAccess struct {
	cred auth.Credential
	err  error
}

func (s staticAccess) GetAccessCredential(ctx context.Context) (auth.Credential, error) {
	return s.cred, s.err
}

func newTestREST(t *testing.T, handler http.HandlerFunc) *RESTClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := NewConfig("key", "secret", false)
	cfg.BaseURL = srv.URL
	cfg.RequestInterval = 0
	return NewRESTClient(cfg, staticAccess{cred: auth.Credential{Token: "tok", TokenType: "Bearer", IssuedAt: time.Now(), Validity: time.Hour}})
}

func TestGetDailyBars(t *testing.T) {
	today := time.Date(2024, 6, 28, 16, 0, 0, 0, kst)

	t.Run("pages backwards until enough bars", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
			n := calls.Add(1)
			assert.Equal(t, dailyChartPath, r.URL.Path)
			assert.Equal(t, trIDDailyChart, r.Header.Get("tr_id"))
			assert.Equal(t, "Bearer tok", r.Header.Get("authorization"))
			assert.Equal(t, "005930", r.URL.Query().Get("FID_INPUT_ISCD"))

			end, err := time.ParseInLocation(dateLayout, r.URL.Query().Get("FID_INPUT_DATE_2"), kst)
			assert.NoError(t, err)

			// 70 rows per chunk, newest first like the venue
			rows := make([]string, 0, 70)
			for i := 0; i < 70; i++ {
				d := end.AddDate(0, 0, -i).Format(dateLayout)
				rows = append(rows, fmt.Sprintf(`{"stck_bsop_date":"%s","stck_clpr":"%d","stck_oprc":"100","stck_hgpr":"110","stck_lwpr":"90","acml_vol":"1000","acml_tr_pbmn":"100000"}`, d, 1000+int(n)*100-i))
			}
			fmt.Fprintf(w, `{"rt_cd":"0","msg_cd":"MCA00000","msg1":"ok","output1":{"hts_kor_isnm":"삼성전자"},"output2":[%s]}`, strings.Join(rows, ","))
		})
		c.now = func() time.Time { return today }

		name, bars, err := c.GetDailyBars(context.Background(), "005930", 120)
		require.NoError(t, err)
		assert.Equal(t, "삼성전자", name)
		assert.Len(t, bars, 120)
		assert.Equal(t, int32(2), calls.Load())

		for i := 1; i < len(bars); i++ {
			assert.True(t, bars[i].Date.After(bars[i-1].Date), "bar %d", i)
		}
		assert.Equal(t, "20240628", bars[len(bars)-1].Date.Format(dateLayout))
	})

	t.Run("stops on empty chunk", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) > 1 {
				fmt.Fprint(w, `{"rt_cd":"0","output1":{},"output2":[]}`)
				return
			}
			fmt.Fprint(w, `{"rt_cd":"0","output1":{"hts_kor_isnm":"신규상장"},"output2":[{"stck_bsop_date":"20240628","stck_clpr":"5000","stck_oprc":"4900","stck_hgpr":"5100","stck_lwpr":"4800","acml_vol":"10","acml_tr_pbmn":"50000"},{"stck_bsop_date":"","stck_clpr":""}]}`)
		})
		c.now = func() time.Time { return today }

		_, bars, err := c.GetDailyBars(context.Background(), "123456", 120)
		require.NoError(t, err)
		require.Len(t, bars, 1)
		assert.Equal(t, 5000.0, bars[0].Close)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("venue error code", func(t *testing.T) {
		c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"rt_cd":"1","msg_cd":"EGW00201","msg1":"초당 거래건수를 초과하였습니다."}`)
		})
		_, _, err := c.GetDailyBars(context.Background(), "005930", 120)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "EGW00201")
	})

	t.Run("credential failure", func(t *testing.T) {
		c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("request must not be sent")
		})
		c.creds = staticAccess{err: auth.ErrIssuanceFailed}
		_, _, err := c.GetDailyBars(context.Background(), "005930", 120)
		assert.ErrorIs(t, err, auth.ErrIssuanceFailed)
	})
}

func TestGetInvestorFlows(t *testing.T) {
	c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, investorPath, r.URL.Path)
		assert.Equal(t, trIDInvestor, r.Header.Get("tr_id"))
		fmt.Fprint(w, `{"rt_cd":"0","output":[
			{"stck_bsop_date":"20240628","frgn_ntby_qty":"-1500","orgn_ntby_qty":"300"},
			{"stck_bsop_date":"20240627","frgn_ntby_qty":"2000","orgn_ntby_qty":""},
			{"stck_bsop_date":"","frgn_ntby_qty":"1"}
		]}`)
	})

	flows, err := c.GetInvestorFlows(context.Background(), "005930")
	require.NoError(t, err)
	require.Len(t, flows, 2)
	assert.Equal(t, "20240627", flows[0].Date.Format(dateLayout))
	assert.Equal(t, int64(2000), flows[0].ForeignNet)
	assert.Equal(t, int64(0), flows[0].InstitutionNet)
	assert.Equal(t, int64(-1500), flows[1].ForeignNet)
}

func TestPace(t *testing.T) {
	c := &RESTClient{interval: 30 * time.Millisecond}
	start := time.Now()
	require.NoError(t, c.pace(context.Background()))
	require.NoError(t, c.pace(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.interval = time.Hour
	assert.ErrorIs(t, c.pace(ctx), context.Canceled)
}
