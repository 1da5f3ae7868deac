package kis

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/Jeongbyungkyu/korea-investment/internal/domain/stream"
)

// H0STCNT0 field positions (국내주식 실시간 체결가)
const (
	fieldSymbol      = 0  // 유가증권단축종목코드
	fieldTime        = 1  // 주식체결시간 HHMMSS
	fieldPrice       = 2  // 주식현재가
	fieldSign        = 3  // 전일대비부호
	fieldChange      = 4  // 전일대비
	fieldChangeRate  = 5  // 전일대비율
	fieldOpen        = 7  // 시가
	fieldHigh        = 8  // 고가
	fieldLow         = 9  // 저가
	fieldVolume      = 12 // 체결거래량
	fieldAccumVolume = 13 // 누적거래량
	fieldAccumAmount = 14 // 누적거래대금

	minTradeFields = fieldAccumAmount + 1
)

// ParseTrades splits an H0STCNT0 frame into its execution records.
// A frame may pack several records; the value list is divided evenly by the record count.
func ParseTrades(f *stream.DataFrame) ([]stream.TradeTick, error) {
	if f.TrID != stream.TrIDTrade {
		return nil, fmt.Errorf("not a trade frame: tr_id=%s", f.TrID)
	}
	if f.Encrypted != "0" {
		return nil, fmt.Errorf("encrypted trade frame not supported")
	}

	count := f.Count()
	if len(f.Values)%count != 0 {
		return nil, &stream.FrameError{Raw: f.Payload, Fields: len(f.Values), Reason: fmt.Sprintf("%d values not divisible by %d records", len(f.Values), count)}
	}
	per := len(f.Values) / count
	if per < minTradeFields {
		return nil, &stream.FrameError{Raw: f.Payload, Fields: per, Reason: "trade record too short"}
	}

	ticks := make([]stream.TradeTick, 0, count)
	for i := 0; i < count; i++ {
		tick, err := parseTrade(f.Values[i*per : (i+1)*per])
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}

func parseTrade(v []string) (stream.TradeTick, error) {
	price, err := decimal.NewFromString(v[fieldPrice])
	if err != nil {
		return stream.TradeTick{}, fmt.Errorf("parse price %q: %w", v[fieldPrice], err)
	}

	t := stream.TradeTick{
		Symbol:     v[fieldSymbol],
		Time:       v[fieldTime],
		Price:      price,
		Change:     optionalDecimal(v[fieldChange]),
		ChangeRate: optionalDecimal(v[fieldChangeRate]),
		Open:       optionalDecimal(v[fieldOpen]),
		High:       optionalDecimal(v[fieldHigh]),
		Low:        optionalDecimal(v[fieldLow]),
	}

	// 전일대비부호: 1 상한, 2 상승, 3 보합, 4 하한, 5 하락
	switch v[fieldSign] {
	case "4", "5":
		if t.Change.IsPositive() {
			t.Change = t.Change.Neg()
		}
	case "3":
		t.Change = decimal.Zero
	}

	if t.Volume, err = parseInt(v[fieldVolume]); err != nil {
		return stream.TradeTick{}, fmt.Errorf("parse volume: %w", err)
	}
	if t.AccumVolume, err = parseInt(v[fieldAccumVolume]); err != nil {
		return stream.TradeTick{}, fmt.Errorf("parse accumulated volume: %w", err)
	}
	if t.AccumAmount, err = parseInt(v[fieldAccumAmount]); err != nil {
		return stream.TradeTick{}, fmt.Errorf("parse accumulated amount: %w", err)
	}

	// 시고저가가 비어 있으면 현재가로 대체
	for _, p := range []*decimal.Decimal{&t.Open, &t.High, &t.Low} {
		if p.IsZero() {
			*p = price
		}
	}
	return t, nil
}

func optionalDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
