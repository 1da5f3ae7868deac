// Package market wraps the KRX trading calendar.
package market

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/scmhub/calendar"
)

const (
	// MIC is the ISO 10383 code of the Korea Exchange.
	MIC = "xkrx"

	dateLayout = "20060102"
)

// Calendar answers trading-day and session questions in KST.
type Calendar struct {
	cal *calendar.Calendar
	loc *time.Location

	// fallback: Mon-Fri 09:00-15:30
	openAt, closeAt time.Duration
}

// NewKRX loads the Korea Exchange calendar, falling back to a weekday
// schedule when the calendar library has no entry for xkrx.
func NewKRX() *Calendar {
	c := &Calendar{
		openAt:  9 * time.Hour,
		closeAt: 15*time.Hour + 30*time.Minute,
	}

	if cal := calendar.GetCalendar(MIC); cal != nil {
		c.cal = cal
		c.loc = cal.Loc
	}
	if c.loc == nil {
		c.loc = seoul()
	}
	if c.cal == nil {
		log.Warn().Str("mic", MIC).Msg("Trading calendar unavailable, using weekday fallback")
	}
	return c
}

// NewWeekday returns a calendar without holiday data.
func NewWeekday(loc *time.Location) *Calendar {
	if loc == nil {
		loc = seoul()
	}
	return &Calendar{
		loc:     loc,
		openAt:  9 * time.Hour,
		closeAt: 15*time.Hour + 30*time.Minute,
	}
}

func seoul() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// Location returns the exchange time zone.
func (c *Calendar) Location() *time.Location { return c.loc }

// IsTradingDay reports whether t falls on an exchange business day.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	t = t.In(c.loc)
	if c.cal != nil {
		return c.cal.IsBusinessDay(t)
	}
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// IsOpen reports whether the regular session is open at t.
func (c *Calendar) IsOpen(t time.Time) bool {
	t = t.In(c.loc)
	if c.cal != nil {
		return c.cal.IsOpen(t)
	}
	if !c.IsTradingDay(t) {
		return false
	}
	since := t.Sub(startOfDay(t))
	return since >= c.openAt && since < c.closeAt
}

// NextOpen returns the first instant at or after t when the session is open.
// The search is bounded to two weeks; the zero time means none was found.
func (c *Calendar) NextOpen(t time.Time) time.Time {
	t = t.In(c.loc)
	if c.IsOpen(t) {
		return t
	}

	day := startOfDay(t)
	for i := 0; i < 14; i++ {
		candidate := day.AddDate(0, 0, i).Add(c.openAt)
		if candidate.Before(t) {
			continue
		}
		if c.IsOpen(candidate) {
			return candidate
		}
	}
	return time.Time{}
}

// TradingDate formats t as the exchange-local YYYYMMDD date.
func (c *Calendar) TradingDate(t time.Time) string {
	return t.In(c.loc).Format(dateLayout)
}

// ParseDate parses a YYYYMMDD date in exchange time.
func (c *Calendar) ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, c.loc)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
