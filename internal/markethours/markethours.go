// Package markethours knows the NYSE trading calendar and gates the robot
// loop on it.
package markethours

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // embed zoneinfo so America/New_York resolves in minimal images
)

// NewYork is the exchange time zone.
var NewYork = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("markethours: load %s: %v", name, err))
	}
	return loc
}

// Session boundaries in New York time, as minutes after midnight.
const (
	PreOpenMinute    = 4 * 60    // 04:00 pre-market opens
	OpenMinute       = 9*60 + 30 // 09:30 regular session
	CloseMinute      = 16 * 60   // 16:00
	EarlyCloseMinute = 13 * 60   // 13:00 on early-close days
	PostCloseMinute  = 20 * 60   // 20:00 post-market ends
)

// Session selects which part of the trading day counts as open.
type Session int

const (
	Regular Session = iota
	PreMarket
	PostMarket
	Extended // pre + regular + post
)

func (s Session) String() string {
	switch s {
	case Regular:
		return "regular"
	case PreMarket:
		return "pre"
	case PostMarket:
		return "post"
	case Extended:
		return "extended"
	}
	return fmt.Sprintf("Session(%d)", int(s))
}

// ParseSession parses "regular", "pre", "post" or "extended".
func ParseSession(s string) (Session, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "regular":
		return Regular, nil
	case "pre", "premarket", "pre_market":
		return PreMarket, nil
	case "post", "postmarket", "post_market":
		return PostMarket, nil
	case "extended", "all":
		return Extended, nil
	}
	return Regular, fmt.Errorf("unknown session %q", s)
}

// bounds returns the [start, end) minutes of session s on a trading day.
func (s Session) bounds(early bool) (int, int) {
	closeAt := CloseMinute
	if early {
		closeAt = EarlyCloseMinute
	}
	switch s {
	case PreMarket:
		return PreOpenMinute, OpenMinute
	case PostMarket:
		if early {
			return closeAt, 17 * 60
		}
		return closeAt, PostCloseMinute
	case Extended:
		if early {
			return PreOpenMinute, 17 * 60
		}
		return PreOpenMinute, PostCloseMinute
	default:
		return OpenMinute, closeAt
	}
}

// IsMarketOpen returns true if t falls within NYSE regular trading hours
// (9:30 AM – 4:00 PM ET, Mon–Fri, excluding holidays and after early closes).
func IsMarketOpen(t time.Time) bool {
	return IsSessionOpen(t, Regular)
}

// IsSessionOpen returns true if t falls within session s on a trading day.
func IsSessionOpen(t time.Time, s Session) bool {
	ny := t.In(NewYork)
	if !IsTradingDay(ny) {
		return false
	}
	start, end := s.bounds(IsEarlyClose(ny))
	hm := ny.Hour()*60 + ny.Minute()
	return hm >= start && hm < end
}

// IsWeekday returns true if t is Mon–Fri.
func IsWeekday(t time.Time) bool {
	wd := t.In(NewYork).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	ny := t.In(NewYork)
	return IsWeekday(ny) && !IsHoliday(ny)
}

func atMinute(d time.Time, minute int) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), minute/60, minute%60, 0, 0, NewYork)
}

// NextOpen returns the next regular open (9:30 AM ET on the next trading day).
// If t is before today's open on a trading day, returns today's open.
func NextOpen(t time.Time) time.Time {
	ny := t.In(NewYork)

	todayOpen := atMinute(ny, OpenMinute)
	if ny.Before(todayOpen) && IsTradingDay(ny) {
		return todayOpen
	}

	d := ny.AddDate(0, 0, 1)
	for i := 0; i < 10; i++ { // max 10 days ahead (holidays + weekends)
		if IsTradingDay(d) {
			return atMinute(d, OpenMinute)
		}
		d = d.AddDate(0, 0, 1)
	}
	return atMinute(ny.AddDate(0, 0, 1), OpenMinute)
}

// TodayClose returns today's regular close (4:00 PM ET, 1:00 PM on early-close days).
func TodayClose(t time.Time) time.Time {
	ny := t.In(NewYork)
	if IsEarlyClose(ny) {
		return atMinute(ny, EarlyCloseMinute)
	}
	return atMinute(ny, CloseMinute)
}

// TimeUntilClose returns the duration until today's close.
// Returns 0 if market is already closed.
func TimeUntilClose(t time.Time) time.Duration {
	d := TodayClose(t).Sub(t)
	if d < 0 {
		return 0
	}
	return d
}

// TimeUntilOpen returns the duration until the next market open.
func TimeUntilOpen(t time.Time) time.Duration {
	return NextOpen(t).Sub(t)
}

// StatusString returns a human-readable market status.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		return fmt.Sprintf("Market Open, closes in %s", fmtDur(TimeUntilClose(t)))
	}
	next := NextOpen(t)
	ny := next.In(NewYork)
	return fmt.Sprintf("Market Closed, opens %s %s ET (%s)",
		ny.Weekday().String()[:3], ny.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
