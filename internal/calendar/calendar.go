package calendar

import (
	"fmt"
	"time"

	"sp500-autopilot/internal/model"
)

// Eastern is the exchange's local zone (NYSE/Nasdaq).
var Eastern *time.Location

func init() {
	var err error
	Eastern, err = time.LoadLocation("America/New_York")
	if err != nil {
		// Fallback to UTC-5 if the zone database is unavailable
		Eastern = time.FixedZone("EST", -5*60*60)
	}
}

// Regular session bounds, minutes since midnight exchange-local.
const (
	openMinute  = 9*60 + 30 // 09:30
	closeMinute = 16 * 60   // 16:00
)

// IsOpen reports whether the US equity market is open at t: a weekday inside
// [09:30, 16:00) exchange-local that is not a market holiday.
func IsOpen(t time.Time) bool {
	local := t.In(Eastern)

	wd := local.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	if minutes < openMinute || minutes >= closeMinute {
		return false
	}

	return !IsHoliday(local)
}

// Status returns the open flag plus the reason it is closed, for display.
func Status(t time.Time) model.MarketStatus {
	local := t.In(Eastern)
	st := model.MarketStatus{LocalTime: local}

	wd := local.Weekday()
	minutes := local.Hour()*60 + local.Minute()

	switch {
	case wd == time.Saturday || wd == time.Sunday:
		st.Reason = "weekend"
	case IsHoliday(local):
		st.Reason = "holiday"
	case minutes < openMinute || minutes >= closeMinute:
		st.Reason = "after-hours"
	default:
		st.Open = true
		st.Reason = "open"
	}
	return st
}

// IsHoliday reports whether t's exchange-local calendar date is a US market
// holiday. Comparison is by canonical date string, not timestamp.
func IsHoliday(t time.Time) bool {
	local := t.In(Eastern)
	date := local.Format("2006-01-02")
	for _, h := range Holidays(local.Year()) {
		if h == date {
			return true
		}
	}
	return false
}

// Holidays returns the US market holidays for a year as canonical YYYY-MM-DD
// strings in calendar order. Nine entries before 2021, ten from 2021 on
// (Juneteenth). Columbus Day and Veterans Day are trading days.
func Holidays(year int) []string {
	holidays := []string{
		fmt.Sprintf("%d-01-01", year),                            // New Year's Day
		nthWeekdayOfMonth(year, time.January, time.Monday, 3),    // MLK Day
		nthWeekdayOfMonth(year, time.February, time.Monday, 3),   // Presidents' Day
		goodFriday(year),                                         // Good Friday
		lastWeekdayOfMonth(year, time.May, time.Monday),          // Memorial Day
	}
	if year >= 2021 {
		holidays = append(holidays, fmt.Sprintf("%d-06-19", year)) // Juneteenth
	}
	holidays = append(holidays,
		fmt.Sprintf("%d-07-04", year),                            // Independence Day
		nthWeekdayOfMonth(year, time.September, time.Monday, 1),  // Labor Day
		nthWeekdayOfMonth(year, time.November, time.Thursday, 4), // Thanksgiving
		fmt.Sprintf("%d-12-25", year),                            // Christmas
	)
	return holidays
}

// nthWeekdayOfMonth finds the first occurrence of weekday on/after the 1st,
// then adds (n-1) weeks.
func nthWeekdayOfMonth(year int, month time.Month, weekday time.Weekday, n int) string {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	daysToAdd := (int(weekday) - int(first.Weekday()) + 7) % 7
	day := 1 + daysToAdd + (n-1)*7
	return fmt.Sprintf("%d-%02d-%02d", year, month, day)
}

// lastWeekdayOfMonth walks back from the last day of the month. The <= 0 guard
// keeps the result from landing in the previous month.
func lastWeekdayOfMonth(year int, month time.Month, weekday time.Weekday) string {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC) // day 0 = last of month
	day := last.Day() - (int(last.Weekday())-int(weekday)+7)%7
	if day <= 0 {
		day += 7
	}
	return fmt.Sprintf("%d-%02d-%02d", year, month, day)
}

// goodFriday is two days before Easter Sunday. AddDate works on a copy, so the
// Easter date itself is never mutated.
func goodFriday(year int) string {
	gf := easterSunday(year).AddDate(0, 0, -2)
	return gf.Format("2006-01-02")
}

// easterSunday computes Easter with the anonymous Gregorian algorithm
// (Meeus/Jones/Butcher). Exact integer arithmetic, valid for any Gregorian year.
func easterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
