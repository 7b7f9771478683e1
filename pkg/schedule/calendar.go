// Package schedule provides the timezone arithmetic the resolver and
// instance manager depend on. All business scheduling happens in Australian
// Eastern time: AEST (UTC+10) outside daylight saving and AEDT (UTC+11)
// during it. Daylight saving is computed with the legislated rule (begins
// 02:00 standard time on the first Sunday in October, ends 02:00 standard
// time on the first Sunday in April) rather than the host timezone database,
// so results do not depend on the host environment.
package schedule

import (
	"fmt"
	"time"

	"github.com/felttable/venuepipe/pkg/entities"
)

const (
	aestOffsetHours = 10
	aedtOffsetHours = 11

	// DateLayout is the wire format for AEST calendar dates
	DateLayout = "2006-01-02"
	// ClockLayout is the wire format for template start times
	ClockLayout = "15:04"
)

// AESTTime is a UTC instant broken down into Australian Eastern civil time
type AESTTime struct {
	Year      int
	Month     time.Month
	Day       int
	Hour      int
	Minute    int
	DayOfWeek entities.DayOfWeek
	ISODate   string // YYYY-MM-DD
}

// firstSunday returns 02:00 on the first Sunday of the given month, expressed
// in standard (UTC+10) civil time.
func firstSunday(year int, month time.Month) time.Time {
	d := time.Date(year, month, 1, 2, 0, 0, 0, time.UTC)
	for d.Weekday() != time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// offsetHours returns 10 or 11 depending on whether daylight saving is in
// effect for the given UTC instant.
func offsetHours(utc time.Time) int {
	// Evaluate the DST rule against standard civil time so the boundary
	// itself is unambiguous.
	std := utc.UTC().Add(aestOffsetHours * time.Hour)
	year := std.Year()
	if std.Month() >= time.July {
		if !std.Before(firstSunday(year, time.October)) {
			return aedtOffsetHours
		}
		return aestOffsetHours
	}
	if std.Before(firstSunday(year, time.April)) {
		return aedtOffsetHours
	}
	return aestOffsetHours
}

// AsAEST converts a UTC instant into Australian Eastern civil time. The
// second return value is false for the zero instant, the sentinel callers
// use to short-circuit resolution.
func AsAEST(utc time.Time) (AESTTime, bool) {
	if utc.IsZero() {
		return AESTTime{}, false
	}
	local := utc.UTC().Add(time.Duration(offsetHours(utc)) * time.Hour)
	return AESTTime{
		Year:      local.Year(),
		Month:     local.Month(),
		Day:       local.Day(),
		Hour:      local.Hour(),
		Minute:    local.Minute(),
		DayOfWeek: entities.DayOfWeekFromTime(local.Weekday()),
		ISODate:   local.Format(DateLayout),
	}, true
}

// DayOfWeek returns the AEST weekday of a UTC instant
func DayOfWeek(utc time.Time) (entities.DayOfWeek, bool) {
	a, ok := AsAEST(utc)
	if !ok {
		return "", false
	}
	return a.DayOfWeek, true
}

// MinutesSinceMidnight returns the AEST wall-clock minute of a UTC instant,
// in [0, 1440).
func MinutesSinceMidnight(utc time.Time) (int, bool) {
	a, ok := AsAEST(utc)
	if !ok {
		return 0, false
	}
	return a.Hour*60 + a.Minute, true
}

// ISOWeekKey returns the ISO-8601 week of the AEST calendar date containing
// the instant, formatted "YYYY-Www". Weeks begin Monday; week 01 contains the
// year's first Thursday.
func ISOWeekKey(utc time.Time) (string, bool) {
	a, ok := AsAEST(utc)
	if !ok {
		return "", false
	}
	return ISOWeekKeyForDate(a.ISODate)
}

// ISOWeekKeyForDate returns the ISO week key for an AEST calendar date
func ISOWeekKeyForDate(isoDate string) (string, bool) {
	d, err := ParseDate(isoDate)
	if err != nil {
		return "", false
	}
	year, week := d.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week), true
}

// ParseDate parses a YYYY-MM-DD calendar date
func ParseDate(isoDate string) (time.Time, error) {
	return time.Parse(DateLayout, isoDate)
}

// DayOfWeekForDate returns the weekday of an AEST calendar date
func DayOfWeekForDate(isoDate string) (entities.DayOfWeek, bool) {
	d, err := ParseDate(isoDate)
	if err != nil {
		return "", false
	}
	return entities.DayOfWeekFromTime(d.Weekday()), true
}

// Clock returns the AEST wall-clock time formatted HH:MM
func (a AESTTime) Clock() string {
	return fmt.Sprintf("%02d:%02d", a.Hour, a.Minute)
}

// EnumerateDatesForDayOfWeek returns every AEST calendar date in the
// inclusive range [startDate, endDate] that falls on the given weekday, in
// ascending order.
func EnumerateDatesForDayOfWeek(startDate, endDate string, dow entities.DayOfWeek) ([]string, error) {
	start, err := ParseDate(startDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	end, err := ParseDate(endDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", endDate, err)
	}
	if !dow.IsValid() {
		return nil, fmt.Errorf("invalid day of week %q", dow)
	}

	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if entities.DayOfWeekFromTime(d.Weekday()) == dow {
			dates = append(dates, d.Format(DateLayout))
		}
	}
	return dates, nil
}
