package dashboard

import (
	"errors"
	"strings"
	"time"
)

var ErrBadDate = errors.New("unrecognized date")

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02-01-2006",
	"02/01/2006",
	"02-01-2006 15:04:05",
	"02/01/2006 15:04:05",
	"2 January 2006",
	"2 Jan 2006",
	"2 January 2006 15:04",
	"2 Jan 2006 15:04",
}

// the portal renders month names in Indonesian
var monthNames = strings.NewReplacer(
	"Januari", "January",
	"Februari", "February",
	"Maret", "March",
	"Mei", "May",
	"Juni", "June",
	"Juli", "July",
	"Agustus", "August",
	"Oktober", "October",
	"Desember", "December",
	"Agu", "Aug",
	"Okt", "Oct",
	"Des", "Dec",
)

// ParseDate reads a date cell in any of the formats the portal has been seen
// to use and returns midnight of that day in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrBadDate
	}
	s = monthNames.Replace(s)
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return DateOf(t, loc), nil
		}
	}
	return time.Time{}, ErrBadDate
}

// DateOf truncates t to midnight of its calendar day in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// civil days since an arbitrary epoch, immune to DST
func dayNumber(t time.Time) int {
	return int(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// BusinessDays counts Monday to Friday days in [start, end), by calendar
// date. It is negative when end is before start.
func BusinessDays(start, end time.Time) int {
	from := dayNumber(start)
	to := dayNumber(end)
	if to < from {
		return -countWeekdays(to, from)
	}
	return countWeekdays(from, to)
}

func countWeekdays(from, to int) int {
	days := to - from
	count := days / 7 * 5
	// 1970-01-01 (day 0) was a Thursday
	weekday := (from + 4) % 7
	if weekday < 0 {
		weekday += 7
	}
	for i := 0; i < days%7; i++ {
		wd := (weekday + i) % 7
		if wd != 0 && wd != 6 {
			count++
		}
	}
	return count
}
