package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GetCurrentMonthDates returns 1st of current month to now.
func GetCurrentMonthDates(reference time.Time) (start, end time.Time) {
	year, month, _ := reference.Date()
	loc := reference.Location()

	start = time.Date(year, month, 1, 0, 0, 0, 0, loc)
	end = reference

	return start, end
}

// GetLastNDays returns date range for last N days.
func GetLastNDays(n int, reference time.Time) (start, end time.Time) {
	end = reference
	start = reference.AddDate(0, 0, -n+1) // -n+1 to include today
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, reference.Location())
	return start, end
}

// GetTodayDates returns start and end of today.
func GetTodayDates(reference time.Time) (start, end time.Time) {
	year, month, day := reference.Date()
	loc := reference.Location()

	start = time.Date(year, month, day, 0, 0, 0, 0, loc)
	end = reference

	return start, end
}

// GetYesterdayDates returns start and end of yesterday.
func GetYesterdayDates(reference time.Time) (start, end time.Time) {
	yesterday := reference.AddDate(0, 0, -1)
	year, month, day := yesterday.Date()
	loc := reference.Location()

	start = time.Date(year, month, day, 0, 0, 0, 0, loc)
	end = time.Date(year, month, day+1, 0, 0, 0, 0, loc).Add(-time.Nanosecond)

	return start, end
}

// GetLastMonthDates returns the full previous month range.
func GetLastMonthDates(reference time.Time) (start, end time.Time) {
	year, month, _ := reference.Date()
	loc := reference.Location()

	// First day of last month
	start = time.Date(year, month-1, 1, 0, 0, 0, 0, loc)
	// Last instant before the 1st of this month
	end = time.Date(year, month, 1, 0, 0, 0, 0, loc).Add(-time.Nanosecond)

	return start, end
}

// FormatDateRange returns date strings for database queries.
func FormatDateRange(start, end time.Time) (startDate, endDate string) {
	return start.Format("2006-01-02"), end.Format("2006-01-02")
}

// Preset names accepted by ParseRange.
const (
	RangeToday     = "today"
	RangeYesterday = "yesterday"
	RangeMonth     = "month"
	RangeLastMonth = "last-month"
)

// ParseRange resolves a named preset or "<n>d" into a time range ending at or
// before reference.
func ParseRange(preset string, reference time.Time) (start, end time.Time, err error) {
	switch p := strings.ToLower(strings.TrimSpace(preset)); p {
	case "", RangeToday:
		start, end = GetTodayDates(reference)
	case RangeYesterday:
		start, end = GetYesterdayDates(reference)
	case RangeMonth:
		start, end = GetCurrentMonthDates(reference)
	case RangeLastMonth:
		start, end = GetLastMonthDates(reference)
	default:
		n, convErr := strconv.Atoi(strings.TrimSuffix(p, "d"))
		if !strings.HasSuffix(p, "d") || convErr != nil || n < 1 {
			return time.Time{}, time.Time{}, fmt.Errorf("unknown range %q", preset)
		}
		start, end = GetLastNDays(n, reference)
	}
	return start, end, nil
}
