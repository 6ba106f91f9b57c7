package dateutil

import (
	"fmt"
	"time"

	"github.com/ukydev/maintenance-tracker/internal/errs"
	"github.com/ukydev/maintenance-tracker/internal/models"
)

// AddInterval advances a date by n calendar units. Month and year
// additions clamp to the last valid day of the target month instead of
// overflowing the way time.AddDate does (Jan 31 + 1 month = Feb 29/28,
// not Mar 2/3).
func AddInterval(t time.Time, n int, unit models.IntervalUnit) (time.Time, error) {
	switch unit {
	case models.UnitDay:
		return t.AddDate(0, 0, n), nil
	case models.UnitWeek:
		return t.AddDate(0, 0, 7*n), nil
	case models.UnitMonth:
		return addMonthsClamped(t, n), nil
	case models.UnitYear:
		return addMonthsClamped(t, 12*n), nil
	default:
		return time.Time{}, errs.Validationf("invalid interval unit %q", unit)
	}
}

func addMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	// Normalize to the first of the month before adding, then clamp the day.
	first := time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	target := first.AddDate(0, n, 0)
	last := DaysInMonth(target.Year(), target.Month())
	if d > last {
		d = last
	}
	hh, mm, ss := t.Clock()
	return time.Date(target.Year(), target.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Today truncates an instant to midnight in its own location, for
// date-only recurrence comparisons.
func Today(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// monthFrequency names the common month-based intervals.
var monthFrequency = map[int]string{
	1:  "Monthly",
	2:  "Bimonthly",
	3:  "Quarterly",
	4:  "Four-monthly",
	6:  "Semiannual",
	12: "Annual",
}

// FrequencyLabel returns the human label for a recurrence interval, used
// when naming generated requests.
func FrequencyLabel(interval int, unit models.IntervalUnit) string {
	if unit == models.UnitMonth {
		if name, ok := monthFrequency[interval]; ok {
			return name
		}
		return fmt.Sprintf("%d months", interval)
	}
	if interval == 1 {
		switch unit {
		case models.UnitDay:
			return "Daily"
		case models.UnitWeek:
			return "Weekly"
		case models.UnitYear:
			return "Yearly"
		}
	}
	return fmt.Sprintf("%d %ss", interval, unit)
}
