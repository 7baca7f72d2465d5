package placement

import (
	"fmt"
	"time"
)

// =============================================================================
// EMI SCHEDULE
// =============================================================================

// GenerateSchedule returns count due dates. Installment i (1-based) falls in
// the calendar month i months after start, on emiDay.
//
// When the target month is shorter than emiDay the date is clamped to the
// month's last day: emiDay=31 gives Feb 29 in 2024, Apr 30, and so on. Dates
// never spill into the following month.
func GenerateSchedule(start time.Time, emiDay, count int) ([]time.Time, error) {
	if emiDay < 1 || emiDay > 31 {
		return nil, fmt.Errorf("emi day %d outside 1..31: %w", emiDay, ErrInvalidArgument)
	}
	if count < 1 {
		return nil, fmt.Errorf("installment count %d: %w", count, ErrInvalidArgument)
	}

	dates := make([]time.Time, count)
	for i := 1; i <= count; i++ {
		dates[i-1] = DueDate(start, i, emiDay)
	}
	return dates, nil
}

// DueDate returns the date monthsAhead calendar months after start with the
// day set to day, clamped to the target month's length.
func DueDate(start time.Time, monthsAhead, day int) time.Time {
	first := time.Date(start.Year(), start.Month()+time.Month(monthsAhead), 1, 0, 0, 0, 0, time.UTC)
	if last := DaysInMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// DATE UTILITIES
// =============================================================================

const dateLayout = "2006-01-02"

// DateOnly drops the clock part, keeping the calendar day as written.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func EndOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month, DaysInMonth(year, month), 0, 0, 0, 0, time.UTC)
}
