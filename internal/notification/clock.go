// internal/notification/clock.go
package notification

import (
	"fmt"
	"time"

	"clinic-worker/internal/models"
)

// parseClock turns "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse(models.ClockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// truncateMinute drops seconds in t's own zone.
func truncateMinute(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
}

// doseInstant places a minute-of-day on day's date in day's zone.
func doseInstant(day time.Time, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minute/60, minute%60, 0, 0, day.Location())
}

// IsQuiet reports whether now falls inside the configured quiet hours.
// Both bounds are inclusive; a start after the end wraps past midnight.
// Unset or unparseable bounds mean never quiet.
func IsQuiet(s *models.NotificationSettings, now time.Time) bool {
	if s == nil || s.QuietHoursStart == nil || s.QuietHoursEnd == nil {
		return false
	}
	start, err := parseClock(*s.QuietHoursStart)
	if err != nil {
		return false
	}
	end, err := parseClock(*s.QuietHoursEnd)
	if err != nil {
		return false
	}

	m := minuteOfDay(now)
	if start <= end {
		return start <= m && m <= end
	}
	return m >= start || m <= end
}
