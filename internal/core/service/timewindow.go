package service

import (
	"fmt"
	"time"
)

// ParseClock parses a "HH:MM" wall-clock string into minutes past
// midnight.
func ParseClock(v string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(v, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", v, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock time %q", v)
	}
	return h*60 + m, nil
}

// IsTimeInRange reports whether current lies inside [start, end), all as
// "HH:MM". Overnight windows (end before start) wrap past midnight; a
// zero-width window (start == end) never matches.
func IsTimeInRange(current, start, end string) (bool, error) {
	cur, err := ParseClock(current)
	if err != nil {
		return false, err
	}
	s, err := ParseClock(start)
	if err != nil {
		return false, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return false, err
	}
	return minutesInRange(cur, s, e), nil
}

// ClockInRange is IsTimeInRange for a concrete instant.
func ClockInRange(now time.Time, start, end string) (bool, error) {
	return IsTimeInRange(now.Format("15:04"), start, end)
}

func minutesInRange(cur, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return cur >= start && cur < end
	}
	// overnight wrap
	return cur >= start || cur < end
}

// NextMinuteDelay returns the duration until the next wall-clock minute
// boundary, used to align the scheduler's first tick.
func NextMinuteDelay(now time.Time) time.Duration {
	next := now.Truncate(time.Minute).Add(time.Minute)
	return next.Sub(now)
}
