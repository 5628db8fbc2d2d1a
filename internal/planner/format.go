package planner

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatClock renders minutes from midnight as HH:MM.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// FormatDuration renders a length such as "45m", "2h" or "1h 30m".
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	h, m := minutes/60, minutes%60
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

// ParseClock accepts "HH:MM" or a bare minute count and returns minutes from midnight.
func ParseClock(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("time required")
	}
	if hh, mm, ok := strings.Cut(s, ":"); ok {
		h, err := strconv.Atoi(hh)
		if err != nil {
			return 0, fmt.Errorf("invalid hour in %q", raw)
		}
		m, err := strconv.Atoi(mm)
		if err != nil || len(mm) != 2 {
			return 0, fmt.Errorf("invalid minute in %q", raw)
		}
		if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
			return 0, fmt.Errorf("time %q out of range", raw)
		}
		return h*60 + m, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: want HH:MM or minutes", raw)
	}
	if n < 0 || n > 24*60 {
		return 0, fmt.Errorf("time %q out of range", raw)
	}
	return n, nil
}
