package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errBadInterval = errors.New("invalid interval")

// ParseIntervalMinutes converts operator-facing interval strings into
// whole minutes: "30m", "2h", "1h30m", and bare digits (minutes).
func ParseIntervalMinutes(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, errBadInterval
	}

	total := 0
	num := ""
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
		case r == 'h' || r == 'm':
			if num == "" {
				return 0, fmt.Errorf("%w: %q", errBadInterval, s)
			}
			n, err := strconv.Atoi(num)
			if err != nil {
				return 0, fmt.Errorf("%w: %q", errBadInterval, s)
			}
			if r == 'h' {
				total += n * 60
			} else {
				total += n
			}
			num = ""
		case r == ' ':
			// allow "1h 30m"
		default:
			return 0, fmt.Errorf("%w: %q", errBadInterval, s)
		}
	}
	// Trailing bare digits count as minutes ("90" == "90m").
	if num != "" {
		n, err := strconv.Atoi(num)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", errBadInterval, s)
		}
		total += n
	}
	if total <= 0 {
		return 0, fmt.Errorf("%w: %q", errBadInterval, s)
	}
	return total, nil
}

// FormatIntervalMinutes renders minutes back into the short operator form.
func FormatIntervalMinutes(mins int) string {
	if mins < 60 || mins%60 != 0 {
		if mins >= 60 {
			return fmt.Sprintf("%dh%dm", mins/60, mins%60)
		}
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dh", mins/60)
}
