// Package timelimit converts allocation time limits from and to the HH:MM:SS notation
// batch schedulers use.
package timelimit

import (
	"fmt"
	"time"
)

// Format formats a duration as HH:MM:SS. Hours are not wrapped at 24.
func Format(d time.Duration) string {
	seconds := int64(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, seconds/60%60, seconds%60)
}

// Parse parses a HH:MM:SS time limit, or any duration time.ParseDuration accepts.
func Parse(value string) (time.Duration, error) {
	var hours, minutes, seconds int
	if n, err := fmt.Sscanf(value, "%d:%d:%d", &hours, &minutes, &seconds); err == nil && n == 3 {
		if minutes > 59 || seconds > 59 || hours < 0 || minutes < 0 || seconds < 0 {
			return 0, fmt.Errorf("invalid time limit '%s'", value)
		}
		return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid time limit '%s': expected HH:MM:SS or a duration like 1h30m", value)
	}
	return d, nil
}
