package utils

import "time"

// NowRFC3339 returns the current time formatted as RFC3339
func NowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// ParseRFC3339 parses an RFC3339 formatted time string
func ParseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
