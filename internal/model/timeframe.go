package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BarSpan converts a (size, type) pair such as (1, "minute") or (5, "day")
// into a duration. Days are 24h; weeks 7 days; months are not supported.
func BarSpan(size int, barType string) (time.Duration, error) {
	if size <= 0 {
		return 0, fmt.Errorf("bar size must be positive, got %d", size)
	}
	var unit time.Duration
	switch strings.ToLower(barType) {
	case "minute", "min", "m":
		unit = time.Minute
	case "hour", "h":
		unit = time.Hour
	case "day", "daily", "d":
		unit = 24 * time.Hour
	case "week", "weekly", "w":
		unit = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("unsupported bar type %q", barType)
	}
	return time.Duration(size) * unit, nil
}

// Timeframe returns the short label for a bar span ("1m", "5m", "1h", "1d").
func Timeframe(size int, barType string) (string, error) {
	span, err := BarSpan(size, barType)
	if err != nil {
		return "", err
	}
	switch {
	case span%(7*24*time.Hour) == 0:
		return strconv.FormatInt(int64(span/(7*24*time.Hour)), 10) + "w", nil
	case span%(24*time.Hour) == 0:
		return strconv.FormatInt(int64(span/(24*time.Hour)), 10) + "d", nil
	case span%time.Hour == 0:
		return strconv.FormatInt(int64(span/time.Hour), 10) + "h", nil
	}
	return strconv.FormatInt(int64(span/time.Minute), 10) + "m", nil
}
