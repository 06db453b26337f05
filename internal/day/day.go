// Package day converts instants to calendar-day keys.
package day

import (
	"fmt"
	"time"
)

// Layout is the storage format for a calendar day.
const Layout = "2006-01-02"

// Key returns the YYYY-MM-DD key for t in loc
func Key(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(Layout)
}

// Start returns midnight of the day containing t in loc
func Start(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Parse parses a YYYY-MM-DD key as midnight in loc
func Parse(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(Layout, key, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing day %q: %w", key, err)
	}
	return t, nil
}

// Add returns the key n days after key. Invalid keys are returned unchanged.
func Add(key string, n int) string {
	t, err := time.Parse(Layout, key)
	if err != nil {
		return key
	}
	return t.AddDate(0, 0, n).Format(Layout)
}
