package day

import (
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)

	tests := []struct {
		name string
		in   time.Time
		loc  *time.Location
		want string
	}{
		{"utc midday", time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC), time.UTC, "2024-03-10"},
		{"crosses midnight backwards", time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC), loc, "2024-03-09"},
		{"end of year", time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC), time.UTC, "2024-12-31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.in, tt.loc); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStartAndParse(t *testing.T) {
	in := time.Date(2024, 5, 1, 18, 30, 0, 0, time.UTC)
	start := Start(in, time.UTC)
	if start.Hour() != 0 || start.Day() != 1 {
		t.Errorf("Start() = %v, want midnight of May 1", start)
	}

	parsed, err := Parse("2024-05-01", time.UTC)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !parsed.Equal(start) {
		t.Errorf("Parse() = %v, want %v", parsed, start)
	}

	if _, err := Parse("not-a-day", time.UTC); err == nil {
		t.Error("Parse() expected error for invalid key")
	}
}

func TestAdd(t *testing.T) {
	if got := Add("2024-02-28", 1); got != "2024-02-29" {
		t.Errorf("Add() = %q, want 2024-02-29", got)
	}
	if got := Add("2024-03-01", -1); got != "2024-02-29" {
		t.Errorf("Add() = %q, want 2024-02-29", got)
	}
	if got := Add("garbage", 1); got != "garbage" {
		t.Errorf("Add() = %q, want input unchanged", got)
	}
}
