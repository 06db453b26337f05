// Package wellness holds per-day physiological samples, their baselines and
// the adapter contract of the physiological data source.
package wellness

import (
	"context"
	"time"
)

// DailySample is one calendar day's physiological snapshot. Nil fields were
// not reported.
type DailySample struct {
	Date             string         `json:"date"`
	HRV              *float64       `json:"hrv,omitempty"` // ms, overnight
	RestingHR        *float64       `json:"resting_hr,omitempty"`
	SleepDuration    *time.Duration `json:"sleep_duration,omitempty"`
	TimeInBed        *time.Duration `json:"time_in_bed,omitempty"`
	Deep             *time.Duration `json:"deep,omitempty"`
	REM              *time.Duration `json:"rem,omitempty"`
	Light            *time.Duration `json:"light,omitempty"`
	RespiratoryRate  *float64       `json:"respiratory_rate,omitempty"`
	WakeEvents       *int           `json:"wake_events,omitempty"`
	BedTime          *time.Time     `json:"bed_time,omitempty"`
	WakeTime         *time.Time     `json:"wake_time,omitempty"`
	Steps            *int           `json:"steps,omitempty"`
	ActiveEnergyKcal *float64       `json:"active_energy_kcal,omitempty"`
}

// Merge returns s overwritten field by field with the non-nil fields of later
func (s DailySample) Merge(later DailySample) DailySample {
	out := s
	if later.Date != "" {
		out.Date = later.Date
	}
	if later.HRV != nil {
		out.HRV = later.HRV
	}
	if later.RestingHR != nil {
		out.RestingHR = later.RestingHR
	}
	if later.SleepDuration != nil {
		out.SleepDuration = later.SleepDuration
	}
	if later.TimeInBed != nil {
		out.TimeInBed = later.TimeInBed
	}
	if later.Deep != nil {
		out.Deep = later.Deep
	}
	if later.REM != nil {
		out.REM = later.REM
	}
	if later.Light != nil {
		out.Light = later.Light
	}
	if later.RespiratoryRate != nil {
		out.RespiratoryRate = later.RespiratoryRate
	}
	if later.WakeEvents != nil {
		out.WakeEvents = later.WakeEvents
	}
	if later.BedTime != nil {
		out.BedTime = later.BedTime
	}
	if later.WakeTime != nil {
		out.WakeTime = later.WakeTime
	}
	if later.Steps != nil {
		out.Steps = later.Steps
	}
	if later.ActiveEnergyKcal != nil {
		out.ActiveEnergyKcal = later.ActiveEnergyKcal
	}
	return out
}

// HasSleep reports whether a sleep session was recorded
func (s DailySample) HasSleep() bool {
	return s.SleepDuration != nil && *s.SleepDuration > 0
}

// Provider is the physiological data adapter
type Provider interface {
	// FetchDailyMetrics returns the sample for a day key, or nil when none exists
	FetchDailyMetrics(ctx context.Context, date string) (*DailySample, error)
	// FetchHistoricalMetrics returns samples for the days days ending on through
	FetchHistoricalMetrics(ctx context.Context, through string, days int) ([]DailySample, error)
	IsAuthorized(ctx context.Context) bool
}
