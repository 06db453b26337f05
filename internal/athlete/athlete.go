// Package athlete exposes the read-only athlete profile used by estimation tiers.
package athlete

import (
	"context"
	"time"

	"readiness/internal/config"
)

// Profile holds athlete physiology used for TSS and strain estimation
type Profile struct {
	FTP        float64 // watts, 0 when unknown
	MaxHR      float64
	RestingHR  float64
	BodyMassKg float64
	SleepNeed  time.Duration
}

// HRReserve returns max minus resting heart rate, or 0 when not positive
func (p Profile) HRReserve() float64 {
	if r := p.MaxHR - p.RestingHR; r > 0 {
		return r
	}
	return 0
}

// Provider supplies the current athlete profile
type Provider interface {
	Profile(ctx context.Context) (Profile, error)
}

// Static is a Provider returning a fixed profile
type Static Profile

// FromConfig builds a static profile from athlete settings
func FromConfig(cfg config.AthleteConfig) Static {
	return Static{
		FTP:        cfg.FTP,
		MaxHR:      cfg.MaxHR,
		RestingHR:  cfg.RestingHR,
		BodyMassKg: cfg.BodyMassKg,
		SleepNeed:  cfg.SleepNeed,
	}
}

// Profile implements Provider
func (s Static) Profile(context.Context) (Profile, error) {
	return Profile(s), nil
}
