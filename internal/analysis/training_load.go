package analysis

import (
	"math"
	"time"

	"readiness/internal/day"
)

// Time constants of the training-load moving averages, in days
const (
	CTLTimeConstant = 42.0
	ATLTimeConstant = 7.0
)

// HRZones represents athlete's heart rate zones
type HRZones struct {
	RestingHR float64
	MaxHR     float64
}

// TRIMP calculates Training Impulse (Banister model)
// TRIMP = duration (min) * ΔHR ratio * e^(b * ΔHR ratio)
// where b = 1.92 for men, 1.67 for women (using male default)
func TRIMP(minutes, avgHR float64, zones HRZones) float64 {
	if avgHR <= 0 || minutes <= 0 {
		return 0
	}

	ratio := HRReserveRatio(avgHR, zones)
	if ratio == 0 {
		return 0
	}

	// Gender coefficient (using male default)
	b := 1.92

	return minutes * ratio * math.Exp(b*ratio)
}

// HRReserveRatio returns (avgHR - resting) / (max - resting) clamped to [0, 1].
// Returns 0 when the reserve is not positive.
func HRReserveRatio(avgHR float64, zones HRZones) float64 {
	hrReserve := zones.MaxHR - zones.RestingHR
	if hrReserve <= 0 {
		return 0
	}

	ratio := (avgHR - zones.RestingHR) / hrReserve
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

// PowerTSS calculates power-based training stress.
// TSS = hours * IF^2 * 100 with IF = avgPower / FTP
func PowerTSS(duration time.Duration, avgPower, ftp float64) float64 {
	if ftp <= 0 || avgPower <= 0 || duration <= 0 {
		return 0
	}
	intensity := avgPower / ftp
	return duration.Hours() * intensity * intensity * 100
}

// DailyLoad represents training load for a single day
type DailyLoad struct {
	Date time.Time
	TSS  float64
}

// LoadState represents CTL/ATL/TSB for a day
type LoadState struct {
	Date time.Time
	CTL  float64 // Chronic Training Load (42-day average) - "Fitness"
	ATL  float64 // Acute Training Load (7-day average) - "Fatigue"
	TSB  float64 // Training Stress Balance (CTL - ATL) - "Form"
}

// CalculateFitnessTrend computes CTL/ATL/TSB for every day from start to end
// inclusive. Both averages are seeded at 0 on start; days without load count
// as zero. Loads outside the window are ignored.
func CalculateFitnessTrend(loads []DailyLoad, start, end time.Time, loc *time.Location) []LoadState {
	if loc == nil {
		loc = time.Local
	}
	startDay := day.Start(start, loc)
	endDay := day.Start(end, loc)
	if endDay.Before(startDay) {
		return nil
	}

	// Sum multiple activities on the same day
	loadMap := make(map[string]float64, len(loads))
	for _, dl := range loads {
		loadMap[day.Key(dl.Date, loc)] += dl.TSS
	}

	var states []LoadState
	var ctl, atl float64

	for d := startDay; !d.After(endDay); d = d.AddDate(0, 0, 1) {
		tss := loadMap[day.Key(d, loc)] // 0 if no activity

		ctl += (tss - ctl) / CTLTimeConstant
		atl += (tss - atl) / ATLTimeConstant

		states = append(states, LoadState{
			Date: d,
			CTL:  ctl,
			ATL:  atl,
			TSB:  ctl - atl,
		})
	}

	return states
}

// FormDescription returns a human-readable description of TSB
func FormDescription(tsb float64) string {
	switch {
	case tsb > 25:
		return "Very fresh (possibly detrained)"
	case tsb > 10:
		return "Fresh and ready to race"
	case tsb > 0:
		return "Neutral - good for training"
	case tsb > -10:
		return "Slightly fatigued"
	case tsb > -25:
		return "Tired but building fitness"
	default:
		return "Very fatigued - rest needed"
	}
}
