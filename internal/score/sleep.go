package score

import (
	"math"
	"time"

	"readiness/internal/wellness"
)

// Sleep sub-score names
const (
	SubSleepDuration     = "duration"
	SubSleepEfficiency   = "efficiency"
	SubSleepStages       = "stages"
	SubSleepDisturbances = "disturbances"
	SubSleepTiming       = "timing"
)

const (
	defaultSleepNeed = 8 * time.Hour

	// efficiency maps linearly from 0 at 65% to 100 at 95%
	efficiencyFloor   = 0.65
	efficiencyCeiling = 0.95

	// deep + REM share that scores 100
	targetRestorativeShare = 0.45

	pointsPerWakeEvent  = 10.0
	timingToleranceMins = 120.0
)

// SleepInput is the bundle for one night's score
type SleepInput struct {
	Day          string
	At           time.Time
	Sample       *wellness.DailySample
	Baseline     wellness.Baseline
	Need         time.Duration
	Personalized bool
}

// SleepBand classifies a sleep score
func SleepBand(score float64) string {
	switch {
	case score >= 85:
		return "optimal"
	case score >= 70:
		return "good"
	case score >= 60:
		return "fair"
	default:
		return "attention_needed"
	}
}

// Sleep scores one night. Without a recorded sleep session the result is a
// placeholder.
func (c *Calculator) Sleep(in SleepInput) Result {
	r := Result{
		Type:           Sleep,
		Day:            in.Day,
		ComputedAt:     in.At,
		StartedAt:      in.At,
		IsPersonalized: in.Personalized,
		Inputs:         map[string]float64{},
	}
	s := in.Sample
	if s == nil || !s.HasSleep() {
		return c.finish(r, nil, SleepBand)
	}

	need := in.Need
	if need <= 0 {
		need = defaultSleepNeed
	}
	slept := *s.SleepDuration
	r.Inputs["sleep_minutes"] = slept.Minutes()
	r.Inputs["need_minutes"] = need.Minutes()

	duration := component{name: SubSleepDuration, max: 100, weight: 0.30, available: true,
		value: 100 * math.Min(slept.Minutes()/need.Minutes(), 1)}

	efficiency := component{name: SubSleepEfficiency, max: 100, weight: 0.20}
	if s.TimeInBed != nil && *s.TimeInBed > 0 {
		eff := math.Min(slept.Minutes()/s.TimeInBed.Minutes(), 1)
		r.Inputs["efficiency"] = eff
		efficiency.available = true
		efficiency.value = 100 * (eff - efficiencyFloor) / (efficiencyCeiling - efficiencyFloor)
	}

	stages := component{name: SubSleepStages, max: 100, weight: 0.20}
	if s.Deep != nil && s.REM != nil {
		share := (s.Deep.Minutes() + s.REM.Minutes()) / slept.Minutes()
		r.Inputs["restorative_share"] = share
		stages.available = true
		stages.value = 100 * share / targetRestorativeShare
	}

	disturbances := component{name: SubSleepDisturbances, max: 100, weight: 0.15}
	if s.WakeEvents != nil {
		r.Inputs["wake_events"] = float64(*s.WakeEvents)
		disturbances.available = true
		disturbances.value = 100 - pointsPerWakeEvent*float64(*s.WakeEvents)
	}

	timing := component{name: SubSleepTiming, max: 100, weight: 0.15}
	if dev, ok := c.timingDeviation(s, in.Baseline); ok {
		r.Inputs["timing_deviation_minutes"] = dev
		timing.available = true
		timing.value = 100 * (1 - dev/timingToleranceMins)
	}

	return c.finish(r, []component{duration, efficiency, stages, disturbances, timing}, SleepBand)
}

// timingDeviation averages how far bed and wake clocks moved from baseline
func (c *Calculator) timingDeviation(s *wellness.DailySample, b wellness.Baseline) (float64, bool) {
	var sum float64
	var n int
	if s.BedTime != nil && b.BedClock != nil {
		sum += math.Abs(wellness.BedClock(*s.BedTime, c.loc) - *b.BedClock)
		n++
	}
	if s.WakeTime != nil && b.WakeClock != nil {
		sum += math.Abs(wellness.WakeClock(*s.WakeTime, c.loc) - *b.WakeClock)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
