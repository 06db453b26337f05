package score

import (
	"math"
	"time"

	"readiness/internal/analysis"
	"readiness/internal/wellness"
)

// Recovery sub-score names
const (
	SubRecoveryHRV         = "hrv"
	SubRecoveryRestingHR   = "resting_hr"
	SubRecoverySleep       = "sleep"
	SubRecoveryForm        = "form"
	SubRecoveryRespiratory = "respiratory"
)

// RecoveryInput is the bundle for one day's recovery score
type RecoveryInput struct {
	Day          string
	At           time.Time
	Sample       *wellness.DailySample
	Baseline     wellness.Baseline
	Sleep        *Result             // same-day sleep result, nil when unresolved
	Load         *analysis.LoadState // previous day's training load
	Personalized bool
}

// RecoveryBand classifies a recovery score
func RecoveryBand(score float64) string {
	switch {
	case score >= 85:
		return "peak"
	case score >= 70:
		return "high"
	case score >= 50:
		return "moderate"
	default:
		return "low"
	}
}

// Recovery scores one day. A missing sleep result excludes its sub-score and
// lowers confidence; without any physiological input the result is a
// placeholder.
func (c *Calculator) Recovery(in RecoveryInput) Result {
	r := Result{
		Type:           Recovery,
		Day:            in.Day,
		ComputedAt:     in.At,
		StartedAt:      in.At,
		IsPersonalized: in.Personalized,
		Inputs:         map[string]float64{},
	}
	w := c.recovery
	s := in.Sample
	if s == nil {
		s = &wellness.DailySample{}
	}

	hrv := component{name: SubRecoveryHRV, max: 100, weight: w.HRV}
	if s.HRV != nil && in.Baseline.HRV != nil && *in.Baseline.HRV > 0 {
		ratio := *s.HRV / *in.Baseline.HRV
		r.Inputs["hrv"] = *s.HRV
		r.Inputs["hrv_baseline"] = *in.Baseline.HRV
		hrv.available = true
		hrv.value = 70 + 150*(ratio-1)
	}

	rhr := component{name: SubRecoveryRestingHR, max: 100, weight: w.RestingHR}
	if s.RestingHR != nil && in.Baseline.RestingHR != nil && *in.Baseline.RestingHR > 0 {
		delta := (*s.RestingHR - *in.Baseline.RestingHR) / *in.Baseline.RestingHR
		r.Inputs["resting_hr"] = *s.RestingHR
		r.Inputs["resting_hr_baseline"] = *in.Baseline.RestingHR
		rhr.available = true
		rhr.value = 70 - 300*delta
	}

	sleep := component{name: SubRecoverySleep, max: 100, weight: w.Sleep}
	if in.Sleep != nil && !in.Sleep.Placeholder {
		r.Inputs["sleep_score"] = in.Sleep.Score
		sleep.available = true
		sleep.value = in.Sleep.Score
	}

	resp := component{name: SubRecoveryRespiratory, max: 100, weight: w.Respiratory}
	if s.RespiratoryRate != nil && in.Baseline.RespiratoryRate != nil && *in.Baseline.RespiratoryRate > 0 {
		delta := (*s.RespiratoryRate - *in.Baseline.RespiratoryRate) / *in.Baseline.RespiratoryRate
		r.Inputs["respiratory_rate"] = *s.RespiratoryRate
		r.Inputs["respiratory_rate_baseline"] = *in.Baseline.RespiratoryRate
		resp.available = true
		resp.value = 100 - 500*math.Abs(delta)
	}

	if !hrv.available && !rhr.available && !sleep.available && !resp.available {
		// Training load alone says nothing about overnight recovery
		return c.finish(r, nil, RecoveryBand)
	}

	form := component{name: SubRecoveryForm, max: 100, weight: w.Form}
	if in.Load != nil {
		r.Inputs["tsb"] = in.Load.TSB
		form.available = true
		form.value = 60 + 2*in.Load.TSB
	}

	return c.finish(r, []component{hrv, rhr, sleep, form, resp}, RecoveryBand)
}
