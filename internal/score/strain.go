package score

import (
	"math"
	"strings"
	"time"

	"readiness/internal/activity"
	"readiness/internal/analysis"
	"readiness/internal/athlete"
	"readiness/internal/wellness"
)

// Strain sub-score names
const (
	SubStrainCardio      = "cardio"
	SubStrainStrength    = "strength"
	SubStrainNonExercise = "non_exercise"
)

// MaxStrain is the top of the strain scale
const MaxStrain = 18.0

// Saturation constants: the load of each kind that alone reaches ~63% of
// MaxStrain. Loads are summed in these units and saturated once.
const (
	cardioSaturation      = 150.0
	strengthSaturation    = 400.0
	nonExerciseSaturation = 600.0

	defaultRPE = 6.0

	// kcal per minute per kg at 1 MET
	kcalPerMETMinuteKg = 0.0175

	// a brisk walk: ~100 steps per minute at ~3 MET
	metMinutesPer100Steps = 3.0

	maxRecoveryDamping = 0.15
)

// StrainInput is the bundle for one day's strain score
type StrainInput struct {
	Day             string
	At              time.Time
	Activities      []activity.Unified // the day's unified activities
	ActivitiesKnown bool               // false when workout history is unavailable
	Sample          *wellness.DailySample
	Profile         athlete.Profile
	Recovery        *Result
	Personalized    bool
}

// StrainBand classifies a strain score
func StrainBand(score float64) string {
	switch {
	case score < 6:
		return "light"
	case score < 11:
		return "moderate"
	case score < 16:
		return "hard"
	default:
		return "very_hard"
	}
}

// IsStrengthType reports whether an activity type is resistance training
func IsStrengthType(activityType string) bool {
	switch strings.ToLower(activityType) {
	case "weighttraining", "strengthtraining", "traditionalstrengthtraining",
		"functionalstrengthtraining", "crossfit", "workout_strength":
		return true
	}
	return false
}

// saturate maps a load onto the strain scale
func saturate(load, k float64) float64 {
	if load <= 0 {
		return 0
	}
	return MaxStrain * (1 - math.Exp(-load/k))
}

// RecoveryMultiplier dampens attributed strain on well-recovered days.
// Returns a value in [0.85, 1].
func RecoveryMultiplier(recovery float64) float64 {
	return 1 - maxRecoveryDamping*clamp((recovery-50)/50, 0, 1)
}

// strengthVolumeFactor scales long sessions up
func strengthVolumeFactor(minutes float64) float64 {
	switch {
	case minutes > 75:
		return 1.3
	case minutes > 45:
		return 1.15
	default:
		return 1.0
	}
}

// Strain scores one day's exertion on the 0-18 scale
func (c *Calculator) Strain(in StrainInput) Result {
	r := Result{
		Type:           Strain,
		Day:            in.Day,
		ComputedAt:     in.At,
		StartedAt:      in.At,
		IsPersonalized: in.Personalized,
		Inputs:         map[string]float64{},
	}

	multiplier := 1.0
	if in.Recovery != nil && !in.Recovery.Placeholder {
		multiplier = RecoveryMultiplier(in.Recovery.Score)
		r.Inputs["recovery_score"] = in.Recovery.Score
	}
	r.Inputs["recovery_multiplier"] = multiplier

	cardio := load{name: SubStrainCardio, max: MaxStrain}
	strength := load{name: SubStrainStrength, max: MaxStrain}
	if in.ActivitiesKnown {
		cardioLoad, strengthLoad := c.exerciseLoads(in.Activities, in.Profile)
		r.Inputs["cardio_load"] = cardioLoad
		r.Inputs["strength_load"] = strengthLoad
		r.Inputs["activities"] = float64(len(in.Activities))
		cardio.available = true
		cardio.value = cardioLoad / cardioSaturation
		strength.available = true
		strength.value = strengthLoad / strengthSaturation
	}

	nonExercise := load{name: SubStrainNonExercise, max: MaxStrain}
	if metMinutes, ok := nonExerciseLoad(in.Sample, in.Profile); ok {
		r.Inputs["met_minutes"] = metMinutes
		nonExercise.available = true
		nonExercise.value = metMinutes / nonExerciseSaturation
	}

	subs, total, excluded, ok := accumulate([]load{cardio, strength, nonExercise}, func(sum float64) float64 {
		return saturate(sum, 1) * multiplier
	})
	return c.complete(r, subs, total, excluded, ok, StrainBand)
}

// exerciseLoads splits activities into cardio load (power TSS, else HR
// TRIMP, else unified TSS) and strength load (RPE x minutes x volume)
func (c *Calculator) exerciseLoads(activities []activity.Unified, p athlete.Profile) (cardio, strength float64) {
	zones := analysis.HRZones{RestingHR: p.RestingHR, MaxHR: p.MaxHR}
	for _, a := range activities {
		minutes := math.Max(a.Minutes(), 0)
		if IsStrengthType(a.Type) {
			rpe := defaultRPE
			if a.RPE != nil && *a.RPE > 0 {
				rpe = *a.RPE
			}
			strength += rpe * minutes * strengthVolumeFactor(minutes)
			continue
		}

		switch {
		case a.AvgPower != nil && *a.AvgPower > 0 && p.FTP > 0:
			cardio += analysis.PowerTSS(a.Duration, *a.AvgPower, p.FTP)
		case a.AvgHR != nil && *a.AvgHR > 0 && p.HRReserve() > 0:
			cardio += analysis.TRIMP(minutes, *a.AvgHR, zones)
		default:
			cardio += a.TSS
		}
	}
	return cardio, strength
}

// nonExerciseLoad returns daily MET-minutes from active energy, else steps
func nonExerciseLoad(s *wellness.DailySample, p athlete.Profile) (float64, bool) {
	if s == nil {
		return 0, false
	}
	if s.ActiveEnergyKcal != nil && p.BodyMassKg > 0 {
		return math.Max(*s.ActiveEnergyKcal, 0) / (kcalPerMETMinuteKg * p.BodyMassKg), true
	}
	if s.Steps != nil {
		return math.Max(float64(*s.Steps), 0) / 100 * metMinutesPer100Steps, true
	}
	return 0, false
}
