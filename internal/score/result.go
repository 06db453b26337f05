// Package score holds the pure Sleep, Recovery and Strain calculators and
// the result model they share.
package score

import (
	"math"
	"time"
)

// Type names a score
type Type string

const (
	Sleep    Type = "sleep"
	Recovery Type = "recovery"
	Strain   Type = "strain"
)

// Types lists every score type in dependency order
var Types = []Type{Sleep, Recovery, Strain}

// Valid reports whether t is a known score type
func (t Type) Valid() bool {
	return t == Sleep || t == Recovery || t == Strain
}

// Confidence labels how complete the inputs were
type Confidence string

const (
	ConfidenceFull        Confidence = "full"
	ConfidenceReduced     Confidence = "reduced"
	ConfidencePlaceholder Confidence = "placeholder"
)

// Fidelity labels where a result came from
type Fidelity string

const (
	Fresh         Fidelity = "fresh"
	Reconstructed Fidelity = "reconstructed" // promoted from durable storage
	Stale         Fidelity = "stale"         // degraded fallback past its day or TTL
)

// BandLimitedData is the band of every placeholder
const BandLimitedData = "limited_data"

// SubScore is one weighted component of a score
type SubScore struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Max       float64 `json:"max"`
	Weight    float64 `json:"weight"` // renormalized, or the share of strain load; 0 when unavailable
	Available bool    `json:"available"`
}

// Result is a computed score
type Result struct {
	Type             Type               `json:"type"`
	Day              string             `json:"day"`
	Score            float64            `json:"score"`
	Band             string             `json:"band"`
	SubScores        []SubScore         `json:"sub_scores"`
	Inputs           map[string]float64 `json:"inputs,omitempty"`
	ComputedAt       time.Time          `json:"computed_at"`
	StartedAt        time.Time          `json:"started_at"`
	IsPersonalized   bool               `json:"is_personalized"`
	Confidence       Confidence         `json:"confidence"`
	Placeholder      bool               `json:"placeholder"`
	Fidelity         Fidelity           `json:"fidelity"`
	AlgorithmVersion int                `json:"algorithm_version"`
	Excluded         []string           `json:"excluded,omitempty"`
}

// IsDegenerate detects the reconstruction signature: every available
// sub-score equals a non-zero overall score. Such a result is not a
// trustworthy computation.
func (r Result) IsDegenerate() bool {
	if r.Score == 0 {
		return false
	}
	available := 0
	for _, s := range r.SubScores {
		if !s.Available {
			continue
		}
		available++
		if math.Abs(s.Value-r.Score) > 1e-9 {
			return false
		}
	}
	return available >= 2
}

// Trustworthy reports whether r may satisfy the daily throttle
func (r Result) Trustworthy() bool {
	return !r.Placeholder && !r.IsDegenerate()
}

// SubScore returns the named sub-score
func (r Result) SubScore(name string) (SubScore, bool) {
	for _, s := range r.SubScores {
		if s.Name == name {
			return s, true
		}
	}
	return SubScore{}, false
}

// Placeholder returns the flagged limited-data result for a type and day
func Placeholder(t Type, day string, at time.Time, version int, personalized bool) Result {
	return Result{
		Type:             t,
		Day:              day,
		Score:            0,
		Band:             BandLimitedData,
		ComputedAt:       at,
		StartedAt:        at,
		IsPersonalized:   personalized,
		Confidence:       ConfidencePlaceholder,
		Placeholder:      true,
		Fidelity:         Fresh,
		AlgorithmVersion: version,
	}
}
