// Package activity merges per-source workout lists into one deduplicated,
// TSS-tagged stream.
package activity

import (
	"context"
	"time"
)

// Provenance records which TSS tier produced an activity's load
type Provenance string

const (
	Measured  Provenance = "measured"
	HRDerived Provenance = "hr-derived"
	Estimated Provenance = "estimated"
)

// Confidence returns the weight consumers may apply to the load
func (p Provenance) Confidence() float64 {
	switch p {
	case Measured:
		return 1.0
	case HRDerived:
		return 0.8
	default:
		return 0.5
	}
}

// ExternalSource namespaces device upload IDs shared by several platforms.
// Two activities linking the same external ID are the same workout.
const ExternalSource = "external"

// Ref identifies an activity within its source
type Ref struct {
	Source string `json:"source"`
	ID     string `json:"id"`
}

// Raw is an activity as reported by one source. Immutable once ingested.
type Raw struct {
	ID          string
	Source      string
	StartTime   time.Time
	Duration    time.Duration
	Type        string
	Name        string
	AvgHR       *float64
	AvgPower    *float64
	ProviderTSS *float64
	RPE         *float64
	Links       []Ref // same workout in other sources
}

// Ref returns the activity's own reference
func (r Raw) Ref() Ref {
	return Ref{Source: r.Source, ID: r.ID}
}

// Minutes returns the duration in minutes
func (r Raw) Minutes() float64 {
	return r.Duration.Minutes()
}

func (r Raw) linksTo(ref Ref) bool {
	for _, l := range r.Links {
		if l == ref {
			return true
		}
	}
	return false
}

// Unified is a deduplicated activity annotated with TSS
type Unified struct {
	Raw
	TSS        float64
	Provenance Provenance
	MergedFrom []Ref
}

// Source is an activity provider adapter
type Source interface {
	Name() string
	FetchActivities(ctx context.Context, daysBack int) ([]Raw, error)
	IsAuthorized(ctx context.Context) bool
}
