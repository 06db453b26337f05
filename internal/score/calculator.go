package score

import (
	"time"

	"readiness/internal/config"
)

// Calculator computes scores from input bundles. It holds only
// configuration, so identical bundles give identical results.
type Calculator struct {
	version  int
	loc      *time.Location
	recovery config.RecoveryWeights
}

// NewCalculator creates a calculator
func NewCalculator(version int, weights config.RecoveryWeights, loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.Local
	}
	return &Calculator{version: version, loc: loc, recovery: weights}
}

// Version returns the algorithm version stamped on results
func (c *Calculator) Version() int {
	return c.version
}

func (c *Calculator) finish(r Result, components []component, band func(float64) string) Result {
	subs, total, excluded, ok := blend(components)
	return c.complete(r, subs, total, excluded, ok, band)
}

func (c *Calculator) complete(r Result, subs []SubScore, total float64, excluded []string, ok bool, band func(float64) string) Result {
	if !ok {
		p := Placeholder(r.Type, r.Day, r.ComputedAt, c.version, r.IsPersonalized)
		p.Inputs = r.Inputs
		return p
	}
	r.SubScores = subs
	r.Score = total
	r.Band = band(total)
	r.Excluded = excluded
	r.Confidence = ConfidenceFull
	if len(excluded) > 0 {
		r.Confidence = ConfidenceReduced
	}
	r.Fidelity = Fresh
	r.AlgorithmVersion = c.version
	return r
}
