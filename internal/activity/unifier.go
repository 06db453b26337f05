package activity

import (
	"math"
	"sort"
	"time"

	"readiness/internal/analysis"
	"readiness/internal/athlete"
	"readiness/internal/config"
	"readiness/internal/day"
)

// Unifier deduplicates activities and assigns TSS
type Unifier struct {
	startTolerance        time.Duration
	durationTolerance     float64
	estimatedTSSPerMinute float64
}

// NewUnifier creates a unifier from config
func NewUnifier(cfg config.UnifierConfig) *Unifier {
	return &Unifier{
		startTolerance:        cfg.StartTolerance,
		durationTolerance:     cfg.DurationTolerance,
		estimatedTSSPerMinute: cfg.EstimatedTSSPerMinute,
	}
}

// Matches reports whether a and b describe the same workout. Explicit
// linkage is checked before the time/duration heuristic.
func (u *Unifier) Matches(a, b Raw) bool {
	if a.Ref() == b.Ref() {
		return true
	}
	if a.linksTo(b.Ref()) || b.linksTo(a.Ref()) {
		return true
	}
	for _, l := range a.Links {
		if b.linksTo(l) {
			return true
		}
	}

	gap := a.StartTime.Sub(b.StartTime)
	if gap < 0 {
		gap = -gap
	}
	if gap > u.startTolerance {
		return false
	}
	return durationsClose(a.Duration, b.Duration, u.durationTolerance)
}

func durationsClose(a, b time.Duration, tolerance float64) bool {
	longer := math.Max(float64(a), float64(b))
	if longer == 0 {
		return true
	}
	return math.Abs(float64(a-b))/longer <= tolerance
}

type cluster struct {
	rep     Raw
	members []Ref
}

// Deduplicate merges matching activities until no two outputs match. Output
// is sorted by start time.
func (u *Unifier) Deduplicate(raws []Raw) []Raw {
	clusters := u.cluster(raws)
	out := make([]Raw, len(clusters))
	for i, c := range clusters {
		out[i] = c.rep
	}
	return out
}

func (u *Unifier) cluster(raws []Raw) []cluster {
	clusters := make([]cluster, 0, len(raws))
	for _, r := range raws {
		clusters = append(clusters, cluster{rep: r, members: []Ref{r.Ref()}})
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].rep.StartTime.Before(clusters[j].rep.StartTime)
	})

	// Merging changes a representative's links and fields, so repeat until stable
	for merged := true; merged; {
		merged = false
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				if !u.Matches(clusters[i].rep, clusters[j].rep) {
					continue
				}
				clusters[i] = mergeClusters(clusters[i], clusters[j])
				clusters = append(clusters[:j], clusters[j+1:]...)
				merged = true
				j--
			}
		}
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].rep.StartTime.Before(clusters[j].rep.StartTime)
	})
	return clusters
}

// richness ranks how much load information an activity carries
func richness(r Raw) int {
	switch {
	case r.ProviderTSS != nil && *r.ProviderTSS > 0:
		return 2
	case r.AvgHR != nil && *r.AvgHR > 0:
		return 1
	default:
		return 0
	}
}

func mergeClusters(a, b cluster) cluster {
	rich, other := a.rep, b.rep
	if richness(other) > richness(rich) {
		rich, other = other, rich
	}

	merged := rich
	merged.Links = nil
	if merged.AvgHR == nil {
		merged.AvgHR = other.AvgHR
	}
	if merged.AvgPower == nil {
		merged.AvgPower = other.AvgPower
	}
	if merged.ProviderTSS == nil {
		merged.ProviderTSS = other.ProviderTSS
	}
	if merged.RPE == nil {
		merged.RPE = other.RPE
	}
	if merged.Type == "" {
		merged.Type = other.Type
	}
	if merged.Name == "" {
		merged.Name = other.Name
	}

	members := append(append([]Ref{}, a.members...), b.members...)
	seen := map[Ref]bool{merged.Ref(): true}
	for _, ref := range members {
		if !seen[ref] {
			seen[ref] = true
			merged.Links = append(merged.Links, ref)
		}
	}
	for _, l := range append(append([]Ref{}, rich.Links...), other.Links...) {
		if !seen[l] {
			seen[l] = true
			merged.Links = append(merged.Links, l)
		}
	}

	return cluster{rep: merged, members: members}
}

// AssignTSS returns the load and its provenance using the first applicable
// tier: provider value, heart-rate reserve, then a fixed intensity constant.
func (u *Unifier) AssignTSS(r Raw, profile athlete.Profile) (float64, Provenance) {
	if r.ProviderTSS != nil && *r.ProviderTSS > 0 {
		return *r.ProviderTSS, Measured
	}

	minutes := math.Max(r.Minutes(), 0)
	if r.AvgHR != nil && *r.AvgHR > 0 && profile.HRReserve() > 0 {
		zones := analysis.HRZones{RestingHR: profile.RestingHR, MaxHR: profile.MaxHR}
		return minutes * analysis.HRReserveRatio(*r.AvgHR, zones), HRDerived
	}

	return minutes * u.estimatedTSSPerMinute, Estimated
}

// Unify deduplicates raws and tags each result with TSS
func (u *Unifier) Unify(raws []Raw, profile athlete.Profile) []Unified {
	clusters := u.cluster(raws)
	out := make([]Unified, 0, len(clusters))
	for _, c := range clusters {
		tss, prov := u.AssignTSS(c.rep, profile)
		out = append(out, Unified{
			Raw:        c.rep,
			TSS:        tss,
			Provenance: prov,
			MergedFrom: c.members,
		})
	}
	return out
}

// DailyLoads sums TSS per calendar day in loc
func DailyLoads(unified []Unified, loc *time.Location) []analysis.DailyLoad {
	totals := make(map[string]float64)
	var keys []string
	for _, a := range unified {
		k := day.Key(a.StartTime, loc)
		if _, ok := totals[k]; !ok {
			keys = append(keys, k)
		}
		totals[k] += a.TSS
	}
	sort.Strings(keys)

	loads := make([]analysis.DailyLoad, 0, len(keys))
	for _, k := range keys {
		d, err := day.Parse(k, loc)
		if err != nil {
			continue
		}
		loads = append(loads, analysis.DailyLoad{Date: d, TSS: totals[k]})
	}
	return loads
}

// ForDay returns the activities starting on the given day key
func ForDay(unified []Unified, key string, loc *time.Location) []Unified {
	var out []Unified
	for _, a := range unified {
		if day.Key(a.StartTime, loc) == key {
			out = append(out, a)
		}
	}
	return out
}
