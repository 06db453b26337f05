package score

import (
	"math"
	"sort"
)

type component struct {
	name      string
	value     float64
	max       float64
	weight    float64
	available bool
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// blend renormalizes the weights of available components and returns the
// weighted score. ok is false when nothing is available.
func blend(components []component) (subs []SubScore, total float64, excluded []string, ok bool) {
	var weightSum float64
	for _, c := range components {
		if c.available {
			weightSum += c.weight
		}
	}

	subs = make([]SubScore, 0, len(components))
	for _, c := range components {
		s := SubScore{Name: c.name, Max: c.max}
		if c.available && weightSum > 0 {
			s.Available = true
			s.Value = round1(clamp(c.value, 0, c.max))
			s.Weight = c.weight / weightSum
			total += s.Weight * s.Value
		} else {
			excluded = append(excluded, c.name)
		}
		subs = append(subs, s)
	}
	return subs, round1(total), excluded, weightSum > 0
}

// load is one additive strain input expressed in units of its saturation
// constant
type load struct {
	name      string
	value     float64
	max       float64
	available bool
}

// accumulate sums the available loads, saturates the sum once and splits the
// rounded total into per-load contributions that add up to it exactly. Each
// sub-score's weight is its share of the summed load.
func accumulate(loads []load, scale func(float64) float64) (subs []SubScore, total float64, excluded []string, ok bool) {
	var sum float64
	available := 0
	for _, l := range loads {
		if l.available {
			sum += math.Max(l.value, 0)
			available++
		}
	}
	if available == 0 {
		for _, l := range loads {
			subs = append(subs, SubScore{Name: l.name, Max: l.max})
			excluded = append(excluded, l.name)
		}
		return subs, 0, excluded, false
	}

	total = round1(scale(sum))
	units := int(math.Round(total * 10))

	type share struct {
		index int
		frac  float64
	}
	subs = make([]SubScore, len(loads))
	var shares []share
	assigned := 0
	for i, l := range loads {
		subs[i] = SubScore{Name: l.name, Max: l.max}
		if !l.available {
			excluded = append(excluded, l.name)
			continue
		}
		w := 1 / float64(available)
		if sum > 0 {
			w = math.Max(l.value, 0) / sum
		}
		exact := w * float64(units)
		whole := math.Floor(exact)
		subs[i].Available = true
		subs[i].Weight = w
		subs[i].Value = whole
		assigned += int(whole)
		shares = append(shares, share{index: i, frac: exact - whole})
	}

	// Largest remainder so the tenths add up to the total
	sort.SliceStable(shares, func(a, b int) bool { return shares[a].frac > shares[b].frac })
	for k := 0; k < units-assigned && k < len(shares); k++ {
		subs[shares[k].index].Value++
	}
	for i := range subs {
		subs[i].Value /= 10
	}
	return subs, total, excluded, true
}
