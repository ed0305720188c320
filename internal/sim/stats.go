package sim

import (
	"fmt"
	"math"
	"sort"

	"github.com/roach88/riskledger/internal/domain"
)

// LargeLossThreshold is the outcome at or below which a trial counts as a
// large loss (30% of stake).
const LargeLossThreshold = -0.30

// ZoneThresholds are the two PLS cut points of a profile. PLS below Green is
// GREEN, below Yellow is YELLOW, anything else RED.
type ZoneThresholds struct {
	Green  float64
	Yellow float64
}

var zoneThresholds = map[domain.RiskProfile]ZoneThresholds{
	domain.ProfileConservative: {Green: 0.08, Yellow: 0.15},
	domain.ProfileNeutral:      {Green: 0.10, Yellow: 0.20},
	domain.ProfileRisky:        {Green: 0.15, Yellow: 0.30},
}

// ThresholdsFor returns the zone thresholds of a profile.
func ThresholdsFor(profile domain.RiskProfile) (ZoneThresholds, bool) {
	t, ok := zoneThresholds[profile]
	return t, ok
}

// PLS returns the fraction of outcomes at or below LargeLossThreshold.
// An empty slice has PLS 0.
func PLS(outcomes []float64) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	large := 0
	for _, o := range outcomes {
		if o <= LargeLossThreshold {
			large++
		}
	}
	return float64(large) / float64(len(outcomes))
}

// ClassifyZone maps a PLS onto a zone using the profile's thresholds.
func ClassifyZone(pls float64, profile domain.RiskProfile) (domain.Zone, error) {
	t, ok := zoneThresholds[profile]
	if !ok {
		return "", domain.NewInvalidInput(fmt.Sprintf("unknown risk profile %q", profile))
	}
	switch {
	case pls < t.Green:
		return domain.ZoneGreen, nil
	case pls < t.Yellow:
		return domain.ZoneYellow, nil
	default:
		return domain.ZoneRed, nil
	}
}

// Fragility is the population standard deviation of the negative outcomes,
// or 0 when there are none.
func Fragility(outcomes []float64) float64 {
	var tail []float64
	for _, o := range outcomes {
		if o < 0 {
			tail = append(tail, o)
		}
	}
	if len(tail) == 0 {
		return 0
	}

	var sum float64
	for _, o := range tail {
		sum += o
	}
	mean := sum / float64(len(tail))

	var sq float64
	for _, o := range tail {
		d := o - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(tail)))
}

// Percentile returns the q-th percentile (0-100) of values, interpolating
// linearly between the two closest ranks. values is not modified.
func Percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return percentileSorted(sorted, q)
}

func percentileSorted(sorted []float64, q float64) float64 {
	h := float64(len(sorted)-1) * q / 100.0
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo])
}
