package sim

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/roach88/riskledger/internal/domain"
)

// Feature names read by the outcome model.
const (
	FeatureRatingDiff    = "rating_diff"
	FeatureHomeAdvantage = "home_advantage"
)

// DefaultHomeAdvantage is used when the features omit home_advantage.
const DefaultHomeAdvantage = 100.0

// MaxSims bounds a single run.
const MaxSims = 1_000_000

// Outcome model parameters. Gains are fractions of stake.
const (
	winMean   = 0.5
	winStdDev = 0.2

	lossMean   = -0.5
	lossStdDev = 0.3

	ratingScale = 400.0
)

// Features is a flat numeric feature vector produced by a sport-specific
// extractor.
type Features map[string]float64

// Validate rejects NaN and infinite feature values.
func (f Features) Validate() error {
	for name, v := range f {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.NewInvalidInput(fmt.Sprintf("feature %q is not finite", name))
		}
	}
	return nil
}

// WinProbability is the logistic transform of
// (rating_diff + home_advantage) / 400.
func WinProbability(f Features) float64 {
	ratingDiff := f[FeatureRatingDiff]
	homeAdvantage, ok := f[FeatureHomeAdvantage]
	if !ok {
		homeAdvantage = DefaultHomeAdvantage
	}
	logit := (ratingDiff + homeAdvantage) / ratingScale
	return 1.0 / (1.0 + math.Exp(-logit))
}

// Run simulates nSims independent trials and returns their outcomes in
// trial order. Each trial draws a win with WinProbability, then a gain from
// Normal(0.5, 0.2) on a win or Normal(-0.5, 0.3) on a loss, clipped to
// [-1, 1].
//
// The random source is local to this call.
func Run(features Features, nSims int, seed int64) ([]float64, error) {
	if nSims <= 0 || nSims > MaxSims {
		return nil, domain.NewInvalidInput(fmt.Sprintf("n_sims must be in [1, %d], got %d", MaxSims, nSims))
	}
	if err := features.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	pWin := WinProbability(features)

	outcomes := make([]float64, nSims)
	for i := range outcomes {
		var gain float64
		if rng.Float64() < pWin {
			gain = rng.NormFloat64()*winStdDev + winMean
		} else {
			gain = rng.NormFloat64()*lossStdDev + lossMean
		}
		outcomes[i] = clip(gain, -1.0, 1.0)
	}
	return outcomes, nil
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
