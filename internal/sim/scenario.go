package sim

import (
	"fmt"
	"math"

	"github.com/roach88/riskledger/internal/contract"
	"github.com/roach88/riskledger/internal/domain"
)

// Trial counts of the adaptive policy.
const (
	InitialSims   = 1_000
	PrecisionSims = 10_000
)

// Scenario is everything one risk evaluation depends on.
type Scenario struct {
	EventKey     string
	RiskProfile  domain.RiskProfile
	Stake        float64
	Features     Features
	SnapshotID   string
	SnapshotData map[string]any
	Seed         int64

	// NSims forces a single pass of exactly this many trials.
	// Zero selects the adaptive policy.
	NSims int
}

// Validate checks the scenario before any trial runs.
func (s Scenario) Validate() error {
	if s.EventKey == "" {
		return domain.NewInvalidInput("event key is required")
	}
	if !s.RiskProfile.Valid() {
		return domain.NewInvalidInput(fmt.Sprintf("unknown risk profile %q", s.RiskProfile))
	}
	if s.Stake <= 0 || math.IsNaN(s.Stake) || math.IsInf(s.Stake, 0) {
		return domain.NewInvalidInput(fmt.Sprintf("stake must be a positive finite number, got %v", s.Stake))
	}
	if s.NSims < 0 || s.NSims > MaxSims {
		return domain.NewInvalidInput(fmt.Sprintf("n_sims must be in [0, %d], got %d", MaxSims, s.NSims))
	}
	if s.SnapshotID == "" {
		return domain.NewInvalidInput("snapshot id is required")
	}
	return s.Features.Validate()
}

// Pass is one scored simulation run.
type Pass struct {
	Outcomes []float64
	PLS      float64
	Zone     domain.Zone
}

// NSims is the number of trials in the pass.
func (p Pass) NSims() int { return len(p.Outcomes) }

// RunPass runs nSims trials for the scenario and scores them.
func RunPass(s Scenario, nSims int) (Pass, error) {
	outcomes, err := Run(s.Features, nSims, s.Seed)
	if err != nil {
		return Pass{}, err
	}
	pls := PLS(outcomes)
	zone, err := ClassifyZone(pls, s.RiskProfile)
	if err != nil {
		return Pass{}, err
	}
	return Pass{Outcomes: outcomes, PLS: pls, Zone: zone}, nil
}

// RunAdaptive runs InitialSims trials and keeps that pass when it lands in
// GREEN. Otherwise it discards it and returns a PrecisionSims pass with the
// same seed.
func RunAdaptive(s Scenario) (Pass, error) {
	first, err := RunPass(s, InitialSims)
	if err != nil {
		return Pass{}, err
	}
	if first.Zone == domain.ZoneGreen {
		return first, nil
	}
	return RunPass(s, PrecisionSims)
}

// Simulate runs the forced pass when NSims is set, else the adaptive policy.
func Simulate(s Scenario) (Pass, error) {
	if s.NSims > 0 {
		return RunPass(s, s.NSims)
	}
	return RunAdaptive(s)
}

// Evaluate validates the scenario, simulates it and assembles the signed
// result. The result is checked against the contract before it is returned.
func Evaluate(s Scenario) (contract.RiskEvaluationResult, error) {
	if err := s.Validate(); err != nil {
		return contract.RiskEvaluationResult{}, err
	}

	sig, err := Signature(SignatureInput{
		Snapshot:    s.SnapshotData,
		Features:    s.Features,
		RiskProfile: s.RiskProfile,
		Stake:       s.Stake,
		Seed:        s.Seed,
	})
	if err != nil {
		return contract.RiskEvaluationResult{}, err
	}

	pass, err := Simulate(s)
	if err != nil {
		return contract.RiskEvaluationResult{}, err
	}

	res := Summarize(pass)
	res.DeterminismSignature = sig
	res.SnapshotID = s.SnapshotID

	if err := res.Validate(); err != nil {
		return contract.RiskEvaluationResult{}, err
	}
	return res, nil
}

// Summarize derives the statistical fields of a result from a pass.
// The signature and snapshot ID are left empty.
func Summarize(p Pass) contract.RiskEvaluationResult {
	return contract.RiskEvaluationResult{
		PLS:       p.PLS,
		Zone:      p.Zone,
		Fragility: Fragility(p.Outcomes),
		TailPercentiles: contract.TailPercentiles{
			P5:  Percentile(p.Outcomes, 5),
			P10: Percentile(p.Outcomes, 10),
			P25: Percentile(p.Outcomes, 25),
		},
		NSims: p.NSims(),
	}
}
