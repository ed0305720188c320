// Package sim is the deterministic Monte Carlo risk engine.
//
// Every run owns a local random source seeded from the caller's seed, so
// concurrent simulations never perturb each other and identical inputs
// always reproduce identical outcome sequences.
//
// The pieces compose as:
//
//	Run           features + seed -> outcomes in [-1, 1]
//	PLS           outcomes -> probability of large loss
//	ClassifyZone  PLS + profile -> GREEN | YELLOW | RED
//	RunPass       one Run at a fixed trial count, scored
//	RunAdaptive   1,000-trial pass, re-run at 10,000 unless GREEN
//	Evaluate      the full signed contract.RiskEvaluationResult
package sim
