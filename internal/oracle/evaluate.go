package oracle

import (
	"context"
	"fmt"
	"strconv"

	"github.com/roach88/riskledger/internal/contract"
	"github.com/roach88/riskledger/internal/domain"
	"github.com/roach88/riskledger/internal/ledger"
	"github.com/roach88/riskledger/internal/sim"
	"github.com/roach88/riskledger/internal/tokens"
)

// EvaluationReason is the reason recorded on evaluation token charges.
const EvaluationReason = "risk_evaluation"

// pendingSnapshot stands in for the snapshot ID while a request is
// validated, before any snapshot has been resolved.
const pendingSnapshot = "pending"

// Request is one orchestrated risk evaluation.
type Request struct {
	EventKey    string             `json:"event_key" yaml:"event_key"`
	RiskProfile domain.RiskProfile `json:"risk_profile" yaml:"risk_profile"`
	Stake       float64            `json:"stake" yaml:"stake"`
	Features    sim.Features       `json:"features" yaml:"features"`

	// SnapshotType defaults to PREMATCH.
	SnapshotType domain.SnapshotType `json:"snapshot_type,omitempty" yaml:"snapshot_type,omitempty"`

	// SnapshotData is the market state the evaluation runs against. When
	// nil on an event that already has a snapshot, the latest one is used.
	SnapshotData map[string]any `json:"snapshot_data,omitempty" yaml:"snapshot_data,omitempty"`

	Seed int64 `json:"seed" yaml:"seed"`

	// NSims forces a single pass. Zero selects the adaptive policy.
	NSims int `json:"n_sims,omitempty" yaml:"n_sims,omitempty"`

	// Cost is charged in tokens before simulating. Zero charges nothing.
	Cost int64 `json:"cost,omitempty" yaml:"cost,omitempty"`

	Actor string `json:"actor,omitempty" yaml:"actor,omitempty"`
}

func (r Request) scenario(snapshotID string, data map[string]any) sim.Scenario {
	return sim.Scenario{
		EventKey:     r.EventKey,
		RiskProfile:  r.RiskProfile,
		Stake:        r.Stake,
		Features:     r.Features,
		SnapshotID:   snapshotID,
		SnapshotData: data,
		Seed:         r.Seed,
		NSims:        r.NSims,
	}
}

// Validate checks every request field before anything is written.
func (r Request) Validate() error {
	if err := r.scenario(pendingSnapshot, r.SnapshotData).Validate(); err != nil {
		return err
	}
	if r.SnapshotType != "" && !r.SnapshotType.Valid() {
		return domain.NewInvalidInput(fmt.Sprintf("unknown snapshot type %q", r.SnapshotType))
	}
	if r.Cost < 0 {
		return domain.NewInvalidInput(fmt.Sprintf("cost must not be negative, got %d", r.Cost))
	}
	if r.Seed > sim.MaxSafeSeed || r.Seed < -sim.MaxSafeSeed {
		return domain.NewInvalidInput(fmt.Sprintf("seed %d outside signable range", r.Seed))
	}
	return nil
}

// Evaluate runs one risk evaluation end to end:
//
//  1. set the event's profile (immutable once set)
//  2. advance the lifecycle, recording a snapshot on the way to SNAPSHOT_TAKEN
//  3. charge req.Cost tokens, if any
//  4. simulate and validate the result against its contract
//  5. move to SIMULATED and record SIMULATION_RUN
//
// Any error aborts the evaluation. Entries already written stay in the
// ledger as evidence of the attempt.
func (o *Oracle) Evaluate(ctx context.Context, req Request) (contract.RiskEvaluationResult, error) {
	res, err := o.evaluate(ctx, req)
	if err != nil {
		outcome := string(domain.KindOf(err))
		if outcome == "" {
			outcome = "ERROR"
		}
		o.metrics.ObserveEvaluation(outcome)
		o.logger.Warn("evaluation failed", "event_key", req.EventKey, "error", err)
		return contract.RiskEvaluationResult{}, err
	}

	o.metrics.ObserveEvaluation(string(res.Zone))
	o.logger.Info("evaluation complete",
		"event_key", req.EventKey,
		"zone", res.Zone,
		"pls", res.PLS,
		"n_sims", res.NSims,
		"signature", res.DeterminismSignature,
	)
	return res, nil
}

func (o *Oracle) evaluate(ctx context.Context, req Request) (contract.RiskEvaluationResult, error) {
	var none contract.RiskEvaluationResult
	if req.SnapshotType == "" {
		req.SnapshotType = domain.SnapshotPrematch
	}
	if err := req.Validate(); err != nil {
		return none, err
	}

	if _, err := o.Profiles.SetProfile(ctx, req.EventKey, req.RiskProfile, req.Actor); err != nil {
		return none, err
	}

	// Concurrent evaluations of one key may race through these steps; Advance
	// decides under the writer lock and leaves a key already past the step alone.
	state, err := o.Lifecycle.Advance(ctx, req.EventKey, domain.StateProfileSet, req.Actor)
	if err != nil {
		return none, err
	}
	if state == domain.StateLocked {
		return none, o.rejectLocked(ctx, req)
	}

	snapID, data, err := o.resolveSnapshot(ctx, req, state)
	if err != nil {
		return none, err
	}
	state, err = o.Lifecycle.Advance(ctx, req.EventKey, domain.StateSnapshotTaken, req.Actor)
	if err != nil {
		return none, err
	}
	if state == domain.StateLocked {
		return none, o.rejectLocked(ctx, req)
	}

	if req.Cost > 0 {
		_, err := o.Tokens.Spend(ctx, tokens.SpendRequest{
			Amount:   req.Cost,
			Reason:   EvaluationReason,
			EventKey: req.EventKey,
			Actor:    req.Actor,
			Metadata: map[string]string{
				"risk_profile": string(req.RiskProfile),
				"seed":         strconv.FormatInt(req.Seed, 10),
			},
		})
		if err != nil {
			return none, err
		}
	}

	res, err := sim.Evaluate(req.scenario(snapID, data))
	if err != nil {
		return none, err
	}
	o.metrics.ObserveSimulation(string(res.Zone), res.NSims)

	if err := o.Lifecycle.TransitionTo(ctx, req.EventKey, domain.StateSimulated, req.Actor); err != nil {
		return none, err
	}

	_, err = o.Ledger.Append(ctx, ledger.Record{
		EventKey:   req.EventKey,
		SnapshotID: snapID,
		Actor:      req.Actor,
		Payload: ledger.SimulationRun{
			RiskProfile: req.RiskProfile,
			Stake:       req.Stake,
			Seed:        req.Seed,
			Features:    req.Features,
			Result:      res,
		},
	})
	if err != nil {
		return none, err
	}
	return res, nil
}

// rejectLocked logs the refused move to SIMULATED and returns its
// INVALID_TRANSITION error.
func (o *Oracle) rejectLocked(ctx context.Context, req Request) error {
	return o.Lifecycle.TransitionTo(ctx, req.EventKey, domain.StateSimulated, req.Actor)
}

// resolveSnapshot returns the snapshot the evaluation runs against. New
// data is always recorded; otherwise an event past PROFILE_SET reuses its
// latest snapshot, and an event at PROFILE_SET records an empty one.
func (o *Oracle) resolveSnapshot(ctx context.Context, req Request, state domain.State) (string, map[string]any, error) {
	if req.SnapshotData == nil && state != domain.StateProfileSet {
		latest, ok, err := o.Snapshots.Latest(ctx, req.EventKey, "")
		if err != nil {
			return "", nil, err
		}
		if ok {
			return latest.SnapshotID, latest.Data, nil
		}
	}

	data := req.SnapshotData
	if data == nil {
		data = map[string]any{}
	}
	id, _, err := o.Snapshots.Record(ctx, req.EventKey, req.SnapshotType, data, req.Actor)
	if err != nil {
		return "", nil, err
	}
	return id, data, nil
}
