package oracle

import (
	"context"
	"sync"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/riskledger/internal/contract"
	"github.com/roach88/riskledger/internal/domain"
	"github.com/roach88/riskledger/internal/ledger"
	"github.com/roach88/riskledger/internal/tokens"
)

func TestEvaluate_RepeatIsDeterministic(t *testing.T) {
	o, metrics := openTestOracle(t)
	ctx := context.Background()

	first, err := o.Evaluate(ctx, ekey1Request())
	require.NoError(t, err)
	second, err := o.Evaluate(ctx, ekey1Request())
	require.NoError(t, err)

	assert.Equal(t, first.DeterminismSignature, second.DeterminismSignature)
	assert.Equal(t, first.PLS, second.PLS)
	assert.Equal(t, first, second)
	assert.Equal(t, 100, first.NSims)
	assert.GreaterOrEqual(t, first.PLS, 0.0)
	assert.LessOrEqual(t, first.PLS, 1.0)

	state, err := o.Lifecycle.State(ctx, "ekey_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateSimulated, state)

	assert.Equal(t, []ledger.ActionType{
		ledger.ActionProfileSet,
		ledger.ActionStateTransition,
		ledger.ActionSnapshotCreated,
		ledger.ActionStateTransition,
		ledger.ActionStateTransition,
		ledger.ActionSimulationRun,
		ledger.ActionStateTransition,
		ledger.ActionSimulationRun,
	}, actionTypes(t, o))

	assert.Equal(t, 2.0, promtest.ToFloat64(metrics.Evaluations.WithLabelValues(string(first.Zone))))
	assert.Equal(t, 2.0, promtest.ToFloat64(metrics.Simulations.WithLabelValues(string(first.Zone))))
}

func TestEvaluate_ResultCarriesSnapshot(t *testing.T) {
	o, _ := openTestOracle(t)
	ctx := context.Background()

	req := ekey1Request()
	req.SnapshotData = map[string]any{"odds_home": 1.9}
	res, err := o.Evaluate(ctx, req)
	require.NoError(t, err)

	snap, ok, err := o.Snapshots.Get(ctx, res.SnapshotID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.SnapshotPrematch, snap.Type)
	assert.Equal(t, map[string]any{"odds_home": 1.9}, snap.Data)

	last, ok, err := o.LastResult(ctx, "ekey_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, res, last)
}

func TestEvaluate_LaterRunReusesLatestSnapshot(t *testing.T) {
	o, _ := openTestOracle(t)
	ctx := context.Background()

	req := ekey1Request()
	req.SnapshotData = map[string]any{"odds_home": 1.9}
	first, err := o.Evaluate(ctx, req)
	require.NoError(t, err)

	req.SnapshotData = nil
	second, err := o.Evaluate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.SnapshotID, second.SnapshotID)
	assert.Equal(t, first.DeterminismSignature, second.DeterminismSignature)
}

func TestEvaluate_ReusesMostRecentlyUsedSnapshot(t *testing.T) {
	o, _ := openTestOracle(t)
	ctx := context.Background()

	a := map[string]any{"odds_home": 1.9}
	b := map[string]any{"odds_home": 2.4}
	var used []string
	for _, data := range []map[string]any{a, b, a} {
		req := ekey1Request()
		req.SnapshotData = data
		res, err := o.Evaluate(ctx, req)
		require.NoError(t, err)
		used = append(used, res.SnapshotID)
	}
	require.Equal(t, used[0], used[2])
	require.NotEqual(t, used[0], used[1])

	res, err := o.Evaluate(ctx, ekey1Request())
	require.NoError(t, err)
	assert.Equal(t, used[2], res.SnapshotID)
}

func TestEvaluate_NewSnapshotChangesSignature(t *testing.T) {
	o, _ := openTestOracle(t)
	ctx := context.Background()

	first, err := o.Evaluate(ctx, ekey1Request())
	require.NoError(t, err)

	req := ekey1Request()
	req.SnapshotType = domain.SnapshotLive
	req.SnapshotData = map[string]any{"minute": 60}
	second, err := o.Evaluate(ctx, req)
	require.NoError(t, err)

	assert.NotEqual(t, first.SnapshotID, second.SnapshotID)
	assert.NotEqual(t, first.DeterminismSignature, second.DeterminismSignature)
}

func TestEvaluate_ProfileIsImmutable(t *testing.T) {
	o, metrics := openTestOracle(t)
	ctx := context.Background()

	_, err := o.Evaluate(ctx, ekey1Request())
	require.NoError(t, err)

	req := ekey1Request()
	req.RiskProfile = domain.ProfileRisky
	_, err = o.Evaluate(ctx, req)
	assert.True(t, domain.IsKind(err, domain.KindImmutability))

	types := actionTypes(t, o)
	assert.Equal(t, ledger.ActionProviderError, types[len(types)-1])
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.Evaluations.WithLabelValues(string(domain.KindImmutability))))

	p, ok, err := o.Profiles.Profile(ctx, "ekey_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.ProfileNeutral, p)
}

func TestEvaluate_LockedEventIsRejected(t *testing.T) {
	o, _ := openTestOracle(t)
	ctx := context.Background()

	_, err := o.Evaluate(ctx, ekey1Request())
	require.NoError(t, err)
	require.NoError(t, o.Lock(ctx, "ekey_1", "ops"))

	_, err = o.Evaluate(ctx, ekey1Request())
	assert.True(t, domain.IsKind(err, domain.KindInvalidTransition))

	entries, err := o.Mirror.Entries(ctx, mirrorQuery("ekey_1", ledger.ActionLifecycleError))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	le := entries[0].Payload.(ledger.LifecycleError)
	assert.Equal(t, domain.StateLocked, le.Current)
	assert.Equal(t, domain.StateSimulated, le.Attempted)
	assert.Equal(t, ledger.StatusFail, entries[0].Status)
}

func TestEvaluate_LockBeforeSimulationIsRejected(t *testing.T) {
	o, _ := openTestOracle(t)
	ctx := context.Background()

	err := o.Lock(ctx, "ekey_2", "ops")
	assert.True(t, domain.IsKind(err, domain.KindInvalidTransition))

	state, err := o.Lifecycle.State(ctx, "ekey_2")
	require.NoError(t, err)
	assert.Equal(t, domain.StateCreated, state)
}

func TestEvaluate_ChargesTokens(t *testing.T) {
	o, metrics := openTestOracle(t)
	ctx := context.Background()

	req := ekey1Request()
	req.Cost = 2
	_, err := o.Evaluate(ctx, req)
	require.NoError(t, err)

	balance, err := o.Tokens.Balance(ctx, tokens.Scope{})
	require.NoError(t, err)
	assert.Equal(t, int64(98), balance)

	scoped, err := o.Tokens.Balance(ctx, tokens.Scope{EventKey: "ekey_1"})
	require.NoError(t, err)
	assert.Equal(t, int64(98), scoped)

	req.Cost = 99
	_, err = o.Evaluate(ctx, req)
	assert.True(t, domain.IsKind(err, domain.KindInsufficientTokens))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.TokenSpendRejections))

	runs, err := o.Mirror.Entries(ctx, mirrorQuery("ekey_1", ledger.ActionSimulationRun))
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestEvaluate_InvalidRequestWritesNothing(t *testing.T) {
	cases := map[string]func(*Request){
		"missing key":       func(r *Request) { r.EventKey = "" },
		"unknown profile":   func(r *Request) { r.RiskProfile = "BOLD" },
		"zero stake":        func(r *Request) { r.Stake = 0 },
		"negative sims":     func(r *Request) { r.NSims = -1 },
		"negative cost":     func(r *Request) { r.Cost = -1 },
		"snapshot type":     func(r *Request) { r.SnapshotType = "HALFTIME" },
		"seed out of range": func(r *Request) { r.Seed = 1 << 60 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			o, _ := openTestOracle(t)
			req := ekey1Request()
			mutate(&req)

			_, err := o.Evaluate(context.Background(), req)
			assert.True(t, domain.IsKind(err, domain.KindInvalidInput), "got %v", err)
			assert.Empty(t, actionTypes(t, o))
		})
	}
}

func TestEvaluate_AdaptivePolicy(t *testing.T) {
	o, _ := openTestOracle(t)

	req := ekey1Request()
	req.NSims = 0
	res, err := o.Evaluate(context.Background(), req)
	require.NoError(t, err)

	if res.Zone == domain.ZoneGreen {
		assert.Equal(t, 1000, res.NSims)
	} else {
		assert.Equal(t, 10000, res.NSims)
	}
}

func TestEvaluate_ConcurrentOnFreshKey(t *testing.T) {
	o, _ := openTestOracle(t)
	ctx := context.Background()

	const workers = 8
	results := make([]contract.RiskEvaluationResult, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = o.Evaluate(ctx, ekey1Request())
		}()
	}
	wg.Wait()

	for i := range workers {
		require.NoError(t, errs[i], "worker %d", i)
		assert.Equal(t, results[0], results[i])
	}

	failures, err := o.Mirror.Entries(ctx, mirrorQuery("ekey_1", ledger.ActionLifecycleError))
	require.NoError(t, err)
	assert.Empty(t, failures)

	transitions, err := o.Mirror.Entries(ctx, mirrorQuery("ekey_1", ledger.ActionStateTransition))
	require.NoError(t, err)
	var toProfileSet, toSnapshotTaken int
	for _, e := range transitions {
		switch e.Payload.(ledger.StateTransition).To {
		case domain.StateProfileSet:
			toProfileSet++
		case domain.StateSnapshotTaken:
			toSnapshotTaken++
		}
	}
	assert.Equal(t, 1, toProfileSet)
	assert.Equal(t, 1, toSnapshotTaken)

	runs, err := o.Mirror.Entries(ctx, mirrorQuery("ekey_1", ledger.ActionSimulationRun))
	require.NoError(t, err)
	assert.Len(t, runs, workers)
}
