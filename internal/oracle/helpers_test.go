package oracle

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/riskledger/internal/domain"
	"github.com/roach88/riskledger/internal/ledger"
	"github.com/roach88/riskledger/internal/mirror"
	"github.com/roach88/riskledger/internal/observability"
	"github.com/roach88/riskledger/internal/sim"
	"github.com/roach88/riskledger/internal/testutil"
)

// testPaths is a ledger and mirror location inside one temp dir.
type testPaths struct {
	ledger string
	mirror string
}

func newTestPaths(t *testing.T) testPaths {
	dir := t.TempDir()
	return testPaths{
		ledger: filepath.Join(dir, "ledger.jsonl"),
		mirror: filepath.Join(dir, "oracle.db"),
	}
}

// open opens an oracle over p. idPrefix keeps entry IDs unique across
// reopenings of the same ledger.
func (p testPaths) open(t *testing.T, idPrefix string, force bool) (*Oracle, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetrics()
	o, err := OpenOrRehydrate(context.Background(), Options{
		LedgerPath:     p.ledger,
		MirrorPath:     p.mirror,
		ForceRehydrate: force,
		Logger:         observability.Discard(),
		Metrics:        metrics,
		Clock:          testutil.NewDeterministicClock(),
		IDs:            testutil.NewSequenceIDGenerator(idPrefix),
	})
	require.NoError(t, err)
	return o, metrics
}

func openTestOracle(t *testing.T) (*Oracle, *observability.Metrics) {
	t.Helper()
	o, m := newTestPaths(t).open(t, "entry", false)
	t.Cleanup(func() { o.Close() })
	return o, m
}

func ekey1Request() Request {
	return Request{
		EventKey:    "ekey_1",
		RiskProfile: domain.ProfileNeutral,
		Stake:       100,
		Features:    sim.Features{sim.FeatureRatingDiff: 50},
		Seed:        42,
		NSims:       100,
	}
}

func actionTypes(t *testing.T, o *Oracle) []ledger.ActionType {
	t.Helper()
	var out []ledger.ActionType
	err := ledger.ReadEntries(context.Background(), o.Ledger.Path(), func(_ int, e ledger.Entry) error {
		out = append(out, e.ActionType)
		return nil
	})
	require.NoError(t, err)
	return out
}

// nopSink accepts every entry.
type nopSink struct{}

func (nopSink) Apply(context.Context, ledger.Entry) error { return nil }

func mirrorQuery(key string, action ledger.ActionType) mirror.EntryQuery {
	return mirror.EntryQuery{EventKey: key, ActionType: action}
}
