package mirror

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/riskledger/internal/ledger"
	"github.com/roach88/riskledger/internal/testutil"
)

func openTestMirror(t *testing.T) *Mirror {
	t.Helper()
	m, err := Open(filepath.Join(t.TempDir(), "oracle.db"))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

// entryFactory builds valid entries with deterministic IDs and timestamps.
type entryFactory struct {
	clock *testutil.DeterministicClock
	ids   *testutil.SequenceIDGenerator
}

func newEntryFactory() *entryFactory {
	return &entryFactory{
		clock: testutil.NewDeterministicClock(),
		ids:   testutil.NewSequenceIDGenerator("entry"),
	}
}

func (f *entryFactory) entry(t *testing.T, rec ledger.Record) ledger.Entry {
	t.Helper()
	e, err := ledger.NewEntry(rec, f.ids.Generate(), f.clock.Now())
	require.NoError(t, err)
	return e
}

func (f *entryFactory) apply(t *testing.T, m *Mirror, rec ledger.Record) ledger.Entry {
	t.Helper()
	e := f.entry(t, rec)
	require.NoError(t, m.Apply(context.Background(), e))
	return e
}

// dumpTables renders every projection table as ordered strings so two
// mirrors can be compared.
func dumpTables(t *testing.T, m *Mirror) map[string][]string {
	t.Helper()
	queries := map[string]string{
		"ledger":           `SELECT seq, entry_id, ts, action_type, event_key, snapshot_id, status, payload_hash, payload, token_delta, actor, schema_version FROM ledger ORDER BY seq`,
		"event_profiles":   `SELECT event_key, profile, set_at, entry_id, seq FROM event_profiles ORDER BY event_key`,
		"lifecycle_states": `SELECT event_key, state, updated_at, seq FROM lifecycle_states ORDER BY event_key`,
		"snapshots":        `SELECT snapshot_id, event_key, type, timestamp, data, seq FROM snapshots ORDER BY snapshot_id`,
		"sports":           `SELECT sport_id, name FROM sports ORDER BY sport_id`,
		"leagues":          `SELECT league_id, sport_id, name FROM leagues ORDER BY league_id`,
		"entities":         `SELECT entity_id, sport_id, name FROM entities ORDER BY entity_id`,
		"events":           `SELECT event_key, league_id, home_entity_id, away_entity_id, event_date, market_scope, registered_at FROM events ORDER BY event_key`,
		"wallet":           `SELECT balance FROM wallet`,
	}

	out := make(map[string][]string, len(queries))
	for table, q := range queries {
		rows, err := m.DB().Query(q)
		require.NoError(t, err, table)

		cols, err := rows.Columns()
		require.NoError(t, err)
		for rows.Next() {
			vals := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			require.NoError(t, rows.Scan(ptrs...))
			out[table] = append(out[table], fmt.Sprint(vals...))
		}
		require.NoError(t, rows.Err())
		rows.Close()
	}
	return out
}
