package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/riskledger/internal/contract"
	"github.com/roach88/riskledger/internal/domain"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339Nano, s)
	require.NoError(t, err)
	return ts
}

func TestParseLine_RoundTripsEveryPayload(t *testing.T) {
	payloads := []Payload{
		ProfileSet{Profile: domain.ProfileRisky},
		ProviderError{Existing: domain.ProfileNeutral, Attempted: domain.ProfileRisky, Message: "profile is immutable"},
		StateTransition{From: domain.StateProfileSet, To: domain.StateSnapshotTaken},
		LifecycleError{Error: "invalid transition", Current: domain.StateCreated, Attempted: domain.StateSimulated},
		TokensSpent{Amount: 4, Reason: "comparison", Metadata: map[string]string{"against": "ekey_2"}},
		SnapshotCreated{Type: domain.SnapshotPrematch, Data: map[string]any{"odds": 1.9, "book": "x"}},
		SimulationRun{
			RiskProfile: domain.ProfileNeutral,
			Stake:       100,
			Seed:        42,
			Features:    map[string]float64{"rating_diff": 50},
			Result: contract.RiskEvaluationResult{
				PLS:                  0.12,
				Zone:                 domain.ZoneYellow,
				Fragility:            0.21,
				TailPercentiles:      contract.TailPercentiles{P5: -0.9, P10: -0.7, P25: -0.3},
				NSims:                100,
				DeterminismSignature: "641a60c52b969dec942633c0ee86e6adb99f43e2323e38f0ead58f6beb616dc7",
				SnapshotID:           "snap_1",
			},
		},
		EventRegistered{Sport: "football", League: "premier league", Home: "arsenal", Away: "chelsea", Date: "2026-10-15", MarketScope: "default"},
	}

	for _, p := range payloads {
		t.Run(string(p.ActionType()), func(t *testing.T) {
			entry, err := NewEntry(Record{EventKey: "ekey_1", Payload: p}, "id-1", mustTime(t, "2026-10-15T12:00:00.5Z"))
			require.NoError(t, err)

			line, err := EncodeLine(entry)
			require.NoError(t, err)
			require.Equal(t, byte('\n'), line[len(line)-1])

			parsed, err := ParseLine(line[:len(line)-1])
			require.NoError(t, err)
			assert.Equal(t, entry.EntryID, parsed.EntryID)
			assert.True(t, entry.Timestamp.Equal(parsed.Timestamp))
			assert.Equal(t, entry.ActionType, parsed.ActionType)
			assert.Equal(t, entry.PayloadHash, parsed.PayloadHash)
			assert.Equal(t, p, parsed.Payload)
		})
	}
}

func TestNewEntry_FailStatus(t *testing.T) {
	entry, err := NewEntry(Record{
		EventKey: "ekey_1",
		Status:   StatusFail,
		Payload:  LifecycleError{Error: "invalid transition", Current: domain.StateLocked, Attempted: domain.StateSimulated},
	}, "id-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusFail, entry.Status)
	assert.Equal(t, ActionLifecycleError, entry.ActionType)
}

func TestNewEntry_PayloadHashIsCanonical(t *testing.T) {
	a, err := NewEntry(Record{EventKey: "k", Payload: SnapshotCreated{
		Type: domain.SnapshotLive,
		Data: map[string]any{"b": 2, "a": 1},
	}}, "1", time.Now())
	require.NoError(t, err)
	b, err := NewEntry(Record{EventKey: "k", Payload: SnapshotCreated{
		Type: domain.SnapshotLive,
		Data: map[string]any{"a": 1.0, "b": 2.0},
	}}, "2", time.Now())
	require.NoError(t, err)

	assert.Equal(t, a.PayloadHash, b.PayloadHash)
	assert.Equal(t, `{"data":{"a":1,"b":2},"type":"LIVE"}`, string(a.PayloadJSON))
}

func TestDecodePayload_InvalidKnownPayload(t *testing.T) {
	_, err := DecodePayload(ActionProfileSet, []byte(`{"profile":"WILD"}`))
	assert.Error(t, err)

	_, err = DecodePayload(ActionTokensSpent, []byte(`{"amount":"ten"}`))
	assert.Error(t, err)
}

func TestValidateLine(t *testing.T) {
	assert.Error(t, ValidateLine([]byte(`{}`)))
	assert.Error(t, ValidateLine([]byte(`[]`)))
	assert.Error(t, ValidateLine([]byte(`{"a":1} {"b":2}`)))
}
