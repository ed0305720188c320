package verify

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/riskledger/internal/domain"
	"github.com/roach88/riskledger/internal/sim"
)

func sampleInputs() []Inputs {
	return []Inputs{
		{
			EventKey:    "ekey_1",
			RiskProfile: domain.ProfileNeutral,
			Stake:       100,
			Features:    sim.Features{sim.FeatureRatingDiff: 50, sim.FeatureHomeAdvantage: 100},
			SnapshotID:  "snap_1",
			Seed:        42,
		},
		{
			EventKey:    "ekey_2",
			RiskProfile: domain.ProfileRisky,
			Stake:       25.5,
			Features:    sim.Features{sim.FeatureRatingDiff: -200},
			SnapshotID:  "snap_2",
			SnapshotData: map[string]any{
				"odds": map[string]any{"home": 2.4, "away": 1.6},
			},
			Seed: 7,
		},
		{
			EventKey:    "ekey_3",
			RiskProfile: domain.ProfileConservative,
			Stake:       10,
			Features:    sim.Features{},
			SnapshotID:  "snap_3",
			Seed:        -3,
		},
	}
}

func baselineSuite(t *testing.T) []Case {
	t.Helper()
	var cases []Case
	for i, in := range sampleInputs() {
		c, err := Baseline(in.EventKey, in, 200*(i+1))
		require.NoError(t, err)
		cases = append(cases, c)
	}
	return cases
}

func TestBaseline_RoundTripVerifies(t *testing.T) {
	cases := baselineSuite(t)

	var buf bytes.Buffer
	require.NoError(t, WriteSuite(&buf, cases))

	loaded, err := ParseSuite(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, cases[0].Expected, loaded[0].Expected)

	report := Run(loaded)
	assert.True(t, report.OK())
	assert.Equal(t, 3, report.Passed())
	assert.Equal(t, 0, report.Failed())
}

func TestBaseline_KnownSignature(t *testing.T) {
	in := sampleInputs()[0]
	c, err := Baseline("ekey_1", in, 100)
	require.NoError(t, err)
	assert.Equal(t, "641a60c52b969dec942633c0ee86e6adb99f43e2323e38f0ead58f6beb616dc7", c.Expected.DeterminismSignature)
	assert.Equal(t, 100, c.Expected.NSims)
}

func TestBaseline_AdaptiveRecordsTrials(t *testing.T) {
	c, err := Baseline("adaptive", sampleInputs()[0], 0)
	require.NoError(t, err)
	assert.Contains(t, []int{sim.InitialSims, sim.PrecisionSims}, c.Expected.NSims)

	assert.True(t, Check(c).Passed())
}

func TestCheck_ReportsDrift(t *testing.T) {
	c := baselineSuite(t)[0]
	c.Expected.PLS += 0.5
	c.Expected.DeterminismSignature = "0000000000000000000000000000000000000000000000000000000000000000"

	out := Check(c)
	assert.False(t, out.Passed())
	require.Len(t, out.Diffs, 2)
	assert.Contains(t, out.Diffs[0], "pls:")
	assert.Contains(t, out.Diffs[1], "determinism_signature:")
}

func TestCheck_InputChangeBreaksSignature(t *testing.T) {
	c := baselineSuite(t)[1]
	c.Inputs.SnapshotData["odds"].(map[string]any)["home"] = 2.5

	out := Check(c)
	assert.False(t, out.Passed())
	assert.Contains(t, out.Diffs[len(out.Diffs)-1], "determinism_signature:")
}

func TestCheck_InvalidInputs(t *testing.T) {
	c := baselineSuite(t)[0]
	c.Inputs.RiskProfile = "BOLD"

	out := Check(c)
	assert.False(t, out.Passed())
	assert.True(t, domain.IsKind(out.Err, domain.KindInvalidInput))
}

func TestReport_WriteText(t *testing.T) {
	cases := baselineSuite(t)
	cases[2].Expected.Zone = "PURPLE"
	report := Run(cases)

	var buf bytes.Buffer
	require.NoError(t, report.WriteText(&buf))
	out := buf.String()

	assert.Contains(t, out, "[PASS] ekey_1 (signature "+cases[0].Expected.DeterminismSignature[:8]+"...)")
	assert.Contains(t, out, "[FAIL] ekey_3:\n  - zone: expected PURPLE")
	assert.Contains(t, out, "TOTAL: 3 | PASS: 2 | FAIL: 1")
	assert.False(t, report.OK())
}

func TestParseSuite_AcceptsJSON(t *testing.T) {
	doc := `[{"name": "json-case",
	  "inputs": {"event_key": "ekey_1", "risk_profile": "NEUTRAL", "stake": 100,
	             "features": {"rating_diff": 50, "home_advantage": 100},
	             "snapshot_id": "snap_1", "seed": 42},
	  "expected_output": {"pls": 0.1, "zone": "GREEN",
	                      "determinism_signature": "641a60c52b969dec942633c0ee86e6adb99f43e2323e38f0ead58f6beb616dc7",
	                      "n_sims": 100}}]`
	cases, err := ParseSuite([]byte(doc))
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, 50.0, cases[0].Inputs.Features[sim.FeatureRatingDiff])

	out := Check(cases[0])
	assert.NoError(t, out.Err)
	assert.Equal(t, cases[0].Expected.DeterminismSignature, out.Signature)
}

func TestParseSuite_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown field": "- name: a\n  bogus: 1\n  expected_output: {n_sims: 10}\n",
		"missing name":  "- expected_output: {n_sims: 10}\n",
		"zero trials":   "- name: a\n  expected_output: {n_sims: 0}\n",
		"not a list":    "name: a\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSuite([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseSuite_Empty(t *testing.T) {
	cases, err := ParseSuite(nil)
	require.NoError(t, err)
	assert.Empty(t, cases)
}

func TestLoadSuite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baselines.yaml")
	var buf bytes.Buffer
	require.NoError(t, WriteSuite(&buf, baselineSuite(t)))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	cases, err := LoadSuite(path)
	require.NoError(t, err)
	assert.Len(t, cases, 3)

	_, err = LoadSuite(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
