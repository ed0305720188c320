package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/riskledger/internal/config"
	"github.com/roach88/riskledger/internal/testutil"
)

// testOptions points the CLI at a fresh ledger and mirror with a
// deterministic clock and entry IDs.
func testOptions(t *testing.T) *RootOptions {
	t.Helper()
	dir := t.TempDir()
	return &RootOptions{
		Config: config.Config{
			LedgerPath:  filepath.Join(dir, "ledger.jsonl"),
			MirrorPath:  filepath.Join(dir, "oracle.db"),
			Actor:       "tester",
			DefaultSeed: 42,
			LogLevel:    "error",
			LogFormat:   "text",
		},
		Clock: testutil.NewDeterministicClock(),
		IDs:   testutil.NewSequenceIDGenerator("entry"),
	}
}

type execResult struct {
	stdout string
	stderr string
	err    error
}

// execute runs one command line against opts. opts is shared across calls
// so a test can chain commands over the same ledger.
func execute(opts *RootOptions, args ...string) execResult {
	cmd := newRootCommand(opts)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return execResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// decodeJSON decodes a --format json response, with Data into data.
func decodeJSON(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), "output: %s", out)
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return CLIResponse{Status: raw.Status, Error: raw.Error}
}
