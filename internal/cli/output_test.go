package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/riskledger/internal/domain"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"result": "success"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	require.NoError(t, formatter.Error("ERROR", "ledger unreadable", map[string]string{"path": "ledger.jsonl"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "ERROR", resp.Error.Code)
	assert.Equal(t, "ledger unreadable", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	require.NoError(t, formatter.Success("balance: 100"))
	assert.Equal(t, "balance: 100\n", buf.String())
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	require.NoError(t, formatter.Error("ERROR", "open failed", "permission denied"))
	assert.Contains(t, buf.String(), "Error [ERROR]: open failed")
	assert.Contains(t, buf.String(), "Details: permission denied")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, diag := &bytes.Buffer{}, &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: diag,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("opening %s", "ledger.jsonl")

			assert.Empty(t, out.String())
			if tt.wantLog {
				assert.Equal(t, "opening ledger.jsonl\n", diag.String())
			} else {
				assert.Empty(t, diag.String())
			}
		})
	}
}

func TestOutputFormatter_FailExitCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"immutability", domain.NewImmutability("ekey_1", "profile already set"), ExitFailure, "IMMUTABILITY_VIOLATION"},
		{"transition", domain.NewInvalidTransition("ekey_1", "invalid transition LOCKED -> SIMULATED"), ExitFailure, "INVALID_TRANSITION"},
		{"tokens", domain.NewInsufficientTokens("GLOBAL", "spend of 5 exceeds balance 1"), ExitFailure, "INSUFFICIENT_TOKENS"},
		{"input", domain.NewInvalidInput("stake must be positive"), ExitCommandError, "INVALID_INPUT"},
		{"corruption", domain.NewCorruption("ledger does not end with a newline", 3, nil), ExitCommandError, "CORRUPTION_DETECTED"},
		{"persistence", domain.NewPersistenceFailure("sync", errors.New("disk full")), ExitCommandError, "PERSISTENCE_FAILURE"},
		{"plain", errors.New("boom"), ExitCommandError, ErrCodeGeneric},
		{"exit error", NewExitError(ExitFailure, "nothing recorded"), ExitFailure, ErrCodeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: buf}

			err := formatter.Fail("operation failed", tt.err)
			assert.Equal(t, tt.code, GetExitCode(err))
			assert.ErrorIs(t, err, tt.err)

			var resp CLIResponse
			require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.kind, resp.Error.Code)
		})
	}
}

func TestOutputFormatter_FailCarriesLine(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	_ = formatter.Fail("open failed", domain.NewCorruption("invalid ledger line", 7, errors.New("bad hash")))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, 7, resp.Error.Line)
	assert.Equal(t, "invalid ledger line", resp.Error.Message)
	assert.Equal(t, "bad hash", resp.Error.Details)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "x", errors.New("y"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}
