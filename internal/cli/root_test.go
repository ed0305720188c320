package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := newRootCommand(testOptions(t))
	require.NotNil(t, cmd)
	assert.Equal(t, "riskledger", cmd.Use)
	assert.Contains(t, cmd.Long, "JSONL ledger")
}

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand(testOptions(t))
	commands := []string{
		"evaluate", "result", "eventkey", "register", "profile", "state",
		"lock", "balance", "spend", "rehydrate", "check", "verify",
	}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	opts := testOptions(t)
	cmd := newRootCommand(opts)

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	ledgerFlag := cmd.PersistentFlags().Lookup("ledger")
	require.NotNil(t, ledgerFlag)
	assert.Equal(t, opts.LedgerPath, ledgerFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, opts.MirrorPath, dbFlag.DefValue)
}

func TestNewRootCommand_EnvDefaults(t *testing.T) {
	t.Setenv("RISKLEDGER_LEDGER_PATH", "/data/ledger.jsonl")
	t.Setenv("RISKLEDGER_ACTOR", "analyst")

	cmd := NewRootCommand()
	assert.Equal(t, "/data/ledger.jsonl", cmd.PersistentFlags().Lookup("ledger").DefValue)
	assert.Equal(t, "analyst", cmd.PersistentFlags().Lookup("actor").DefValue)
}

func TestNewRootCommand_BadEnvironment(t *testing.T) {
	t.Setenv("RISKLEDGER_DEFAULT_SEED", "not-a-number")

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"balance"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidFormat(t *testing.T) {
	res := execute(testOptions(t), "balance", "--format", "yaml")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "invalid format")
}

func TestEvaluateCommandFlags(t *testing.T) {
	cmd := newRootCommand(testOptions(t))
	evalCmd, _, err := cmd.Find([]string{"evaluate"})
	require.NoError(t, err)

	for _, name := range []string{"request", "event", "profile", "stake", "feature", "seed", "n-sims", "cost", "tier", "snapshot-type", "snapshot"} {
		assert.NotNil(t, evalCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "0", evalCmd.Flags().Lookup("n-sims").DefValue)
}
