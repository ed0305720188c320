package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/riskledger/internal/config"
	"github.com/roach88/riskledger/internal/ledger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	config.Config

	// Clock and IDs override entry timestamps and IDs (tests).
	Clock ledger.Clock
	IDs   ledger.IDGenerator

	configErr error
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the riskledger CLI.
// Flag defaults come from RISKLEDGER_* environment variables.
func NewRootCommand() *cobra.Command {
	cfg, err := config.Load()
	if err != nil {
		// Reported from PersistentPreRunE so --help still works.
		cfg = config.Config{}
	}
	opts := &RootOptions{Config: cfg, configErr: err}
	return newRootCommand(opts)
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "riskledger",
		Short: "riskledger - auditable pre-match risk evaluation",
		Long: `A ledger-backed risk oracle for sporting events.

Every decision is appended to a JSONL ledger before it takes effect. A
SQLite mirror is rebuilt from the ledger on demand and serves all reads.
Evaluations are deterministic Monte Carlo runs signed over their inputs.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.configErr != nil {
				return WrapExitError(ExitCommandError, "invalid environment configuration", opts.configErr)
			}
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Verbose {
				opts.LogLevel = "debug"
			}
			return opts.Config.Validate()
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logging)")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.LedgerPath, "ledger", opts.LedgerPath, "path to the JSONL ledger")
	pf.StringVar(&opts.MirrorPath, "db", opts.MirrorPath, "path to the SQLite mirror (:memory: rebuilds every run)")
	pf.StringVar(&opts.Actor, "actor", opts.Actor, "actor recorded on written entries")
	pf.StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "log level (debug|info|warn|error)")
	pf.StringVar(&opts.LogFormat, "log-format", opts.LogFormat, "log format (text|json)")
	pf.BoolVar(&opts.ForceRehydrate, "force-rehydrate", opts.ForceRehydrate, "rebuild the mirror from the ledger before running")
	pf.StringVar(&opts.MetricsFile, "metrics-file", opts.MetricsFile, "write Prometheus metrics to this file on exit")

	// Add subcommands
	cmd.AddCommand(NewEvaluateCommand(opts))
	cmd.AddCommand(NewResultCommand(opts))
	cmd.AddCommand(NewEventKeyCommand(opts))
	cmd.AddCommand(NewRegisterCommand(opts))
	cmd.AddCommand(NewProfileCommand(opts))
	cmd.AddCommand(NewStateCommand(opts))
	cmd.AddCommand(NewLockCommand(opts))
	cmd.AddCommand(NewBalanceCommand(opts))
	cmd.AddCommand(NewSpendCommand(opts))
	cmd.AddCommand(NewRehydrateCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
