package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/riskledger/internal/observability"
	"github.com/roach88/riskledger/internal/oracle"
)

// session is one opened oracle and the output plumbing of a command.
type session struct {
	*oracle.Oracle
	out     *OutputFormatter
	logger  *slog.Logger
	metrics *observability.Metrics
	opts    *RootOptions
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// openSession opens the oracle configured by opts. force rebuilds the
// mirror regardless of --force-rehydrate.
func openSession(opts *RootOptions, cmd *cobra.Command, force bool) (*session, error) {
	out := newFormatter(opts, cmd)

	logger, err := observability.NewLogger(cmd.ErrOrStderr(), opts.LogLevel, opts.LogFormat)
	if err != nil {
		return nil, out.Fail("invalid logging configuration", err)
	}
	metrics := observability.NewMetrics()

	o, err := oracle.OpenOrRehydrate(commandContext(cmd), oracle.Options{
		LedgerPath:     opts.LedgerPath,
		MirrorPath:     opts.MirrorPath,
		ForceRehydrate: force || opts.ForceRehydrate,
		Logger:         logger,
		Metrics:        metrics,
		Clock:          opts.Clock,
		IDs:            opts.IDs,
	})
	if err != nil {
		return nil, out.Fail("failed to open ledger", err)
	}
	out.VerboseLog("ledger %s, mirror %s", opts.LedgerPath, opts.MirrorPath)

	return &session{Oracle: o, out: out, logger: logger, metrics: metrics, opts: opts}, nil
}

// close closes the oracle and writes the metrics file, if configured.
func (s *session) close() {
	if err := s.Oracle.Close(); err != nil {
		s.logger.Error("close failed", "error", err)
	}
	if s.opts.MetricsFile != "" {
		if err := s.metrics.WriteTextfile(s.opts.MetricsFile); err != nil {
			s.logger.Error("write metrics failed", "path", s.opts.MetricsFile, "error", err)
		}
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
