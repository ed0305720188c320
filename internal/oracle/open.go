// Package oracle wires the ledger, the mirror and the domain components
// into one process-level service and orchestrates risk evaluations.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/riskledger/internal/domain"
	"github.com/roach88/riskledger/internal/ledger"
	"github.com/roach88/riskledger/internal/lifecycle"
	"github.com/roach88/riskledger/internal/mirror"
	"github.com/roach88/riskledger/internal/observability"
	"github.com/roach88/riskledger/internal/profile"
	"github.com/roach88/riskledger/internal/snapshot"
	"github.com/roach88/riskledger/internal/tokens"
)

const memoryPath = ":memory:"

// Options configures OpenOrRehydrate.
type Options struct {
	LedgerPath string
	MirrorPath string

	// ForceRehydrate discards any existing mirror and rebuilds it.
	ForceRehydrate bool

	Logger  *slog.Logger
	Metrics *observability.Metrics

	// Clock and IDs override entry timestamps and IDs (tests).
	Clock ledger.Clock
	IDs   ledger.IDGenerator
}

// Oracle is the opened system: the ledger, its mirror and the components
// reading and writing through them.
type Oracle struct {
	Ledger    *ledger.Ledger
	Mirror    *mirror.Mirror
	Profiles  *profile.Registry
	Lifecycle *lifecycle.Machine
	Tokens    *tokens.Wallet
	Snapshots *snapshot.Recorder

	logger  *slog.Logger
	metrics *observability.Metrics

	// Rehydrated is the number of entries replayed while opening, or -1 if
	// the existing mirror was reused.
	Rehydrated int
}

// OpenOrRehydrate opens the ledger and its mirror, rebuilding the mirror
// from the ledger when it is missing, forced, or behind the ledger.
//
// A mirror holding more entries than the ledger cannot be explained by a
// crash and is reported as CORRUPTION_DETECTED.
func OpenOrRehydrate(ctx context.Context, opts Options) (*Oracle, error) {
	if opts.LedgerPath == "" {
		return nil, domain.NewInvalidInput("ledger path is required")
	}
	if opts.MirrorPath == "" {
		opts.MirrorPath = memoryPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := ledger.VerifyIntegrity(opts.LedgerPath); err != nil {
		return nil, err
	}

	m, rehydrated, err := openMirror(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	opts.Metrics.ObserveReplay(max(rehydrated, 0))

	ledgerOpts := []ledger.Option{
		ledger.WithLogger(logger),
		ledger.WithMetrics(opts.Metrics),
	}
	if opts.Clock != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithClock(opts.Clock))
	}
	if opts.IDs != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithIDGenerator(opts.IDs))
	}

	l, err := ledger.Open(opts.LedgerPath, m, ledgerOpts...)
	if err != nil {
		m.Close()
		return nil, err
	}

	return &Oracle{
		Ledger:     l,
		Mirror:     m,
		Profiles:   profile.New(l, m, logger),
		Lifecycle:  lifecycle.New(l, m, logger),
		Tokens:     tokens.New(l, m, logger, opts.Metrics),
		Snapshots:  snapshot.New(l, m, logger),
		logger:     logger,
		metrics:    opts.Metrics,
		Rehydrated: rehydrated,
	}, nil
}

// openMirror returns a mirror consistent with the ledger and the number of
// entries replayed into it (-1 when reused as is).
func openMirror(ctx context.Context, opts Options, logger *slog.Logger) (*mirror.Mirror, int, error) {
	reuse := false
	if opts.MirrorPath != memoryPath && !opts.ForceRehydrate {
		exists, err := mirror.Exists(opts.MirrorPath)
		if err != nil {
			return nil, 0, fmt.Errorf("stat mirror: %w", err)
		}
		reuse = exists
	}

	if reuse {
		m, err := mirror.Open(opts.MirrorPath)
		if err != nil {
			return nil, 0, err
		}
		logCount, err := ledger.CountEntries(ctx, opts.LedgerPath)
		if err != nil {
			m.Close()
			return nil, 0, err
		}
		mirrorCount, err := m.CountEntries(ctx)
		if err != nil {
			m.Close()
			return nil, 0, err
		}

		switch {
		case mirrorCount == logCount:
			logger.Info("mirror reused", "path", opts.MirrorPath, "entries", mirrorCount)
			return m, -1, nil
		case mirrorCount > logCount:
			m.Close()
			return nil, 0, domain.NewCorruption(
				fmt.Sprintf("mirror holds %d entries but ledger has %d", mirrorCount, logCount), 0, nil)
		default:
			logger.Warn("mirror behind ledger, rebuilding", "mirror_entries", mirrorCount, "ledger_entries", logCount)
			m.Close()
		}
	}

	return rebuildMirror(ctx, opts, logger)
}

func rebuildMirror(ctx context.Context, opts Options, logger *slog.Logger) (*mirror.Mirror, int, error) {
	if opts.MirrorPath != memoryPath {
		if err := mirror.Remove(opts.MirrorPath); err != nil {
			return nil, 0, err
		}
	}
	m, err := mirror.Open(opts.MirrorPath)
	if err != nil {
		return nil, 0, err
	}

	n, err := ledger.Rehydrate(ctx, opts.LedgerPath, m)
	if err != nil {
		m.Close()
		return nil, 0, err
	}
	logger.Info("mirror rehydrated", "path", opts.MirrorPath, "entries", n)
	return m, n, nil
}

// Close closes the ledger and the mirror.
func (o *Oracle) Close() error {
	return errors.Join(o.Ledger.Close(), o.Mirror.Close())
}
