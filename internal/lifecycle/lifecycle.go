// Package lifecycle drives the per-event state machine
//
//	CREATED -> PROFILE_SET -> SNAPSHOT_TAKEN -> SIMULATED -> LOCKED
//
// SIMULATED may repeat; LOCKED is terminal. Every attempt is logged: an
// accepted move as STATE_TRANSITION, a refused one as a FAIL
// LIFECYCLE_ERROR entry.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/riskledger/internal/domain"
	"github.com/roach88/riskledger/internal/ledger"
)

var transitions = map[domain.State][]domain.State{
	domain.StateCreated:       {domain.StateProfileSet},
	domain.StateProfileSet:    {domain.StateSnapshotTaken},
	domain.StateSnapshotTaken: {domain.StateSimulated},
	domain.StateSimulated:     {domain.StateSimulated, domain.StateLocked},
	domain.StateLocked:        nil,
}

// rank orders states along the path.
var rank = map[domain.State]int{
	domain.StateCreated:       0,
	domain.StateProfileSet:    1,
	domain.StateSnapshotTaken: 2,
	domain.StateSimulated:     3,
	domain.StateLocked:        4,
}

// Allowed reports whether from -> to is a legal move.
func Allowed(from, to domain.State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Next returns the states reachable from from in one move.
func Next(from domain.State) []domain.State {
	return append([]domain.State(nil), transitions[from]...)
}

// Appender is the subset of the ledger the machine writes through.
type Appender interface {
	Append(ctx context.Context, rec ledger.Record) (string, error)
	AppendWith(ctx context.Context, decide ledger.Decide) (string, error)
}

// Reader reads projected states.
type Reader interface {
	State(ctx context.Context, key string) (domain.State, bool, error)
}

// Machine applies lifecycle transitions.
type Machine struct {
	ledger Appender
	reader Reader
	logger *slog.Logger
}

// New creates a Machine. A nil logger uses slog.Default().
func New(l Appender, r Reader, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{ledger: l, reader: r, logger: logger}
}

// State returns the current state of key. Keys with no recorded
// transition are CREATED.
func (m *Machine) State(ctx context.Context, key string) (domain.State, error) {
	s, ok, err := m.reader.State(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return domain.StateCreated, nil
	}
	return s, nil
}

type illegalMove struct {
	current domain.State
}

func (e *illegalMove) Error() string { return "illegal move from " + string(e.current) }

// TransitionTo moves key to the target state.
func (m *Machine) TransitionTo(ctx context.Context, key string, to domain.State, actor string) error {
	if key == "" {
		return domain.NewInvalidInput("event key is required")
	}
	if !to.Valid() {
		return domain.NewInvalidInput(fmt.Sprintf("unknown state %q", to))
	}

	var from domain.State
	_, err := m.ledger.AppendWith(ctx, func(ctx context.Context) (ledger.Record, error) {
		current, err := m.State(ctx, key)
		if err != nil {
			return ledger.Record{}, err
		}
		if !Allowed(current, to) {
			return ledger.Record{}, &illegalMove{current: current}
		}
		from = current
		return ledger.Record{
			EventKey: key,
			Actor:    actor,
			Payload:  ledger.StateTransition{From: current, To: to},
		}, nil
	})
	if err == nil {
		m.logger.Info("state transition", "event_key", key, "from", from, "to", to)
		return nil
	}

	var illegal *illegalMove
	if !errors.As(err, &illegal) {
		return err
	}
	return m.reject(ctx, key, illegal.current, to, actor)
}

type reached struct {
	current domain.State
}

func (e *reached) Error() string { return "already at " + string(e.current) }

// Advance moves key one step toward target, deciding under the writer lock.
// It writes nothing when key is already at or past target and returns the
// state key is left in. A move that skips a state is rejected like
// TransitionTo.
func (m *Machine) Advance(ctx context.Context, key string, target domain.State, actor string) (domain.State, error) {
	if key == "" {
		return "", domain.NewInvalidInput("event key is required")
	}
	if !target.Valid() {
		return "", domain.NewInvalidInput(fmt.Sprintf("unknown state %q", target))
	}

	var from domain.State
	_, err := m.ledger.AppendWith(ctx, func(ctx context.Context) (ledger.Record, error) {
		current, err := m.State(ctx, key)
		if err != nil {
			return ledger.Record{}, err
		}
		if rank[current] >= rank[target] {
			return ledger.Record{}, &reached{current: current}
		}
		if !Allowed(current, target) {
			return ledger.Record{}, &illegalMove{current: current}
		}
		from = current
		return ledger.Record{
			EventKey: key,
			Actor:    actor,
			Payload:  ledger.StateTransition{From: current, To: target},
		}, nil
	})
	if err == nil {
		m.logger.Info("state transition", "event_key", key, "from", from, "to", target)
		return target, nil
	}

	var done *reached
	if errors.As(err, &done) {
		return done.current, nil
	}
	var illegal *illegalMove
	if !errors.As(err, &illegal) {
		return "", err
	}
	return illegal.current, m.reject(ctx, key, illegal.current, target, actor)
}

// reject logs a refused move and returns its INVALID_TRANSITION error.
func (m *Machine) reject(ctx context.Context, key string, current, to domain.State, actor string) error {
	msg := fmt.Sprintf("invalid transition %s -> %s", current, to)
	if _, logErr := m.ledger.Append(ctx, ledger.Record{
		EventKey: key,
		Actor:    actor,
		Status:   ledger.StatusFail,
		Payload: ledger.LifecycleError{
			Error:     msg,
			Current:   current,
			Attempted: to,
		},
	}); logErr != nil {
		return logErr
	}

	m.logger.Warn("transition rejected", "event_key", key, "current", current, "attempted", to)
	return domain.NewInvalidTransition(key, msg)
}
