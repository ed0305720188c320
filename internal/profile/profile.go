// Package profile keeps the immutable risk profile of each event.
//
// A profile is set at most once per event key. Re-setting the same profile
// is a no-op; setting a different one is logged as a PROVIDER_ERROR entry
// and rejected with IMMUTABILITY_VIOLATION.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/riskledger/internal/domain"
	"github.com/roach88/riskledger/internal/ledger"
	"github.com/roach88/riskledger/internal/mirror"
)

// Outcome reports what SetProfile did.
type Outcome string

const (
	// OutcomeCreated means a new EVENT_PROFILE_SET entry was written.
	OutcomeCreated Outcome = "CREATED"
	// OutcomeUnchanged means the same profile was already set; nothing was written.
	OutcomeUnchanged Outcome = "UNCHANGED"
)

// Appender is the subset of the ledger the registry writes through.
type Appender interface {
	Append(ctx context.Context, rec ledger.Record) (string, error)
	AppendIf(ctx context.Context, rec ledger.Record, guard ledger.Guard) (string, error)
}

// Reader reads projected profiles.
type Reader interface {
	Profile(ctx context.Context, key string) (mirror.ProfileRecord, bool, error)
}

var errProfileExists = errors.New("profile already set")

// Registry sets and reads event profiles.
type Registry struct {
	ledger Appender
	reader Reader
	logger *slog.Logger
}

// New creates a Registry. A nil logger uses slog.Default().
func New(l Appender, r Reader, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{ledger: l, reader: r, logger: logger}
}

// SetProfile fixes the profile of key.
func (r *Registry) SetProfile(ctx context.Context, key string, profile domain.RiskProfile, actor string) (Outcome, error) {
	if key == "" {
		return "", domain.NewInvalidInput("event key is required")
	}
	if !profile.Valid() {
		return "", domain.NewInvalidInput(fmt.Sprintf("unknown risk profile %q", profile))
	}

	var existing domain.RiskProfile
	_, err := r.ledger.AppendIf(ctx, ledger.Record{
		EventKey: key,
		Actor:    actor,
		Payload:  ledger.ProfileSet{Profile: profile},
	}, func(ctx context.Context) error {
		rec, ok, err := r.reader.Profile(ctx, key)
		if err != nil {
			return err
		}
		if ok {
			existing = rec.Profile
			return errProfileExists
		}
		return nil
	})

	switch {
	case err == nil:
		r.logger.Info("profile set", "event_key", key, "profile", profile)
		return OutcomeCreated, nil
	case !errors.Is(err, errProfileExists):
		return "", err
	case existing == profile:
		return OutcomeUnchanged, nil
	}

	msg := fmt.Sprintf("profile is immutable: %s already set, refused %s", existing, profile)
	if _, logErr := r.ledger.Append(ctx, ledger.Record{
		EventKey: key,
		Actor:    actor,
		Status:   ledger.StatusFail,
		Payload: ledger.ProviderError{
			Existing:  existing,
			Attempted: profile,
			Message:   msg,
		},
	}); logErr != nil {
		return "", logErr
	}

	r.logger.Warn("profile change rejected", "event_key", key, "existing", existing, "attempted", profile)
	return "", domain.NewImmutability(key, msg)
}

// Profile returns the profile of key, if set.
func (r *Registry) Profile(ctx context.Context, key string) (domain.RiskProfile, bool, error) {
	rec, ok, err := r.reader.Profile(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	return rec.Profile, true, nil
}
