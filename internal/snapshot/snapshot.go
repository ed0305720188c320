// Package snapshot records market snapshots against events.
//
// Snapshot IDs are content addressed: the same event, type and data always
// produce the same ID, and recording a snapshot twice writes one entry.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/riskledger/internal/domain"
	"github.com/roach88/riskledger/internal/ledger"
	"github.com/roach88/riskledger/internal/mirror"
)

// Appender is the subset of the ledger the recorder writes through.
type Appender interface {
	AppendIf(ctx context.Context, rec ledger.Record, guard ledger.Guard) (string, error)
}

// Reader reads projected snapshots.
type Reader interface {
	Snapshot(ctx context.Context, id string) (mirror.Snapshot, bool, error)
	LatestSnapshot(ctx context.Context, key string, typ domain.SnapshotType) (mirror.Snapshot, bool, error)
}

var errExists = errors.New("snapshot exists")

// Recorder writes SNAPSHOT_CREATED entries.
type Recorder struct {
	ledger Appender
	reader Reader
	logger *slog.Logger
}

// New creates a Recorder. A nil logger uses slog.Default().
func New(l Appender, r Reader, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{ledger: l, reader: r, logger: logger}
}

// Record stores data as a snapshot of key and returns its ID. created is
// false when an identical snapshot was already recorded.
func (r *Recorder) Record(ctx context.Context, key string, typ domain.SnapshotType, data map[string]any, actor string) (id string, created bool, err error) {
	if key == "" {
		return "", false, domain.NewInvalidInput("event key is required")
	}
	if !typ.Valid() {
		return "", false, domain.NewInvalidInput(fmt.Sprintf("unknown snapshot type %q", typ))
	}
	if data == nil {
		data = map[string]any{}
	}

	id, err = domain.SnapshotID(key, typ, data)
	if err != nil {
		return "", false, domain.NewInvalidInput(fmt.Sprintf("snapshot data: %v", err))
	}

	_, err = r.ledger.AppendIf(ctx, ledger.Record{
		EventKey:   key,
		SnapshotID: id,
		Actor:      actor,
		Payload:    ledger.SnapshotCreated{Type: typ, Data: data},
	}, func(ctx context.Context) error {
		_, ok, err := r.reader.Snapshot(ctx, id)
		if err != nil {
			return err
		}
		if ok {
			return errExists
		}
		return nil
	})
	if errors.Is(err, errExists) {
		return id, false, nil
	}
	if err != nil {
		return "", false, err
	}

	r.logger.Info("snapshot recorded", "event_key", key, "snapshot_id", id, "type", typ)
	return id, true, nil
}

// Get returns the snapshot with the given ID.
func (r *Recorder) Get(ctx context.Context, id string) (mirror.Snapshot, bool, error) {
	return r.reader.Snapshot(ctx, id)
}

// Latest returns the newest snapshot of key, optionally of one type.
func (r *Recorder) Latest(ctx context.Context, key string, typ domain.SnapshotType) (mirror.Snapshot, bool, error) {
	return r.reader.LatestSnapshot(ctx, key, typ)
}
