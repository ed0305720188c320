package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/roach88/riskledger/internal/domain"
	"github.com/roach88/riskledger/internal/observability"
)

// Sink receives every durably written entry, in file order. The mirror is
// the production Sink.
type Sink interface {
	Apply(ctx context.Context, e Entry) error
}

// Guard is evaluated under the writer lock before an append. A non-nil
// return aborts the append and is returned to the caller unchanged.
type Guard func(ctx context.Context) error

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the timestamp source. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithIDGenerator sets the entry ID source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(l *Ledger) { l.ids = g }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithMetrics records append outcomes on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// Ledger appends entries to a JSONL file and mirrors them into a Sink.
//
// Thread-safety: all methods are safe for concurrent use. Appends are
// serialized by a single mutex, which defines the total order of entries.
type Ledger struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	sink    Sink
	clock   Clock
	ids     IDGenerator
	logger  *slog.Logger
	metrics *observability.Metrics

	// halted is the persistence failure that stopped the ledger, if any.
	halted error
}

// Open verifies the integrity of the file at path, creating it if needed,
// and returns a Ledger appending to it.
//
// Open never repairs a file. A file that does not end with '\n' returns
// CORRUPTION_DETECTED.
func Open(path string, sink Sink, opts ...Option) (*Ledger, error) {
	if sink == nil {
		return nil, errors.New("ledger: sink is required")
	}

	l := &Ledger{
		path:   path,
		sink:   sink,
		clock:  SystemClock{},
		ids:    UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := VerifyIntegrity(path); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, domain.NewPersistenceFailure("open ledger file", err)
	}
	l.file = f

	l.logger.Info("ledger opened", "path", path)
	return l, nil
}

// Path returns the ledger file path.
func (l *Ledger) Path() string { return l.path }

// Halted returns the persistence failure that stopped the ledger, or nil.
func (l *Ledger) Halted() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.halted
}

// Close closes the ledger file. Later appends fail.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Append writes rec and returns the new entry ID.
func (l *Ledger) Append(ctx context.Context, rec Record) (string, error) {
	return l.AppendIf(ctx, rec, nil)
}

// AppendIf writes rec only if guard returns nil. The guard runs under the
// writer lock, so no other append can land between the check and the write.
//
// The guard must not append to this ledger.
func (l *Ledger) AppendIf(ctx context.Context, rec Record, guard Guard) (string, error) {
	return l.AppendWith(ctx, func(ctx context.Context) (Record, error) {
		if guard != nil {
			if err := guard(ctx); err != nil {
				return Record{}, err
			}
		}
		return rec, nil
	})
}

// Decide builds the record to append from state read under the writer
// lock. A non-nil error aborts the append and is returned unchanged.
type Decide func(ctx context.Context) (Record, error)

// AppendWith runs decide under the writer lock and appends the record it
// returns. Use it when the record itself depends on current state, such as
// a transition that names the state it leaves.
//
// decide must not append to this ledger.
func (l *Ledger) AppendWith(ctx context.Context, decide Decide) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.halted != nil {
		return "", l.halted
	}
	if l.file == nil {
		return "", domain.NewPersistenceFailure("ledger is closed", nil)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rec, err := decide(ctx)
	if err != nil {
		return "", err
	}

	entry, err := NewEntry(rec, l.ids.Generate(), l.clock.Now())
	if err != nil {
		l.metrics.ObserveAppendFailure("validate")
		return "", err
	}
	line, err := EncodeLine(entry)
	if err != nil {
		l.metrics.ObserveAppendFailure("validate")
		return "", err
	}

	if _, err := l.file.Write(line); err != nil {
		return "", l.halt("write", err)
	}
	if err := l.file.Sync(); err != nil {
		return "", l.halt("sync", err)
	}
	// The line is durable; the mirror must see it even if the caller gives up.
	if err := l.sink.Apply(context.WithoutCancel(ctx), entry); err != nil {
		return "", l.halt("mirror", err)
	}

	l.metrics.ObserveAppend(string(entry.ActionType), string(entry.Status))
	l.logger.Debug("entry appended",
		"entry_id", entry.EntryID,
		"action_type", entry.ActionType,
		"event_key", entry.EventKey,
		"status", entry.Status,
		"token_delta", entry.TokenDelta,
	)
	return entry.EntryID, nil
}

// halt records a persistence failure and stops the ledger.
// Caller must hold l.mu.
func (l *Ledger) halt(stage string, cause error) error {
	err := domain.NewPersistenceFailure(fmt.Sprintf("ledger %s failed", stage), cause)
	l.halted = err
	l.metrics.ObserveAppendFailure(stage)
	l.logger.Error("ledger halted", "stage", stage, "error", cause)
	return err
}

// Entries streams every entry written before the call, in file order. The
// writer lock is held only to capture the file size, so appends made while
// fn runs are not seen and fn may append.
func (l *Ledger) Entries(ctx context.Context, fn func(line int, e Entry) error) error {
	l.mu.Lock()
	size, err := l.size()
	l.mu.Unlock()
	if err != nil {
		return err
	}

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return domain.NewPersistenceFailure("open ledger for read", err)
	}
	defer f.Close()
	return readEntries(ctx, io.LimitReader(f, size), fn)
}

// size returns the number of bytes appended so far.
// Caller must hold l.mu.
func (l *Ledger) size() (int64, error) {
	var (
		info os.FileInfo
		err  error
	)
	if l.file != nil {
		info, err = l.file.Stat()
	} else {
		info, err = os.Stat(l.path)
	}
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, domain.NewPersistenceFailure("stat ledger", err)
	}
	return info.Size(), nil
}

// NewEntry builds and validates the entry for rec.
func NewEntry(rec Record, id string, ts time.Time) (Entry, error) {
	if rec.Payload == nil {
		return Entry{}, domain.NewSchemaViolation("payload is required", nil)
	}
	if rec.EventKey == "" {
		return Entry{}, domain.NewSchemaViolation("event key is required", nil)
	}

	status := rec.Status
	if status == "" {
		status = StatusSuccess
	}
	if !status.Valid() {
		return Entry{}, domain.NewSchemaViolation(fmt.Sprintf("invalid status %q", status), nil)
	}
	if v, ok := rec.Payload.(validator); ok {
		if err := v.Validate(); err != nil {
			return Entry{}, domain.NewSchemaViolation(fmt.Sprintf("invalid %s payload", rec.Payload.ActionType()), err)
		}
	}

	payloadJSON, err := domain.MarshalCanonical(rec.Payload)
	if err != nil {
		return Entry{}, domain.NewSchemaViolation("payload is not canonicalizable", err)
	}

	snapshotID := rec.SnapshotID
	if snapshotID == "" {
		snapshotID = DefaultSnapshotID
	}
	actor := rec.Actor
	if actor == "" {
		actor = DefaultActor
	}

	return Entry{
		EntryID:       id,
		Timestamp:     ts.UTC(),
		ActionType:    rec.Payload.ActionType(),
		EventKey:      rec.EventKey,
		SnapshotID:    snapshotID,
		Status:        status,
		PayloadHash:   domain.HashBytes(payloadJSON),
		Payload:       rec.Payload,
		TokenDelta:    rec.TokenDelta,
		Actor:         actor,
		SchemaVersion: domain.SchemaVersion,
		PayloadJSON:   payloadJSON,
	}, nil
}

// EncodeLine renders e as a schema-valid, newline-terminated ledger line.
func EncodeLine(e Entry) ([]byte, error) {
	data, err := e.MarshalJSON()
	if err != nil {
		return nil, domain.NewSchemaViolation("entry is not encodable", err)
	}
	if err := ValidateLine(data); err != nil {
		return nil, domain.NewSchemaViolation("entry violates ledger schema", err)
	}
	return append(data, '\n'), nil
}

// VerifyIntegrity checks that a non-empty ledger file ends with '\n'.
// A missing file is an empty ledger.
func VerifyIntegrity(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return domain.NewPersistenceFailure("open ledger for integrity check", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.NewPersistenceFailure("stat ledger", err)
	}
	if info.Size() == 0 {
		return nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return domain.NewPersistenceFailure("read ledger tail", err)
	}
	if last[0] == '\n' {
		return nil
	}

	lines, err := countLines(f)
	if err != nil {
		return domain.NewPersistenceFailure("count ledger lines", err)
	}
	return domain.NewCorruption("ledger does not end with a newline", lines+1, nil)
}

// countLines counts '\n' bytes from the start of f.
func countLines(f *os.File) (int, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	buf := make([]byte, 32*1024)
	n := 0
	for {
		c, err := f.Read(buf)
		for _, b := range buf[:c] {
			if b == '\n' {
				n++
			}
		}
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, err
		}
	}
}
