package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/riskledger/internal/observability"
	"github.com/roach88/riskledger/internal/testutil"
)

// recordingSink collects applied entries in order.
type recordingSink struct {
	mu      sync.Mutex
	entries []Entry
	failOn  int // 1-based apply call that fails; 0 never fails
	calls   int
}

func (s *recordingSink) Apply(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failOn > 0 && s.calls == s.failOn {
		return errors.New("mirror unavailable")
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *recordingSink) snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

// openTestLedger opens a ledger in a temp dir with a deterministic clock
// and sequential entry IDs.
func openTestLedger(t *testing.T, sink Sink, opts ...Option) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	base := []Option{
		WithClock(testutil.NewDeterministicClock()),
		WithIDGenerator(testutil.NewSequenceIDGenerator("entry")),
		WithLogger(observability.Discard()),
	}
	l, err := Open(path, sink, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, path
}

func profileRecord(key, profile string) Record {
	return Record{EventKey: key, Payload: ProfileSet{Profile: domainProfile(profile)}}
}
