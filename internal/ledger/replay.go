package ledger

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/roach88/riskledger/internal/domain"
)

// ParseLine decodes and verifies one ledger line (without its newline).
func ParseLine(data []byte) (Entry, error) {
	if err := ValidateLine(data); err != nil {
		return Entry{}, err
	}
	var e Entry
	if err := e.UnmarshalJSON(data); err != nil {
		return Entry{}, err
	}
	if err := e.VerifyPayloadHash(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// ReadEntries streams every entry of the ledger file at path to fn, in file
// order, with its 1-based line number. Blank lines are skipped. A missing
// file has no entries.
//
// The first line that fails to parse, validate or hash-check stops the read
// with CORRUPTION_DETECTED. An error returned by fn stops it unchanged.
func ReadEntries(ctx context.Context, path string, fn func(line int, e Entry) error) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return domain.NewPersistenceFailure("open ledger for read", err)
	}
	defer f.Close()
	return readEntries(ctx, f, fn)
}

// readEntries streams the entries in src. See ReadEntries.
func readEntries(ctx context.Context, src io.Reader, fn func(line int, e Entry) error) error {
	r := bufio.NewReaderSize(src, 64*1024)
	lineNo := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, readErr := r.ReadBytes('\n')
		if len(data) > 0 {
			lineNo++
			if data[len(data)-1] != '\n' {
				return domain.NewCorruption("ledger does not end with a newline", lineNo, nil)
			}
			if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 {
				e, err := ParseLine(trimmed)
				if err != nil {
					return domain.NewCorruption("invalid ledger line", lineNo, err)
				}
				if err := fn(lineNo, e); err != nil {
					return err
				}
			}
		}

		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return domain.NewPersistenceFailure("read ledger", readErr)
		}
	}
}

// CountEntries returns the number of valid entries in the ledger at path.
func CountEntries(ctx context.Context, path string) (int, error) {
	n := 0
	err := ReadEntries(ctx, path, func(int, Entry) error {
		n++
		return nil
	})
	return n, err
}

// Rehydrate replays the ledger at path into sink and returns the number of
// entries applied. sink must be empty.
func Rehydrate(ctx context.Context, path string, sink Sink) (int, error) {
	n := 0
	err := ReadEntries(ctx, path, func(line int, e Entry) error {
		if err := sink.Apply(ctx, e); err != nil {
			perr := domain.NewPersistenceFailure(fmt.Sprintf("mirror rejected entry %s", e.EntryID), err)
			perr.Line = line
			return perr
		}
		n++
		return nil
	})
	return n, err
}
