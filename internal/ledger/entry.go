package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/riskledger/internal/domain"
)

// Status is the outcome recorded by an entry.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFail    Status = "FAIL"
)

// Valid reports whether s is SUCCESS or FAIL.
func (s Status) Valid() bool {
	return s == StatusSuccess || s == StatusFail
}

// Field defaults applied when a Record leaves them empty.
const (
	DefaultSnapshotID = "N/A"
	DefaultActor      = "system"
)

// Record is what callers append. The ledger fills in identity, timestamp,
// action type and payload hash.
type Record struct {
	EventKey   string
	SnapshotID string
	Status     Status
	Payload    Payload
	TokenDelta int64
	Actor      string
}

// Entry is one immutable ledger line.
type Entry struct {
	EntryID       string
	Timestamp     time.Time
	ActionType    ActionType
	EventKey      string
	SnapshotID    string
	Status        Status
	PayloadHash   string
	Payload       Payload
	TokenDelta    int64
	Actor         string
	SchemaVersion int

	// PayloadJSON is the canonical encoding of Payload that PayloadHash
	// covers.
	PayloadJSON json.RawMessage
}

// wireEntry is the on-disk shape of an Entry.
type wireEntry struct {
	EntryID       string          `json:"entry_id"`
	Timestamp     string          `json:"ts"`
	ActionType    ActionType      `json:"action_type"`
	EventKey      string          `json:"event_key"`
	SnapshotID    string          `json:"snapshot_id"`
	Status        Status          `json:"status"`
	PayloadHash   string          `json:"payload_hash"`
	Payload       json.RawMessage `json:"payload"`
	TokenDelta    int64           `json:"token_delta"`
	Actor         string          `json:"actor"`
	SchemaVersion int             `json:"schema_version"`
}

// FormatTimestamp renders t the way entries store it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// MarshalJSON encodes the entry as a single-line JSON object.
func (e Entry) MarshalJSON() ([]byte, error) {
	payload := e.PayloadJSON
	if len(payload) == 0 {
		var err error
		if payload, err = domain.MarshalCanonical(e.Payload); err != nil {
			return nil, fmt.Errorf("marshal entry payload: %w", err)
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(wireEntry{
		EntryID:       e.EntryID,
		Timestamp:     FormatTimestamp(e.Timestamp),
		ActionType:    e.ActionType,
		EventKey:      e.EventKey,
		SnapshotID:    e.SnapshotID,
		Status:        e.Status,
		PayloadHash:   e.PayloadHash,
		Payload:       payload,
		TokenDelta:    e.TokenDelta,
		Actor:         e.Actor,
		SchemaVersion: e.SchemaVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal entry: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalJSON decodes an entry and its typed payload. It does not verify
// the payload hash; see ParseLine.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		return fmt.Errorf("parse ts: %w", err)
	}

	payload, err := DecodePayload(w.ActionType, w.Payload)
	if err != nil {
		return err
	}

	*e = Entry{
		EntryID:       w.EntryID,
		Timestamp:     ts.UTC(),
		ActionType:    w.ActionType,
		EventKey:      w.EventKey,
		SnapshotID:    w.SnapshotID,
		Status:        w.Status,
		PayloadHash:   w.PayloadHash,
		Payload:       payload,
		TokenDelta:    w.TokenDelta,
		Actor:         w.Actor,
		SchemaVersion: w.SchemaVersion,
		PayloadJSON:   append(json.RawMessage(nil), w.Payload...),
	}
	return nil
}

// VerifyPayloadHash recomputes the canonical payload hash and compares it
// with the recorded one.
func (e Entry) VerifyPayloadHash() error {
	canonical, err := domain.MarshalCanonical(e.PayloadJSON)
	if err != nil {
		return fmt.Errorf("canonicalize payload: %w", err)
	}
	if got := domain.HashBytes(canonical); got != e.PayloadHash {
		return fmt.Errorf("payload hash mismatch: recorded %s, computed %s", e.PayloadHash, got)
	}
	return nil
}
