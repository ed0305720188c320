package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainSnapshot = "riskledger/snapshot/v1"
)

// HashBytes returns the SHA-256 hex digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CanonicalHash returns the SHA-256 hex digest of the canonical JSON of v.
// Used for payload hashes and determinism signatures, which are plain
// digests with no domain prefix.
func CanonicalHash(v any) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotID computes a content-addressed ID for a snapshot.
// The same event key, type and data always produce the same ID.
func SnapshotID(eventKey string, typ SnapshotType, data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	canonical, err := MarshalCanonical(map[string]any{
		"event_key": eventKey,
		"type":      string(typ),
		"data":      data,
	})
	if err != nil {
		return "", fmt.Errorf("SnapshotID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}

// IsHexDigest reports whether s looks like a SHA-256 hex digest.
func IsHexDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
