package domain

import (
	"errors"
	"fmt"
)

// Error is the single error type crossing component boundaries.
//
// Kinds split into two classes:
//   - Fatal: CorruptionDetected, PersistenceFailure. The process must not
//     continue using the ledger after one of these.
//   - Rejections: everything else. The caller's operation did not happen;
//     the ledger stays usable.
type Error struct {
	// Kind identifies the error category.
	Kind ErrorKind

	// Message is a human-readable description.
	Message string

	// EventKey identifies the affected event, if any.
	EventKey string

	// Line is the 1-based ledger line for corruption errors.
	Line int

	// Err is the underlying cause, if any.
	Err error
}

// ErrorKind categorizes errors.
type ErrorKind string

const (
	// KindSchemaViolation indicates a malformed ledger entry. No write occurred.
	KindSchemaViolation ErrorKind = "SCHEMA_VIOLATION"

	// KindCorruption indicates a partial trailing line or an unparseable line.
	KindCorruption ErrorKind = "CORRUPTION_DETECTED"

	// KindImmutability indicates an attempt to change an already-set profile.
	KindImmutability ErrorKind = "IMMUTABILITY_VIOLATION"

	// KindInvalidTransition indicates a lifecycle rule violation.
	KindInvalidTransition ErrorKind = "INVALID_TRANSITION"

	// KindInsufficientTokens indicates a spend larger than the balance.
	KindInsufficientTokens ErrorKind = "INSUFFICIENT_TOKENS"

	// KindPersistence indicates the file sync or mirror write failed.
	KindPersistence ErrorKind = "PERSISTENCE_FAILURE"

	// KindContractViolation indicates a result that fails the output contract.
	KindContractViolation ErrorKind = "CONTRACT_VIOLATION"

	// KindInvalidInput indicates a caller-supplied value outside its domain.
	KindInvalidInput ErrorKind = "INVALID_INPUT"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.EventKey != "" {
		msg += fmt.Sprintf(" (event=%s)", e.EventKey)
	}
	if e.Line > 0 {
		msg += fmt.Sprintf(" (line=%d)", e.Line)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsFatal reports whether err must halt use of the ledger.
func IsFatal(err error) bool {
	k := KindOf(err)
	return k == KindCorruption || k == KindPersistence
}

// NewSchemaViolation creates an Error for a malformed entry.
func NewSchemaViolation(msg string, cause error) *Error {
	return &Error{Kind: KindSchemaViolation, Message: msg, Err: cause}
}

// NewCorruption creates an Error for a corrupted ledger file.
func NewCorruption(msg string, line int, cause error) *Error {
	return &Error{Kind: KindCorruption, Message: msg, Line: line, Err: cause}
}

// NewPersistenceFailure creates an Error for a failed durable write.
func NewPersistenceFailure(msg string, cause error) *Error {
	return &Error{Kind: KindPersistence, Message: msg, Err: cause}
}

// NewInvalidInput creates an Error for a caller-supplied value outside its domain.
func NewInvalidInput(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Message: msg}
}

// NewContractViolation creates an Error for a result failing its contract.
func NewContractViolation(msg string, cause error) *Error {
	return &Error{Kind: KindContractViolation, Message: msg, Err: cause}
}

// NewImmutability creates an Error for an attempt to overwrite a profile.
func NewImmutability(eventKey, msg string) *Error {
	return &Error{Kind: KindImmutability, Message: msg, EventKey: eventKey}
}

// NewInvalidTransition creates an Error for a disallowed lifecycle move.
func NewInvalidTransition(eventKey, msg string) *Error {
	return &Error{Kind: KindInvalidTransition, Message: msg, EventKey: eventKey}
}

// NewInsufficientTokens creates an Error for a spend above the balance.
func NewInsufficientTokens(eventKey, msg string) *Error {
	return &Error{Kind: KindInsufficientTokens, Message: msg, EventKey: eventKey}
}
