package engine

import (
	"errors"
	"fmt"
)

// Kind classifies an engine failure. Every failure is scoped to the
// single operation that produced it; nothing here is fatal.
type Kind string

const (
	KindAuthenticationFailed Kind = "authentication_failed"
	KindAlreadyRecorded      Kind = "already_recorded"
	KindSessionClosed        Kind = "session_closed"
	KindInvalidTransition    Kind = "invalid_transition"
	KindBiometricNotEnrolled Kind = "biometric_not_enrolled"
	KindVerificationFailed   Kind = "verification_failed"
	KindUnsupportedPlatform  Kind = "unsupported_platform"
	KindRecordRejected       Kind = "record_rejected"
	KindNotFound             Kind = "not_found"
)

// Error carries a machine-readable kind plus a user-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func failf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the failure kind, or "" for non-engine errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
