package services

import (
	"errors"
	"fmt"
)

// ReasonError pairs a sentinel error with a message safe to show to the caller.
type ReasonError struct {
	kind   error
	reason string
}

func newReasonError(kind error, format string, args ...any) error {
	return &ReasonError{kind: kind, reason: fmt.Sprintf(format, args...)}
}

func (e *ReasonError) Error() string {
	return fmt.Sprintf("%v: %s", e.kind, e.reason)
}

func (e *ReasonError) Unwrap() error {
	return e.kind
}

// Reason returns the caller-facing message.
func (e *ReasonError) Reason() string {
	return e.reason
}

// ErrorReason extracts the caller-facing message from err, if it carries one.
func ErrorReason(err error) (string, bool) {
	var reasonErr *ReasonError
	if errors.As(err, &reasonErr) {
		return reasonErr.reason, true
	}
	return "", false
}
