package phonenumber

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidNumber matches numbers that cannot be parsed or fail numbering-plan rules.
	ErrInvalidNumber = errors.New("invalid phone number")
	// ErrNotAllowed matches numbers rejected by the operator allow pattern.
	ErrNotAllowed = errors.New("phone number not allowed")
)

// Reason is the diagnostic code attached to an *Error.
type Reason string

const (
	// ReasonUnparseable means the input could not be parsed at all.
	ReasonUnparseable Reason = "invalid"
	// ReasonValidationFailed means the number parsed but is not a valid number in its plan.
	ReasonValidationFailed Reason = "validation_failed"
	// ReasonNotSupported means the canonical form did not match the allow pattern.
	ReasonNotSupported Reason = "not_supported"
)

// Error describes a canonicalization failure.
type Error struct {
	Reason Reason
	Input  string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("phonenumber: %s: %q: %v", e.Reason, e.Input, e.Err)
	}
	return fmt.Sprintf("phonenumber: %s: %q", e.Reason, e.Input)
}

// Is reports whether e belongs to target's error kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidNumber:
		return e.Reason == ReasonUnparseable || e.Reason == ReasonValidationFailed
	case ErrNotAllowed:
		return e.Reason == ReasonNotSupported
	}
	return false
}

func (e *Error) Unwrap() error {
	return e.Err
}
