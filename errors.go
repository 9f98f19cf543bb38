package phoneverify

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/phoneverify/phonenumber"
	"github.com/MrEthical07/phoneverify/proof"
)

var (
	// ErrInvalidNumber matches unparseable numbers and numbers failing numbering-plan rules.
	ErrInvalidNumber = phonenumber.ErrInvalidNumber
	// ErrNumberNotAllowed matches numbers rejected by the operator allow pattern.
	ErrNumberNotAllowed = phonenumber.ErrNotAllowed
	// ErrAbuseDetected is returned when an issuance ceiling is reached. See [AbuseError].
	ErrAbuseDetected = errors.New("abuse detected")
	// ErrAlreadyPending is returned while a live code is outstanding. See [PendingError].
	ErrAlreadyPending = errors.New("verification code already pending")
	// ErrNoOngoingProcess is returned when no live code exists for the number and purpose.
	ErrNoOngoingProcess = errors.New("no ongoing verification process")
	// ErrCodeMismatch is returned when the submitted code is wrong.
	ErrCodeMismatch = errors.New("verification code mismatch")
	// ErrAlreadyConsumed is returned when a consumed code is consumed again.
	ErrAlreadyConsumed = errors.New("verification code already consumed")
	// ErrDeliveryFailed is returned when the transport could not send the code.
	ErrDeliveryFailed = errors.New("verification code delivery failed")
	// ErrAttemptsExceeded is returned when wrong submissions burned the code.
	ErrAttemptsExceeded = errors.New("verification attempts exceeded")
	// ErrAccountNotFound is returned when a purpose requires an existing account and none holds the number.
	ErrAccountNotFound = errors.New("no account holds this phone number")
	// ErrPhoneAlreadyRegistered is returned when a purpose requires the number to be unowned.
	ErrPhoneAlreadyRegistered = errors.New("phone number already registered")
	// ErrInvalidProof is returned for proofs failing signature, expiry or binding checks.
	ErrInvalidProof = proof.ErrInvalidProof
	// ErrProofDisabled is returned by ParseProof when proofs are not configured.
	ErrProofDisabled = errors.New("verification proofs disabled")

	// ErrUnknownRecord is a caller contract violation: the record id was never
	// issued, has been purged, or was never validated.
	ErrUnknownRecord = errors.New("unknown verification record")
	// ErrInvalidPurpose is returned for malformed purposes.
	ErrInvalidPurpose = errors.New("invalid verification purpose")
	// ErrEngineNotReady is returned when a required collaborator was not configured.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrStoreUnavailable wraps code store backend failures.
	ErrStoreUnavailable = errors.New("verification code store unavailable")
	// ErrLimiterUnavailable wraps rate limiter backend failures.
	ErrLimiterUnavailable = errors.New("issuance limiter unavailable")
	// ErrAccountStoreUnavailable wraps account store failures.
	ErrAccountStoreUnavailable = errors.New("account store unavailable")
)

// PendingError reports the live code blocking a new issuance.
type PendingError struct {
	Remaining time.Duration
	ExpiresAt time.Time
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("%v: expires in %ds", ErrAlreadyPending, e.RemainingSeconds())
}

func (e *PendingError) Is(target error) bool {
	return target == ErrAlreadyPending
}

// RemainingSeconds rounds the remaining lifetime up to whole seconds.
func (e *PendingError) RemainingSeconds() int {
	if e.Remaining <= 0 {
		return 0
	}
	return int((e.Remaining + time.Second - 1) / time.Second)
}

// AbuseError reports which issuance ceiling was hit.
type AbuseError struct {
	// Subject is "target" for the destination number or "source" for the request address.
	Subject string
	Count   int
	Max     int
}

func (e *AbuseError) Error() string {
	return fmt.Sprintf("%v: %s ceiling %d reached", ErrAbuseDetected, e.Subject, e.Max)
}

func (e *AbuseError) Is(target error) bool {
	return target == ErrAbuseDetected
}

// ErrorKind maps err to a stable machine-readable code for API responses
// and audit events. It returns "" for nil and "internal" for unrecognized errors.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNumberNotAllowed):
		return "not_allowed"
	case errors.Is(err, ErrInvalidNumber):
		return "invalid_number"
	case errors.Is(err, ErrAbuseDetected):
		return "abuse_detected"
	case errors.Is(err, ErrAlreadyPending):
		return "already_pending"
	case errors.Is(err, ErrNoOngoingProcess):
		return "no_ongoing_process"
	case errors.Is(err, ErrCodeMismatch):
		return "code_mismatch"
	case errors.Is(err, ErrAlreadyConsumed):
		return "already_consumed"
	case errors.Is(err, ErrDeliveryFailed):
		return "delivery_failed"
	case errors.Is(err, ErrAttemptsExceeded):
		return "attempts_exceeded"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrPhoneAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, ErrInvalidProof), errors.Is(err, proof.ErrPurposeMismatch):
		return "invalid_proof"
	case errors.Is(err, ErrInvalidPurpose):
		return "invalid_purpose"
	case errors.Is(err, ErrUnknownRecord):
		return "unknown_record"
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrLimiterUnavailable),
		errors.Is(err, ErrAccountStoreUnavailable):
		return "backend_unavailable"
	case errors.Is(err, ErrEngineNotReady), errors.Is(err, ErrProofDisabled):
		return "not_ready"
	default:
		return "internal"
	}
}
