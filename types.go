package phoneverify

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Purpose scopes a verification code. At most one live code exists per
// (phone number, purpose) pair.
type Purpose string

const (
	// PurposeRegistration verifies a number before an account is created with it.
	PurposeRegistration Purpose = "registration"
	// PurposeAuth signs in an existing account holding the number.
	PurposeAuth Purpose = "auth"
	// PurposeReset proves control of an existing account's number for a credential reset.
	PurposeReset Purpose = "reset"
	// PurposeVerify confirms a number being attached to an existing account.
	PurposeVerify Purpose = "verify"
)

var purposePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

var purposeAliases = map[string]Purpose{
	"registration":   PurposeRegistration,
	"register":       PurposeRegistration,
	"auth":           PurposeAuth,
	"login":          PurposeAuth,
	"otp":            PurposeAuth,
	"reset":          PurposeReset,
	"password_reset": PurposeReset,
	"verify":         PurposeVerify,
	"via":            PurposeVerify,
}

// ParsePurpose normalizes s, accepting the legacy upper-case names
// (REGISTRATION, LOGIN, PASSWORD_RESET, VIA, ...). Unknown but well-formed
// names are returned as custom purposes.
func ParsePurpose(s string) (Purpose, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	if p, ok := purposeAliases[norm]; ok {
		return p, nil
	}
	p := Purpose(norm)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPurpose, s)
	}
	return p, nil
}

// Valid reports whether p is usable as a key component.
func (p Purpose) Valid() bool {
	return purposePattern.MatchString(string(p))
}

// Label is the human wording used in outgoing messages.
func (p Purpose) Label() string {
	switch p {
	case PurposeRegistration:
		return "registration"
	case PurposeAuth:
		return "authentication"
	case PurposeReset:
		return "password reset"
	case PurposeVerify:
		return "verification"
	default:
		return strings.ReplaceAll(string(p), "_", " ")
	}
}

// Account is a read-only view of an identity-store account.
type Account struct {
	ID         string
	Attributes map[string][]string
}

// Attribute returns the first value of name, or "".
func (a Account) Attribute(name string) string {
	if vs := a.Attributes[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// AccountStore looks accounts up by exact attribute value.
type AccountStore interface {
	FindByAttribute(ctx context.Context, name, value string) ([]Account, error)
}

// Transport delivers a text message to a phone number. Implementations
// should honor ctx cancellation; the engine bounds each call with
// DeliveryConfig.SendTimeout.
type Transport interface {
	Send(ctx context.Context, destination, body string) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, destination, body string) error

func (f TransportFunc) Send(ctx context.Context, destination, body string) error {
	return f(ctx, destination, body)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// IssueResult describes a freshly issued code.
type IssueResult struct {
	RecordID    string
	PhoneNumber string
	Purpose     Purpose
	// Code is the plaintext code. It is returned for in-process callers and
	// tests and must never be sent back to the requesting client.
	Code      string
	ExpiresAt time.Time
	ExpiresIn time.Duration
	// TestNumber is set when delivery was skipped for a designated test number.
	TestNumber bool
}

// ExpiresInSeconds returns the TTL in whole seconds for countdown display.
func (r *IssueResult) ExpiresInSeconds() int {
	return int(r.ExpiresIn / time.Second)
}

// Verification is the outcome of a successful Verify.
type Verification struct {
	RecordID    string
	PhoneNumber string
	Purpose     Purpose
	// AccountID is the owning account for authentication and reset purposes.
	AccountID  string
	VerifiedAt time.Time
	// Proof is a signed token asserting the verification. Empty when proofs are disabled.
	Proof string
}

// PhoneBinding is the decision for attaching a verified number to an account.
// The engine never mutates accounts; the caller applies the binding.
type PhoneBinding struct {
	AccountID   string
	PhoneNumber string
	// Attributes are the values to write on AccountID.
	Attributes map[string]string
	// ClearFrom lists other accounts holding the number that must lose it.
	// Always empty when duplicate phone numbers are allowed.
	ClearFrom []string
	// AlreadyBound reports that AccountID already held the number verified.
	AlreadyBound bool
}
