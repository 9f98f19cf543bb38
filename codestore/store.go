// Package codestore defines the persistence contract for verification-code
// records. Implementations live in internal/stores (Redis) and pgstore
// (PostgreSQL); the engine depends only on Store.
package codestore

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound means no live record exists for the key.
	ErrNotFound = errors.New("codestore: no live record")
	// ErrMismatch means a live record exists but the submitted code differs.
	ErrMismatch = errors.New("codestore: code mismatch")
	// ErrAttemptsExceeded means the mismatch exhausted the attempt ceiling and the record was burned.
	ErrAttemptsExceeded = errors.New("codestore: attempts exceeded")
	// ErrConsumed means the record was already consumed.
	ErrConsumed = errors.New("codestore: record already consumed")
	// ErrExpired means the record exists but is no longer live.
	ErrExpired = errors.New("codestore: record expired")
	// ErrUnknownRecord means the id was never issued or has been purged.
	ErrUnknownRecord = errors.New("codestore: unknown record")
	// ErrNotValidated means the record is live but no correct code was ever
	// submitted against it.
	ErrNotValidated = errors.New("codestore: record not validated")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("codestore: backend unavailable")
)

// Record is one issued verification code.
type Record struct {
	ID          string
	PhoneNumber string
	Purpose     string
	Realm       string
	CodeHash    [32]byte
	Attempts    int
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Key identifies the (realm, phone number, purpose) slot holding at most one live record.
type Key struct {
	Realm       string
	PhoneNumber string
	Purpose     string
}

// Key returns the slot r occupies.
func (r *Record) Key() Key {
	return Key{Realm: r.Realm, PhoneNumber: r.PhoneNumber, Purpose: r.Purpose}
}

// PendingError is returned by Insert when a live record already occupies the slot.
type PendingError struct {
	ID        string
	ExpiresAt time.Time
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("codestore: live record %s pending until %s", e.ID, e.ExpiresAt.UTC().Format(time.RFC3339))
}

// Store persists verification-code records.
//
// Insert must be atomic with respect to concurrent Inserts for the same Key:
// at most one caller wins while a live record exists, and losers receive a
// *PendingError. Expired or consumed records never block an Insert.
type Store interface {
	Insert(ctx context.Context, rec *Record, now time.Time) error
	// Check compares codeHash against the live record for key. A match marks
	// the record validated. A mismatch increments the attempt counter; when
	// maxAttempts > 0 and the counter reaches it, the record is burned.
	Check(ctx context.Context, key Key, codeHash [32]byte, now time.Time, maxAttempts int) (*Record, error)
	// Pending returns the live record for key or ErrNotFound.
	Pending(ctx context.Context, key Key, now time.Time) (*Record, error)
	// Consume marks a validated record consumed. Replays return ErrConsumed
	// and a live record that was never validated returns ErrNotValidated.
	Consume(ctx context.Context, id string, now time.Time) error
	// Release deletes a live record that was never delivered.
	Release(ctx context.Context, id string) error
}

// HashCode returns the digest stored in place of a plaintext code.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// Equal compares two digests in constant time.
func Equal(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
