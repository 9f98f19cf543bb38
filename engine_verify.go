package phoneverify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/phoneverify/codestore"
	"github.com/MrEthical07/phoneverify/proof"
)

// Validate checks code against the live record for (phone, purpose) and
// returns its record id. It never consumes the record, so a client may
// retry after a mismatch until the code expires or, when MaxAttempts is
// set, is burned.
func (e *Engine) Validate(ctx context.Context, phone string, purpose Purpose, code string) (string, error) {
	if e.store == nil {
		return "", ErrEngineNotReady
	}
	if !purpose.Valid() {
		return "", ErrInvalidPurpose
	}

	rec := auditRecord{phone: phone, purpose: purpose}
	now := e.clock.Now()
	key := codestore.Key{Realm: RealmFromContext(ctx), PhoneNumber: phone, Purpose: string(purpose)}

	found, err := e.store.Check(ctx, key, codestore.HashCode(code), now, e.config.Verification.MaxAttempts)
	if err != nil {
		mapped := mapCheckError(err)
		switch {
		case errors.Is(mapped, ErrCodeMismatch):
			e.metricInc(MetricCodeMismatch)
		case errors.Is(mapped, ErrAttemptsExceeded):
			e.metricInc(MetricAttemptsExceeded)
		case errors.Is(mapped, ErrNoOngoingProcess):
			e.metricInc(MetricNoOngoingProcess)
		default:
			e.logger.ErrorContext(ctx, "code store check failed", "error", err)
		}
		e.emitAudit(ctx, auditEventCodeRejected, false, rec, mapped, nil)
		return "", mapped
	}

	rec.recordID = found.ID
	e.metricInc(MetricCodeValidated)
	e.emitAudit(ctx, auditEventCodeValidated, true, rec, nil, nil)
	return found.ID, nil
}

// Consume marks recordID used. Only a record that passed Validate can be
// consumed; any other id, including a live record nobody validated, is
// ErrUnknownRecord. A second Consume of the same record returns
// ErrAlreadyConsumed; consuming a record that expired or was superseded
// returns ErrNoOngoingProcess.
func (e *Engine) Consume(ctx context.Context, recordID string) error {
	if e.store == nil {
		return ErrEngineNotReady
	}
	if recordID == "" {
		return ErrUnknownRecord
	}

	rec := auditRecord{recordID: recordID}
	if err := e.store.Consume(ctx, recordID, e.clock.Now()); err != nil {
		mapped := mapConsumeError(err)
		if errors.Is(mapped, ErrAlreadyConsumed) {
			e.metricInc(MetricCodeReplay)
			e.emitAudit(ctx, auditEventCodeReplay, false, rec, mapped, nil)
			return mapped
		}
		switch {
		case errors.Is(mapped, ErrStoreUnavailable):
			e.logger.ErrorContext(ctx, "code store consume failed", "error", err)
		case errors.Is(err, codestore.ErrNotValidated):
			e.logger.WarnContext(ctx, "consume of unvalidated record", "record_id", recordID)
		}
		e.emitAudit(ctx, auditEventCodeConsumed, false, rec, mapped, nil)
		return mapped
	}

	e.metricInc(MetricCodeConsumed)
	e.emitAudit(ctx, auditEventCodeConsumed, true, rec, nil, nil)
	return nil
}

// Verify validates and consumes in one step. With proofs enabled the result
// carries a signed token naming the number, the purpose and, for purposes
// tied to an existing account, the owning account.
func (e *Engine) Verify(ctx context.Context, phone string, purpose Purpose, code string) (*Verification, error) {
	recordID, err := e.Validate(ctx, phone, purpose, code)
	if err != nil {
		return nil, err
	}

	var accountID string
	if e.proofs != nil && e.accounts != nil && (purpose == PurposeAuth || purpose == PurposeReset) {
		owner, err := e.FindByPhone(ctx, phone)
		switch {
		case err == nil:
			accountID = owner.ID
		case errors.Is(err, ErrAccountNotFound):
		default:
			return nil, err
		}
	}

	if err := e.Consume(ctx, recordID); err != nil {
		return nil, err
	}

	v := &Verification{
		RecordID:    recordID,
		PhoneNumber: phone,
		Purpose:     purpose,
		AccountID:   accountID,
		VerifiedAt:  e.clock.Now(),
	}
	if e.proofs != nil {
		token, err := e.proofs.Create(phone, string(purpose), recordID, accountID)
		if err != nil {
			return nil, fmt.Errorf("sign proof: %w", err)
		}
		v.Proof = token
	}
	return v, nil
}

// Pending returns how long the live code for (phone, purpose) remains
// valid, or ErrNoOngoingProcess.
func (e *Engine) Pending(ctx context.Context, phone string, purpose Purpose) (time.Duration, error) {
	if e.store == nil {
		return 0, ErrEngineNotReady
	}
	if !purpose.Valid() {
		return 0, ErrInvalidPurpose
	}

	now := e.clock.Now()
	key := codestore.Key{Realm: RealmFromContext(ctx), PhoneNumber: phone, Purpose: string(purpose)}
	rec, err := e.store.Pending(ctx, key, now)
	if err != nil {
		if errors.Is(err, codestore.ErrNotFound) {
			return 0, ErrNoOngoingProcess
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return rec.ExpiresAt.Sub(now), nil
}

// ParseProof verifies a proof issued by Verify for purpose.
func (e *Engine) ParseProof(token string, purpose Purpose) (*proof.Claims, error) {
	if e.proofs == nil {
		return nil, ErrProofDisabled
	}
	return e.proofs.Parse(token, string(purpose))
}

func mapCheckError(err error) error {
	switch {
	case errors.Is(err, codestore.ErrNotFound):
		return ErrNoOngoingProcess
	case errors.Is(err, codestore.ErrMismatch):
		return ErrCodeMismatch
	case errors.Is(err, codestore.ErrAttemptsExceeded):
		return ErrAttemptsExceeded
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func mapConsumeError(err error) error {
	switch {
	case errors.Is(err, codestore.ErrConsumed):
		return ErrAlreadyConsumed
	case errors.Is(err, codestore.ErrExpired):
		return ErrNoOngoingProcess
	case errors.Is(err, codestore.ErrUnknownRecord):
		return ErrUnknownRecord
	case errors.Is(err, codestore.ErrNotValidated):
		return fmt.Errorf("%w: record was never validated", ErrUnknownRecord)
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
