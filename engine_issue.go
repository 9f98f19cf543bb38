package phoneverify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/phoneverify/codestore"
	"github.com/MrEthical07/phoneverify/internal"
	"github.com/MrEthical07/phoneverify/internal/limiters"
)

// RequestCode canonicalizes raw, applies the purpose's account policy and
// issues a code. Authentication and reset require an existing owner;
// registration requires that nobody owns the number, and verify requires
// that no verified account owns it. Duplicate-allowed deployments skip the
// ownership checks. Custom purposes have no account policy.
func (e *Engine) RequestCode(ctx context.Context, raw string, purpose Purpose) (*IssueResult, error) {
	phone, err := e.Canonicalize(raw)
	if err != nil {
		e.metricInc(MetricCodeIssueFailure)
		e.emitAudit(ctx, auditEventCodeIssueFailure, false, auditRecord{purpose: purpose}, err, func() map[string]string {
			return map[string]string{
				"reason": "canonicalize",
			}
		})
		return nil, err
	}

	if err := e.checkAccountPolicy(ctx, phone, purpose); err != nil {
		e.metricInc(MetricCodeIssueFailure)
		e.emitAudit(ctx, auditEventCodeIssueFailure, false, auditRecord{phone: phone, purpose: purpose}, err, func() map[string]string {
			return map[string]string{
				"reason": "account_policy",
			}
		})
		return nil, err
	}

	return e.Issue(ctx, phone, purpose)
}

func (e *Engine) checkAccountPolicy(ctx context.Context, phone string, purpose Purpose) error {
	switch purpose {
	case PurposeAuth, PurposeReset:
		_, err := e.FindByPhone(ctx, phone)
		return err
	case PurposeRegistration, PurposeVerify:
		if e.config.Account.AllowDuplicatePhone {
			return nil
		}
		owner, err := e.FindByPhone(ctx, phone)
		if errors.Is(err, ErrAccountNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if purpose == PurposeRegistration || e.isVerified(*owner) {
			return ErrPhoneAlreadyRegistered
		}
		return nil
	default:
		return nil
	}
}

// Issue generates, persists and delivers a code for an already canonical
// number. The requesting source address is read from ctx, see
// WithSourceAddress.
func (e *Engine) Issue(ctx context.Context, phone string, purpose Purpose) (*IssueResult, error) {
	return e.IssueFrom(ctx, phone, purpose, SourceAddressFromContext(ctx))
}

// IssueFrom is Issue with an explicit source address. An empty source skips
// the per-source ceiling.
//
// The issuance event is recorded before the pending check, so rejected
// requests still count toward the ceilings. An AlreadyPending outcome
// refunds the event. A DeliveryFailed outcome refunds it for the target
// number only, so failed sends still count against the source. Once persistence starts the
// call runs to completion regardless of ctx cancellation; delivery is bounded
// by DeliveryConfig.SendTimeout.
func (e *Engine) IssueFrom(ctx context.Context, phone string, purpose Purpose, source string) (*IssueResult, error) {
	if e.store == nil || e.transport == nil {
		return nil, ErrEngineNotReady
	}
	if !purpose.Valid() {
		return nil, ErrInvalidPurpose
	}
	if phone == "" {
		return nil, ErrInvalidNumber
	}

	start := time.Now()
	rec := auditRecord{phone: phone, purpose: purpose}
	realm := RealmFromContext(ctx)
	now := e.clock.Now()

	recordID, err := internal.NewRecordID()
	if err != nil {
		return nil, fmt.Errorf("record id: %w", err)
	}
	rec.recordID = recordID

	// -------- ABUSE CHECK --------
	reservation, err := e.limiter.CheckAndRecord(ctx, realm, phone, source, recordID, now)
	if err != nil {
		mapped := mapIssuanceLimiterError(err)
		e.metricInc(MetricCodeIssueFailure)
		var abuse *AbuseError
		if errors.As(mapped, &abuse) {
			e.emitRateLimit(ctx, rec, abuse)
		} else {
			e.logger.ErrorContext(ctx, "issuance limiter failed", "error", err)
		}
		e.emitAudit(ctx, auditEventCodeIssueFailure, false, rec, mapped, nil)
		return nil, mapped
	}

	// Past this point partial work must be undone, not abandoned.
	ctx = context.WithoutCancel(ctx)

	code := e.config.Verification.TestCode
	isTest := e.isTestNumber(phone)
	if !isTest {
		code, err = internal.NewNumericCode(e.config.Verification.CodeDigits)
		if err != nil {
			e.refund(ctx, reservation)
			return nil, fmt.Errorf("generate code: %w", err)
		}
	}

	ttl := e.config.Verification.ttlFor(purpose)
	record := &codestore.Record{
		ID:          recordID,
		PhoneNumber: phone,
		Purpose:     string(purpose),
		Realm:       realm,
		CodeHash:    codestore.HashCode(code),
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}

	// -------- PERSIST --------
	if err := e.store.Insert(ctx, record, now); err != nil {
		e.refund(ctx, reservation)
		mapped := mapInsertError(err, now)
		e.metricInc(MetricCodeIssueFailure)
		if errors.Is(mapped, ErrAlreadyPending) {
			e.metricInc(MetricCodeAlreadyPending)
		} else {
			e.logger.ErrorContext(ctx, "code store insert failed", "error", err)
		}
		e.emitAudit(ctx, auditEventCodeIssueFailure, false, rec, mapped, nil)
		return nil, mapped
	}

	// -------- DELIVER --------
	if isTest {
		e.metricInc(MetricTestNumberIssued)
	} else if err := e.deliver(ctx, phone, code, purpose, ttl); err != nil {
		if relErr := e.store.Release(ctx, recordID); relErr != nil {
			e.logger.ErrorContext(ctx, "release undelivered code failed", "record_id", recordID, "error", relErr)
		}
		if err := e.limiter.RefundTarget(ctx, reservation); err != nil {
			e.logger.WarnContext(ctx, "issuance refund failed", "error", err)
		}
		e.metricInc(MetricCodeIssueFailure)
		e.metricInc(MetricDeliveryFailed)
		e.logger.WarnContext(ctx, "code delivery failed", "phone", MaskPhoneNumber(phone), "error", err)
		mapped := fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
		e.emitAudit(ctx, auditEventCodeIssueFailure, false, rec, mapped, nil)
		return nil, mapped
	}

	e.metricInc(MetricCodeIssued)
	e.metricObserve(MetricIssueLatency, time.Since(start))
	e.emitAudit(ctx, auditEventCodeIssued, true, rec, nil, func() map[string]string {
		return map[string]string{
			"ttl_seconds": strconv.Itoa(int(ttl / time.Second)),
			"test_number": strconv.FormatBool(isTest),
		}
	})

	return &IssueResult{
		RecordID:    recordID,
		PhoneNumber: phone,
		Purpose:     purpose,
		Code:        code,
		ExpiresAt:   record.ExpiresAt,
		ExpiresIn:   ttl,
		TestNumber:  isTest,
	}, nil
}

func (e *Engine) deliver(ctx context.Context, phone, code string, purpose Purpose, ttl time.Duration) error {
	sendCtx, cancel := context.WithTimeout(ctx, e.config.Delivery.SendTimeout)
	defer cancel()

	start := time.Now()
	err := e.transport.Send(sendCtx, phone, e.renderMessage(code, purpose, ttl))
	e.metricObserve(MetricDeliveryLatency, time.Since(start))
	return err
}

// renderMessage fills the message template. The expiry is rounded up to
// whole minutes so a 60 second code reads "1 minutes" rather than "0".
func (e *Engine) renderMessage(code string, purpose Purpose, ttl time.Duration) string {
	tmpl := e.config.Delivery.MessageTemplate
	if tmpl == "" {
		tmpl = DefaultMessageTemplate
	}
	sender := strings.ToUpper(strings.TrimSpace(e.config.Delivery.SenderName))
	if sender == "" {
		tmpl = strings.TrimPrefix(tmpl, "{sender}: ")
	}
	minutes := int((ttl + time.Minute - 1) / time.Minute)

	return strings.NewReplacer(
		"{sender}", sender,
		"{code}", code,
		"{purpose}", purpose.Label(),
		"{minutes}", strconv.Itoa(minutes),
	).Replace(tmpl)
}

func (e *Engine) refund(ctx context.Context, r *limiters.Reservation) {
	if err := e.limiter.Refund(ctx, r); err != nil {
		e.logger.WarnContext(ctx, "issuance refund failed", "error", err)
	}
}

func mapIssuanceLimiterError(err error) error {
	var limitErr *limiters.IssuanceLimitError
	switch {
	case errors.As(err, &limitErr):
		return &AbuseError{Subject: string(limitErr.Subject), Count: limitErr.Count, Max: limitErr.Max}
	case errors.Is(err, limiters.ErrIssuanceLimiterUnavailable):
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
}

func mapInsertError(err error, now time.Time) error {
	var pending *codestore.PendingError
	switch {
	case errors.As(err, &pending):
		return &PendingError{Remaining: pending.ExpiresAt.Sub(now), ExpiresAt: pending.ExpiresAt}
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
