package phoneverify

import (
	"context"
	"strconv"
	"time"
)

const (
	auditEventCodeIssued         = "code_issued"
	auditEventCodeIssueFailure   = "code_issue_failure"
	auditEventCodeValidated      = "code_validated"
	auditEventCodeRejected       = "code_rejected"
	auditEventCodeConsumed       = "code_consumed"
	auditEventCodeReplay         = "code_replay"
	auditEventPhoneBound         = "phone_bound"
	auditEventRateLimitTriggered = "rate_limit_triggered"
)

// auditRecord carries the identifying fields of one audit event.
type auditRecord struct {
	phone     string
	purpose   Purpose
	recordID  string
	accountID string
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	rec auditRecord,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:     time.Now().UTC(),
		EventType:     eventType,
		Realm:         RealmFromContext(ctx),
		PhoneNumber:   MaskPhoneNumber(rec.phone),
		Purpose:       string(rec.purpose),
		RecordID:      rec.recordID,
		AccountID:     rec.accountID,
		SourceAddress: SourceAddressFromContext(ctx),
		Success:       success,
		Metadata:      metadata,
	}
	if err != nil {
		event.Error = ErrorKind(err)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, rec auditRecord, abuse *AbuseError) {
	e.metricInc(MetricAbuseDetected)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, rec, abuse, func() map[string]string {
		return map[string]string{
			"scope": abuse.Subject,
			"max":   strconv.Itoa(abuse.Max),
		}
	})
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}
