package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/phoneverify/internal/rate"
	"github.com/redis/go-redis/v9"
)

var (
	ErrIssuanceRateLimited        = errors.New("issuance rate limited")
	ErrIssuanceLimiterUnavailable = errors.New("issuance limiter unavailable")
)

// Subject names which counter rejected an issuance.
type Subject string

const (
	SubjectTarget Subject = "target"
	SubjectSource Subject = "source"
)

// IssuanceLimitError carries the rejecting subject and its window count.
type IssuanceLimitError struct {
	Subject Subject
	Count   int
	Max     int
}

func (e *IssuanceLimitError) Error() string {
	return fmt.Sprintf("issuance rate limited by %s: %d of %d in window", e.Subject, e.Count, e.Max)
}

func (e *IssuanceLimitError) Is(target error) bool {
	return target == ErrIssuanceRateLimited
}

type IssuanceConfig struct {
	Window    time.Duration
	TargetMax int
	SourceMax int
	Prefix    string
}

// Reservation is a recorded issuance event that can be refunded.
type Reservation struct {
	// keys[0] is the target key; the source key follows when recorded.
	keys   []string
	member string
}

// IssuanceLimiter caps code issuance per destination number and per source
// address over a rolling window.
type IssuanceLimiter struct {
	log    *rate.SlidingLog
	config IssuanceConfig
}

func NewIssuanceLimiter(redisClient redis.UniversalClient, cfg IssuanceConfig) *IssuanceLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "pvl"
	}
	return &IssuanceLimiter{
		log:    rate.NewSlidingLog(redisClient, cfg.Window),
		config: cfg,
	}
}

// CheckAndRecord records one issuance event for target and, when source is
// non-empty and SourceMax is positive, for source. Nothing is recorded when
// either ceiling would be exceeded.
func (l *IssuanceLimiter) CheckAndRecord(ctx context.Context, realm, target, source, member string, now time.Time) (*Reservation, error) {
	if l == nil {
		return nil, nil
	}

	subjects := []rate.Subject{{Key: issuanceTargetKey(l.config.Prefix, realm, target), Max: l.config.TargetMax}}
	if source != "" && l.config.SourceMax > 0 {
		subjects = append(subjects, rate.Subject{Key: issuanceSourceKey(l.config.Prefix, realm, source), Max: l.config.SourceMax})
	}

	if _, err := l.log.Reserve(ctx, subjects, member, now); err != nil {
		var lerr *rate.LimitError
		if errors.As(err, &lerr) {
			subject := SubjectTarget
			if lerr.Index == 1 {
				subject = SubjectSource
			}
			return nil, &IssuanceLimitError{Subject: subject, Count: lerr.Count, Max: lerr.Max}
		}
		return nil, fmt.Errorf("%w: %v", ErrIssuanceLimiterUnavailable, err)
	}

	keys := make([]string, len(subjects))
	for i, s := range subjects {
		keys[i] = s.Key
	}
	return &Reservation{keys: keys, member: member}, nil
}

// Refund removes a recorded event, for issuances that did not deliver a code.
func (l *IssuanceLimiter) Refund(ctx context.Context, r *Reservation) error {
	if l == nil || r == nil {
		return nil
	}
	if err := l.log.Cancel(ctx, r.keys, r.member); err != nil {
		return fmt.Errorf("%w: %v", ErrIssuanceLimiterUnavailable, err)
	}
	return nil
}

// RefundTarget removes the event from the target counter only. The source
// counter keeps it.
func (l *IssuanceLimiter) RefundTarget(ctx context.Context, r *Reservation) error {
	if l == nil || r == nil || len(r.keys) == 0 {
		return nil
	}
	if err := l.log.Cancel(ctx, r.keys[:1], r.member); err != nil {
		return fmt.Errorf("%w: %v", ErrIssuanceLimiterUnavailable, err)
	}
	return nil
}

// SourceCount reports how many issuances source has in the current window.
func (l *IssuanceLimiter) SourceCount(ctx context.Context, realm, source string, now time.Time) (int, error) {
	if l == nil {
		return 0, nil
	}
	n, err := l.log.Count(ctx, issuanceSourceKey(l.config.Prefix, realm, source), now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIssuanceLimiterUnavailable, err)
	}
	return n, nil
}

// TargetCount reports how many issuances target has in the current window.
func (l *IssuanceLimiter) TargetCount(ctx context.Context, realm, target string, now time.Time) (int, error) {
	if l == nil {
		return 0, nil
	}
	n, err := l.log.Count(ctx, issuanceTargetKey(l.config.Prefix, realm, target), now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIssuanceLimiterUnavailable, err)
	}
	return n, nil
}

func issuanceTargetKey(prefix, realm, target string) string {
	return prefix + ":t:" + normalizeRealm(realm) + ":" + target
}

func issuanceSourceKey(prefix, realm, source string) string {
	return prefix + ":s:" + normalizeRealm(realm) + ":" + source
}

func normalizeRealm(realm string) string {
	if realm == "" {
		return "0"
	}
	return realm
}
