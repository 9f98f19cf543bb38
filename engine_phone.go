package phoneverify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/phoneverify/internal/identity"
)

// Canonicalize normalizes raw user input with the configured default region.
func (e *Engine) Canonicalize(raw string) (string, error) {
	n, err := e.canonicalizer.Canonicalize(raw)
	if err != nil {
		e.countCanonicalizeFailure(err)
		return "", err
	}
	return n, nil
}

// CanonicalizeIn normalizes raw input assuming region when it carries no
// country code.
func (e *Engine) CanonicalizeIn(raw, region string) (string, error) {
	n, err := e.canonicalizer.CanonicalizeIn(raw, region)
	if err != nil {
		e.countCanonicalizeFailure(err)
		return "", err
	}
	return n, nil
}

func (e *Engine) countCanonicalizeFailure(err error) {
	if errors.Is(err, ErrNumberNotAllowed) {
		e.metricInc(MetricNumberNotAllowed)
		return
	}
	e.metricInc(MetricInvalidNumber)
}

// FindByPhone returns the single account owning canonical. When several
// accounts claim the number, verified owners win, then "+"-prefixed stored
// values, then the account matched by the most canonical spelling, then the
// lowest ID.
func (e *Engine) FindByPhone(ctx context.Context, canonical string) (*Account, error) {
	matches, err := e.accountsForPhone(ctx, canonical)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrAccountNotFound
	}
	best := matches[0]
	return &best, nil
}

// BindPhone decides how a freshly verified number attaches to accountID.
// Unless duplicate numbers are allowed, every other account holding the
// number is listed in ClearFrom. The caller applies the decision.
func (e *Engine) BindPhone(ctx context.Context, accountID, canonical string) (*PhoneBinding, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, ErrAccountNotFound
	}
	if canonical == "" {
		return nil, ErrInvalidNumber
	}

	matches, err := e.accountsForPhone(ctx, canonical)
	if err != nil {
		e.emitAudit(ctx, auditEventPhoneBound, false, auditRecord{phone: canonical, accountID: accountID}, err, nil)
		return nil, err
	}

	binding := &PhoneBinding{
		AccountID:   accountID,
		PhoneNumber: canonical,
		Attributes: map[string]string{
			e.config.Account.PhoneAttribute:    canonical,
			e.config.Account.VerifiedAttribute: "true",
		},
	}
	for _, m := range matches {
		if m.ID == accountID {
			binding.AlreadyBound = e.isVerified(m) && m.Attribute(e.config.Account.PhoneAttribute) == canonical
			continue
		}
		if !e.config.Account.AllowDuplicatePhone {
			binding.ClearFrom = append(binding.ClearFrom, m.ID)
		}
	}

	e.metricInc(MetricPhoneBound)
	e.emitAudit(ctx, auditEventPhoneBound, true, auditRecord{phone: canonical, accountID: accountID}, nil, func() map[string]string {
		return map[string]string{
			"cleared":       fmt.Sprint(len(binding.ClearFrom)),
			"already_bound": fmt.Sprint(binding.AlreadyBound),
		}
	})
	return binding, nil
}

// accountsForPhone returns every account holding canonical, best first.
func (e *Engine) accountsForPhone(ctx context.Context, canonical string) ([]Account, error) {
	if e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	numbers := []string{canonical}
	if e.config.Phone.CompatibilityMode {
		equiv, err := e.canonicalizer.Equivalents(canonical)
		if err != nil {
			return nil, err
		}
		for _, v := range equiv {
			if v != canonical {
				numbers = append(numbers, v)
			}
		}
	}

	attr := e.config.Account.PhoneAttribute
	matches, err := identity.Rank(ctx, numbers,
		func(ctx context.Context, number string) ([]Account, error) {
			return e.accounts.FindByAttribute(ctx, attr, number)
		},
		e.accountTraits,
	)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		e.logger.ErrorContext(ctx, "account lookup failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrAccountStoreUnavailable, err)
	}
	return matches, nil
}

func (e *Engine) accountTraits(a Account) identity.Traits {
	plus := false
	for _, v := range a.Attributes[e.config.Account.PhoneAttribute] {
		if strings.HasPrefix(v, "+") {
			plus = true
			break
		}
	}
	return identity.Traits{
		ID:           a.ID,
		Verified:     e.isVerified(a),
		PlusPrefixed: plus,
	}
}

func (e *Engine) isVerified(a Account) bool {
	return strings.EqualFold(a.Attribute(e.config.Account.VerifiedAttribute), "true")
}
