package identity

import (
	"context"
	"errors"
	"testing"
)

type row struct {
	id       string
	phone    string
	verified bool
}

func lookupIn(rows []row) func(context.Context, string) ([]row, error) {
	return func(_ context.Context, value string) ([]row, error) {
		var out []row
		for _, r := range rows {
			if r.phone == value {
				out = append(out, r)
			}
		}
		return out, nil
	}
}

func rowTraits(r row) Traits {
	return Traits{ID: r.id, Verified: r.verified, PlusPrefixed: len(r.phone) > 0 && r.phone[0] == '+'}
}

func top(t *testing.T, numbers []string, rows []row) row {
	t.Helper()
	all, err := Rank(context.Background(), numbers, lookupIn(rows), rowTraits)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(all) == 0 {
		t.Fatal("expected a match")
	}
	return all[0]
}

func TestRankPrefersVerifiedOverExactMatch(t *testing.T) {
	rows := []row{
		{id: "exact", phone: "+27821234567", verified: false},
		{id: "legacy", phone: "0821234567", verified: true},
	}
	if best := top(t, []string{"+27821234567", "0821234567"}, rows); best.id != "legacy" {
		t.Fatalf("expected verified account, got %s", best.id)
	}
}

func TestRankPrefersPlusPrefixedWhenVerificationTies(t *testing.T) {
	rows := []row{
		{id: "national", phone: "0821234567"},
		{id: "intl", phone: "+27821234567"},
	}
	if best := top(t, []string{"0821234567", "+27821234567"}, rows); best.id != "intl" {
		t.Fatalf("expected plus-prefixed account, got %s", best.id)
	}
}

func TestRankIsDeterministicOnFullTie(t *testing.T) {
	rows := []row{
		{id: "b", phone: "+27821234567"},
		{id: "a", phone: "+27821234567"},
	}
	for i := 0; i < 5; i++ {
		all, err := Rank(context.Background(), []string{"+27821234567"}, lookupIn(rows), rowTraits)
		if err != nil {
			t.Fatalf("rank: %v", err)
		}
		if len(all) != 2 || all[0].id != "a" {
			t.Fatalf("expected a first, got %+v", all)
		}
	}
}

func TestRankDeduplicatesAcrossNumbers(t *testing.T) {
	lookup := func(_ context.Context, value string) ([]row, error) {
		return []row{{id: "same", phone: "+27821234567"}}, nil
	}
	all, err := Rank(context.Background(), []string{"+27821234567", "821234567", "0821234567"}, lookup, rowTraits)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 account, got %d", len(all))
	}
}

func TestRankNoMatch(t *testing.T) {
	all, err := Rank(context.Background(), []string{"+27821234567"}, lookupIn(nil), rowTraits)
	if err != nil || len(all) != 0 {
		t.Fatalf("expected no match, got %v, %v", all, err)
	}
}

func TestRankPropagatesLookupError(t *testing.T) {
	boom := errors.New("store down")
	lookup := func(context.Context, string) ([]row, error) { return nil, boom }
	if _, err := Rank(context.Background(), []string{"x"}, lookup, rowTraits); !errors.Is(err, boom) {
		t.Fatalf("expected lookup error, got %v", err)
	}
}
