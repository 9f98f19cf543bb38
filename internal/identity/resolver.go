// Package identity ranks accounts that claim a phone number so exactly one
// owner is chosen deterministically when legacy rows disagree.
package identity

import (
	"context"
	"sort"
)

// Traits are the properties of an account that decide its rank.
type Traits struct {
	ID string
	// Verified reports whether the account's phone-verified flag is set.
	Verified bool
	// PlusPrefixed reports whether any stored phone value starts with "+".
	PlusPrefixed bool
}

type ranked[T any] struct {
	item   T
	traits Traits
	// first is the index of the earliest candidate number that matched.
	first int
}

// Rank queries lookup once per candidate number and returns every distinct
// account found, best first. Ordering is verified before unverified, then
// "+"-prefixed before not, then the account matched by the earliest
// candidate, then ID. numbers should list the canonical form first.
func Rank[T any](
	ctx context.Context,
	numbers []string,
	lookup func(context.Context, string) ([]T, error),
	traits func(T) Traits,
) ([]T, error) {
	seen := make(map[string]int)
	var found []ranked[T]

	for i, number := range numbers {
		if number == "" {
			continue
		}
		matches, err := lookup(ctx, number)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			tr := traits(m)
			if _, dup := seen[tr.ID]; dup {
				continue
			}
			seen[tr.ID] = len(found)
			found = append(found, ranked[T]{item: m, traits: tr, first: i})
		}
	}

	sort.SliceStable(found, func(a, b int) bool {
		x, y := found[a], found[b]
		if x.traits.Verified != y.traits.Verified {
			return x.traits.Verified
		}
		if x.traits.PlusPrefixed != y.traits.PlusPrefixed {
			return x.traits.PlusPrefixed
		}
		if x.first != y.first {
			return x.first < y.first
		}
		return x.traits.ID < y.traits.ID
	})

	out := make([]T, len(found))
	for i, r := range found {
		out[i] = r.item
	}
	return out, nil
}
