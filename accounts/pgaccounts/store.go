// Package pgaccounts reads accounts from a Keycloak-style schema, where
// accounts live in user_entity and free-form attributes in user_attribute.
package pgaccounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/phoneverify"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements phoneverify.AccountStore. Lookups are scoped to the realm
// on the request context, falling back to the configured default realm.
type Store struct {
	db           *pgxpool.Pool
	defaultRealm string
}

var _ phoneverify.AccountStore = (*Store)(nil)

func New(pool *pgxpool.Pool, defaultRealm string) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pgaccounts: database pool cannot be nil")
	}
	return &Store{db: pool, defaultRealm: defaultRealm}, nil
}

// FindByAttribute returns every account in the realm holding name=value,
// with all of its attributes loaded.
func (s *Store) FindByAttribute(ctx context.Context, name, value string) ([]phoneverify.Account, error) {
	realm := phoneverify.RealmFromContext(ctx)
	if realm == "" {
		realm = s.defaultRealm
	}

	rows, err := s.db.Query(ctx, `
		SELECT u.id, a.name, a.value
		FROM user_entity u
		JOIN user_attribute a ON a.user_id = u.id
		WHERE u.realm_id = $1
		  AND u.id IN (
			SELECT m.user_id FROM user_attribute m
			WHERE m.name = $2 AND m.value = $3
		  )
		ORDER BY u.id, a.name, a.value`,
		realm, name, value,
	)
	if err != nil {
		return nil, fmt.Errorf("query accounts by attribute: %w", err)
	}
	defer rows.Close()

	var (
		out   []phoneverify.Account
		index = make(map[string]int)
	)
	for rows.Next() {
		var id, attrName, attrValue string
		if err := rows.Scan(&id, &attrName, &attrValue); err != nil {
			return nil, fmt.Errorf("scan account attribute: %w", err)
		}
		i, ok := index[id]
		if !ok {
			i = len(out)
			index[id] = i
			out = append(out, phoneverify.Account{ID: id, Attributes: map[string][]string{}})
		}
		out[i].Attributes[attrName] = append(out[i].Attributes[attrName], attrValue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account attributes: %w", err)
	}
	return out, nil
}
