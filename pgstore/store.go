package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/phoneverify/codestore"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	statePending  = "pending"
	stateConsumed = "consumed"
	stateExpired  = "expired"
	stateBurned   = "burned"
)

// Store keeps verification codes in the verification_codes table.
type Store struct {
	db *pgxpool.Pool
}

var _ codestore.Store = (*Store)(nil)

// New wraps pool. Run Migrate before first use.
func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pgstore: database pool cannot be nil")
	}
	return &Store{db: pool}, nil
}

func (s *Store) Insert(ctx context.Context, rec *codestore.Record, now time.Time) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: record id required", codestore.ErrUnavailable)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Retire a stale pending row so it no longer holds the slot.
	if _, err := tx.Exec(ctx, `
		UPDATE verification_codes SET state = $5
		WHERE realm = $1 AND phone_number = $2 AND purpose = $3
		  AND state = 'pending' AND expires_at < $4`,
		rec.Realm, rec.PhoneNumber, rec.Purpose, now, stateExpired,
	); err != nil {
		return unavailable(err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO verification_codes
			(id, realm, phone_number, purpose, code_hash, state, attempts, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', 0, $6, $7)
		ON CONFLICT (realm, phone_number, purpose) WHERE state = 'pending' DO NOTHING`,
		rec.ID, rec.Realm, rec.PhoneNumber, rec.Purpose, rec.CodeHash[:], rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return unavailable(err)
	}

	if tag.RowsAffected() == 0 {
		var pending codestore.PendingError
		err := tx.QueryRow(ctx, `
			SELECT id::text, expires_at FROM verification_codes
			WHERE realm = $1 AND phone_number = $2 AND purpose = $3 AND state = 'pending'`,
			rec.Realm, rec.PhoneNumber, rec.Purpose,
		).Scan(&pending.ID, &pending.ExpiresAt)
		if err != nil {
			return unavailable(err)
		}
		return &pending
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) Check(ctx context.Context, key codestore.Key, codeHash [32]byte, now time.Time, maxAttempts int) (*codestore.Record, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, unavailable(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rec, stored, err := selectLive(ctx, tx, key, now, true)
	if err != nil {
		return nil, err
	}

	if codestore.Equal(stored, codeHash) {
		if _, err := tx.Exec(ctx,
			`UPDATE verification_codes SET validated_at = COALESCE(validated_at, $2) WHERE id = $1`,
			rec.ID, now,
		); err != nil {
			return nil, unavailable(err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, unavailable(err)
		}
		return rec, nil
	}

	rec.Attempts++
	state := statePending
	if maxAttempts > 0 && rec.Attempts >= maxAttempts {
		state = stateBurned
	}
	if _, err := tx.Exec(ctx,
		`UPDATE verification_codes SET attempts = $2, state = $3 WHERE id = $1`,
		rec.ID, rec.Attempts, state,
	); err != nil {
		return nil, unavailable(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, unavailable(err)
	}

	if state == stateBurned {
		return nil, codestore.ErrAttemptsExceeded
	}
	return nil, codestore.ErrMismatch
}

func (s *Store) Pending(ctx context.Context, key codestore.Key, now time.Time) (*codestore.Record, error) {
	rec, _, err := selectLive(ctx, s.db, key, now, false)
	return rec, err
}

func (s *Store) Consume(ctx context.Context, id string, now time.Time) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var (
		state     string
		expiresAt time.Time
		validated bool
	)
	err = tx.QueryRow(ctx,
		`SELECT state, expires_at, validated_at IS NOT NULL FROM verification_codes WHERE id = $1 FOR UPDATE`, id,
	).Scan(&state, &expiresAt, &validated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return codestore.ErrUnknownRecord
		}
		return unavailable(err)
	}

	switch {
	case state == stateConsumed:
		return codestore.ErrConsumed
	case state != statePending, expiresAt.Before(now):
		return codestore.ErrExpired
	case !validated:
		return codestore.ErrNotValidated
	}

	if _, err := tx.Exec(ctx,
		`UPDATE verification_codes SET state = $2, consumed_at = $3 WHERE id = $1`,
		id, stateConsumed, now,
	); err != nil {
		return unavailable(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) Release(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM verification_codes WHERE id = $1 AND state = 'pending'`, id,
	); err != nil {
		return unavailable(err)
	}
	return nil
}

// PurgeExpired deletes records whose expiry is before cutoff and returns how
// many were removed. Pass now minus the retention period.
func (s *Store) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM verification_codes WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, unavailable(err)
	}
	return tag.RowsAffected(), nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func selectLive(ctx context.Context, q querier, key codestore.Key, now time.Time, lock bool) (*codestore.Record, [32]byte, error) {
	query := `
		SELECT id::text, code_hash, attempts, created_at, expires_at
		FROM verification_codes
		WHERE realm = $1 AND phone_number = $2 AND purpose = $3
		  AND state = 'pending' AND expires_at >= $4`
	if lock {
		query += ` FOR UPDATE`
	}

	var (
		hash []byte
		out  [32]byte
	)
	rec := &codestore.Record{Realm: key.Realm, PhoneNumber: key.PhoneNumber, Purpose: key.Purpose}
	err := q.QueryRow(ctx, query, key.Realm, key.PhoneNumber, key.Purpose, now).
		Scan(&rec.ID, &hash, &rec.Attempts, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, out, codestore.ErrNotFound
		}
		return nil, out, unavailable(err)
	}
	if len(hash) != len(out) {
		return nil, out, fmt.Errorf("%w: malformed code hash", codestore.ErrUnavailable)
	}
	copy(out[:], hash)
	rec.CodeHash = out
	return rec, out, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", codestore.ErrUnavailable, err)
}
