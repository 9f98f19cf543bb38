package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/phoneverify/codestore"
	"github.com/redis/go-redis/v9"
)

const (
	defaultCodePrefix = "pvc"

	statePending  = "pending"
	stateConsumed = "consumed"

	consumedMarker = "!consumed"
)

// insertCodeLua writes a new record unless a live one occupies the slot.
// KEYS[1] = slot key
// KEYS[2] = id index key
// ARGV[1] = id
// ARGV[2] = code hash (32 bytes)
// ARGV[3] = created at (unix ms)
// ARGV[4] = expires at (unix ms)
// ARGV[5] = now (unix ms)
// ARGV[6] = key ttl (ms)
//
// Returns {'ok'} or {'pending', id, expires_at}.
var insertCodeLua = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if state == 'pending' then
  local exp = redis.call('HGET', KEYS[1], 'expires_at')
  if tonumber(exp) >= tonumber(ARGV[5]) then
    return {'pending', redis.call('HGET', KEYS[1], 'id'), exp}
  end
end

redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1],
  'id', ARGV[1],
  'code_hash', ARGV[2],
  'created_at', ARGV[3],
  'expires_at', ARGV[4],
  'state', 'pending',
  'attempts', '0')
redis.call('PEXPIRE', KEYS[1], ARGV[6])
redis.call('SET', KEYS[2], KEYS[1], 'PX', ARGV[6])
return {'ok'}
`)

// checkCodeLua compares a submitted hash against the live record.
// KEYS[1] = slot key
// ARGV[1] = provided hash (32 bytes)
// ARGV[2] = now (unix ms)
// ARGV[3] = max attempts (0 = unlimited)
//
// A match sets the validated flag that consumeCodeLua requires.
//
// Returns {id, created_at, expires_at, attempts, code_hash} or an error string:
// "not_found", "mismatch", "attempts_exceeded".
var checkCodeLua = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if state ~= 'pending' then
  return {err='not_found'}
end
if tonumber(redis.call('HGET', KEYS[1], 'expires_at')) < tonumber(ARGV[2]) then
  return {err='not_found'}
end

if redis.call('HGET', KEYS[1], 'code_hash') ~= ARGV[1] then
  local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
  local maxAttempts = tonumber(ARGV[3])
  if maxAttempts > 0 and attempts >= maxAttempts then
    redis.call('HSET', KEYS[1], 'state', 'burned')
    return {err='attempts_exceeded'}
  end
  return {err='mismatch'}
end

redis.call('HSET', KEYS[1], 'validated', '1')
return redis.call('HMGET', KEYS[1], 'id', 'created_at', 'expires_at', 'attempts', 'code_hash')
`)

// consumeCodeLua flips a live, validated record to consumed and marks its id
// index.
// KEYS[1] = id index key
// KEYS[2] = slot key
// ARGV[1] = id
// ARGV[2] = now (unix ms)
var consumeCodeLua = redis.NewScript(`
local marker = redis.call('GET', KEYS[1])
if not marker then
  return {err='unknown'}
end
if marker == '!consumed' then
  return {err='consumed'}
end
if redis.call('HGET', KEYS[2], 'id') ~= ARGV[1] then
  return {err='expired'}
end

local state = redis.call('HGET', KEYS[2], 'state')
if state == 'consumed' then
  return {err='consumed'}
end
if state ~= 'pending' or tonumber(redis.call('HGET', KEYS[2], 'expires_at')) < tonumber(ARGV[2]) then
  return {err='expired'}
end
if redis.call('HGET', KEYS[2], 'validated') ~= '1' then
  return {err='not_validated'}
end

redis.call('HSET', KEYS[2], 'state', 'consumed')
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then
  redis.call('SET', KEYS[1], '!consumed', 'PX', ttl)
else
  redis.call('SET', KEYS[1], '!consumed')
end
return 'OK'
`)

// releaseCodeLua deletes a pending record if it still carries the given id.
// KEYS[1] = id index key
// KEYS[2] = slot key
// ARGV[1] = id
var releaseCodeLua = redis.NewScript(`
if redis.call('HGET', KEYS[2], 'id') == ARGV[1] and redis.call('HGET', KEYS[2], 'state') == 'pending' then
  redis.call('DEL', KEYS[2])
end
redis.call('DEL', KEYS[1])
return 1
`)

// VerificationCodeStore is the Redis implementation of codestore.Store.
//
// Each (realm, purpose, phone) slot is a hash holding the newest record. An
// id index key points back to the slot so records can be consumed by id.
// Keys outlive the code TTL by the retention period so replays after consume
// are reported as such instead of as unknown.
type VerificationCodeStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewVerificationCodeStore(redisClient redis.UniversalClient, prefix string, retention time.Duration) *VerificationCodeStore {
	if prefix == "" {
		prefix = defaultCodePrefix
	}
	if retention < 0 {
		retention = 0
	}
	return &VerificationCodeStore{
		redis:     redisClient,
		prefix:    prefix,
		retention: retention,
	}
}

func (s *VerificationCodeStore) slotKey(key codestore.Key) string {
	return s.prefix + ":" + normalizeRealm(key.Realm) + ":" + key.Purpose + ":" + key.PhoneNumber
}

func (s *VerificationCodeStore) idKey(id string) string {
	return s.prefix + ":id:" + id
}

func (s *VerificationCodeStore) Insert(ctx context.Context, rec *codestore.Record, now time.Time) error {
	if rec == nil || rec.ID == "" {
		return errors.New("verification code record requires an id")
	}
	ttl := rec.ExpiresAt.Sub(now) + s.retention
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	result, err := insertCodeLua.Run(ctx, s.redis,
		[]string{s.slotKey(rec.Key()), s.idKey(rec.ID)},
		rec.ID,
		string(rec.CodeHash[:]),
		rec.CreatedAt.UnixMilli(),
		rec.ExpiresAt.UnixMilli(),
		now.UnixMilli(),
		ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return fmt.Errorf("%w: %v", codestore.ErrUnavailable, err)
	}
	if len(result) == 0 {
		return fmt.Errorf("%w: empty insert result", codestore.ErrUnavailable)
	}

	status, _ := result[0].(string)
	switch status {
	case "ok":
		return nil
	case "pending":
		if len(result) != 3 {
			return fmt.Errorf("%w: malformed pending result", codestore.ErrUnavailable)
		}
		id, _ := result[1].(string)
		expMs, err := luaInt(result[2])
		if err != nil {
			return fmt.Errorf("%w: %v", codestore.ErrUnavailable, err)
		}
		return &codestore.PendingError{ID: id, ExpiresAt: time.UnixMilli(expMs)}
	default:
		return fmt.Errorf("%w: unexpected insert status %q", codestore.ErrUnavailable, status)
	}
}

func (s *VerificationCodeStore) Check(
	ctx context.Context,
	key codestore.Key,
	codeHash [32]byte,
	now time.Time,
	maxAttempts int,
) (*codestore.Record, error) {
	result, err := checkCodeLua.Run(ctx, s.redis,
		[]string{s.slotKey(key)},
		string(codeHash[:]),
		now.UnixMilli(),
		maxAttempts,
	).Slice()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return nil, codestore.ErrNotFound
		case "mismatch":
			return nil, codestore.ErrMismatch
		case "attempts_exceeded":
			return nil, codestore.ErrAttemptsExceeded
		default:
			return nil, fmt.Errorf("%w: %v", codestore.ErrUnavailable, err)
		}
	}

	rec, err := decodeCodeFields(key, result)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", codestore.ErrUnavailable, err)
	}
	// Lua string equality is not constant-time.
	if !codestore.Equal(rec.CodeHash, codeHash) {
		return nil, codestore.ErrMismatch
	}
	return rec, nil
}

func (s *VerificationCodeStore) Pending(ctx context.Context, key codestore.Key, now time.Time) (*codestore.Record, error) {
	values, err := s.redis.HMGet(ctx, s.slotKey(key), "id", "created_at", "expires_at", "attempts", "code_hash", "state").Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", codestore.ErrUnavailable, err)
	}
	if state, _ := values[5].(string); state != statePending {
		return nil, codestore.ErrNotFound
	}

	rec, err := decodeCodeFields(key, values[:5])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", codestore.ErrUnavailable, err)
	}
	if rec.ExpiresAt.Before(now) {
		return nil, codestore.ErrNotFound
	}
	return rec, nil
}

func (s *VerificationCodeStore) Consume(ctx context.Context, id string, now time.Time) error {
	slot, err := s.redis.Get(ctx, s.idKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return codestore.ErrUnknownRecord
	}
	if err != nil {
		return fmt.Errorf("%w: %v", codestore.ErrUnavailable, err)
	}
	if slot == consumedMarker {
		return codestore.ErrConsumed
	}

	err = consumeCodeLua.Run(ctx, s.redis, []string{s.idKey(id), slot}, id, now.UnixMilli()).Err()
	if err != nil {
		switch err.Error() {
		case "unknown":
			return codestore.ErrUnknownRecord
		case "consumed":
			return codestore.ErrConsumed
		case "expired":
			return codestore.ErrExpired
		case "not_validated":
			return codestore.ErrNotValidated
		default:
			return fmt.Errorf("%w: %v", codestore.ErrUnavailable, err)
		}
	}
	return nil
}

func (s *VerificationCodeStore) Release(ctx context.Context, id string) error {
	slot, err := s.redis.Get(ctx, s.idKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", codestore.ErrUnavailable, err)
	}
	if slot == consumedMarker {
		return nil
	}

	if err := releaseCodeLua.Run(ctx, s.redis, []string{s.idKey(id), slot}, id).Err(); err != nil {
		return fmt.Errorf("%w: %v", codestore.ErrUnavailable, err)
	}
	return nil
}

func decodeCodeFields(key codestore.Key, values []interface{}) (*codestore.Record, error) {
	if len(values) != 5 {
		return nil, fmt.Errorf("expected 5 record fields, got %d", len(values))
	}
	id, _ := values[0].(string)
	if id == "" {
		return nil, errors.New("record missing id")
	}
	createdMs, err := luaInt(values[1])
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	expiresMs, err := luaInt(values[2])
	if err != nil {
		return nil, fmt.Errorf("expires_at: %w", err)
	}
	attempts, err := luaInt(values[3])
	if err != nil {
		return nil, fmt.Errorf("attempts: %w", err)
	}
	hash, _ := values[4].(string)
	if len(hash) != 32 {
		return nil, errors.New("record hash has invalid length")
	}

	rec := &codestore.Record{
		ID:          id,
		PhoneNumber: key.PhoneNumber,
		Purpose:     key.Purpose,
		Realm:       key.Realm,
		Attempts:    int(attempts),
		CreatedAt:   time.UnixMilli(createdMs),
		ExpiresAt:   time.UnixMilli(expiresMs),
	}
	copy(rec.CodeHash[:], hash)
	return rec, nil
}

func luaInt(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected value type %T", v)
	}
}

func normalizeRealm(realm string) string {
	if realm == "" {
		return "0"
	}
	return realm
}
