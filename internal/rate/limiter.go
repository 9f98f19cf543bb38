package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// reserveLua prunes, counts and conditionally records one event on every key.
// KEYS[i] = subject key
// ARGV[1] = now (unix ms)
// ARGV[2] = window (ms)
// ARGV[3] = event member
// ARGV[3+i] = ceiling for KEYS[i]
//
// Returns {1, count_1, ..., count_n} when recorded, or {0, i, count_i} for
// the first subject that would exceed its ceiling.
var reserveLua = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local member = ARGV[3]

for i = 1, #KEYS do
  redis.call('ZREMRANGEBYSCORE', KEYS[i], '-inf', now - window)
end

local out = {1}
for i = 1, #KEYS do
  local count = redis.call('ZCARD', KEYS[i])
  if count + 1 > tonumber(ARGV[3 + i]) then
    return {0, i, count}
  end
  out[i + 1] = count + 1
end

for i = 1, #KEYS do
  redis.call('ZADD', KEYS[i], now, member)
  redis.call('PEXPIRE', KEYS[i], window)
end
return out
`)

// Subject is one key and its ceiling within a reservation.
type Subject struct {
	Key string
	Max int
}

// SlidingLog enforces rolling-window ceilings over Redis sorted sets.
type SlidingLog struct {
	redis  redis.UniversalClient
	window time.Duration
}

// NewSlidingLog creates a [SlidingLog] with the given window length.
func NewSlidingLog(redisClient redis.UniversalClient, window time.Duration) *SlidingLog {
	return &SlidingLog{
		redis:  redisClient,
		window: window,
	}
}

// Reserve records member on every subject if none would exceed its ceiling.
// It returns the post-reservation counts, or a *LimitError naming the first
// subject over its ceiling, in which case nothing is recorded.
func (l *SlidingLog) Reserve(ctx context.Context, subjects []Subject, member string, now time.Time) ([]int, error) {
	if len(subjects) == 0 {
		return nil, nil
	}

	keys := make([]string, len(subjects))
	args := make([]interface{}, 0, 3+len(subjects))
	args = append(args, now.UnixMilli(), l.window.Milliseconds(), member)
	for i, s := range subjects {
		keys[i] = s.Key
		args = append(args, s.Max)
	}

	result, err := reserveLua.Run(ctx, l.redis, keys, args...).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: empty reservation result", ErrRedisUnavailable)
	}

	if result[0] == 0 {
		if len(result) != 3 {
			return nil, fmt.Errorf("%w: malformed rejection result", ErrRedisUnavailable)
		}
		idx := int(result[1]) - 1
		if idx < 0 || idx >= len(subjects) {
			return nil, fmt.Errorf("%w: rejection index out of range", ErrRedisUnavailable)
		}
		return nil, &LimitError{Index: idx, Key: subjects[idx].Key, Count: int(result[2]), Max: subjects[idx].Max}
	}

	counts := make([]int, 0, len(result)-1)
	for _, c := range result[1:] {
		counts = append(counts, int(c))
	}
	return counts, nil
}

// Cancel removes member from keys, undoing a prior Reserve.
func (l *SlidingLog) Cancel(ctx context.Context, keys []string, member string) error {
	if len(keys) == 0 {
		return nil
	}
	pipe := l.redis.TxPipeline()
	for _, key := range keys {
		pipe.ZRem(ctx, key, member)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Count returns the number of events for key inside the window ending at now.
func (l *SlidingLog) Count(ctx context.Context, key string, now time.Time) (int, error) {
	min := strconv.FormatInt(now.Add(-l.window).UnixMilli(), 10)
	n, err := l.redis.ZCount(ctx, key, "("+min, "+inf").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}
