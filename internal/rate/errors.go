package rate

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited matches every *LimitError.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps backend failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// LimitError reports which subject hit its ceiling.
type LimitError struct {
	// Index is the position of the subject in the reservation request.
	Index int
	Key   string
	Count int
	Max   int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limited: %s has %d of %d events in window", e.Key, e.Count, e.Max)
}

func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimited
}
