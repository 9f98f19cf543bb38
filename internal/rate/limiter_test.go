package rate

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLog(t *testing.T, window time.Duration) *SlidingLog {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewSlidingLog(rdb, window)
}

func TestReserveUpToCeiling(t *testing.T) {
	l := newTestLog(t, time.Hour)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)
	subjects := []Subject{{Key: "t", Max: 3}}

	for i := 1; i <= 3; i++ {
		counts, err := l.Reserve(ctx, subjects, "m"+strconv.Itoa(i), now.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
		if counts[0] != i {
			t.Fatalf("expected count %d, got %d", i, counts[0])
		}
	}

	_, err := l.Reserve(ctx, subjects, "m4", now.Add(4*time.Minute))
	var lerr *LimitError
	if !errors.As(err, &lerr) || !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if lerr.Count != 3 || lerr.Max != 3 || lerr.Index != 0 {
		t.Fatalf("unexpected limit error: %+v", lerr)
	}

	n, err := l.Count(ctx, "t", now.Add(4*time.Minute))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("rejected reservation must not be recorded, count=%d", n)
	}
}

func TestReserveWindowRolls(t *testing.T) {
	l := newTestLog(t, time.Hour)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)
	subjects := []Subject{{Key: "t", Max: 2}}

	if _, err := l.Reserve(ctx, subjects, "a", now); err != nil {
		t.Fatalf("reserve a: %v", err)
	}
	if _, err := l.Reserve(ctx, subjects, "b", now.Add(30*time.Minute)); err != nil {
		t.Fatalf("reserve b: %v", err)
	}
	if _, err := l.Reserve(ctx, subjects, "c", now.Add(59*time.Minute)); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limit inside window, got %v", err)
	}
	// "a" leaves the window at exactly one hour.
	if _, err := l.Reserve(ctx, subjects, "c", now.Add(time.Hour)); err != nil {
		t.Fatalf("expected reservation after oldest event rolled out: %v", err)
	}
}

func TestReserveAllOrNothingAcrossSubjects(t *testing.T) {
	l := newTestLog(t, time.Hour)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	if _, err := l.Reserve(ctx, []Subject{{Key: "src", Max: 1}}, "x", now); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := l.Reserve(ctx, []Subject{{Key: "dst", Max: 5}, {Key: "src", Max: 1}}, "y", now)
	var lerr *LimitError
	if !errors.As(err, &lerr) || lerr.Index != 1 || lerr.Key != "src" {
		t.Fatalf("expected source rejection, got %v", err)
	}
	n, _ := l.Count(ctx, "dst", now)
	if n != 0 {
		t.Fatalf("target must not be recorded when source rejects, count=%d", n)
	}
}

func TestCancelRemovesEvent(t *testing.T) {
	l := newTestLog(t, time.Hour)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	if _, err := l.Reserve(ctx, []Subject{{Key: "a", Max: 1}, {Key: "b", Max: 1}}, "m", now); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := l.Cancel(ctx, []string{"a", "b"}, "m"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := l.Reserve(ctx, []Subject{{Key: "a", Max: 1}, {Key: "b", Max: 1}}, "m2", now); err != nil {
		t.Fatalf("expected capacity after cancel: %v", err)
	}
}

func TestReserveConcurrentNeverOvercommits(t *testing.T) {
	l := newTestLog(t, time.Hour)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	const workers = 20
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			if _, err := l.Reserve(ctx, []Subject{{Key: "burst", Max: 3}}, "m"+strconv.Itoa(i), now); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if ok != 3 {
		t.Fatalf("expected exactly 3 reservations, got %d", ok)
	}
}
