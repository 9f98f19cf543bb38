package janitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func TestEveryRunsJobWithContext(t *testing.T) {
	j, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "purge")

	var runs atomic.Int32
	var sawValue atomic.Bool
	err = j.Every(ctx, "purge", 20*time.Millisecond, func(ctx context.Context) error {
		if ctx.Value(ctxKey{}) == "purge" {
			sawValue.Store(true)
		}
		runs.Add(1)
		return errors.New("ignored")
	})
	if err != nil {
		t.Fatalf("Every failed: %v", err)
	}

	j.Start()
	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := j.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if runs.Load() < 2 {
		t.Fatalf("expected at least 2 runs, got %d", runs.Load())
	}
	if !sawValue.Load() {
		t.Fatal("expected job to receive the registration context")
	}
}

func TestEveryRejectsNonPositiveInterval(t *testing.T) {
	j, err := New(nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer j.Shutdown()

	if err := j.Every(context.Background(), "bad", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for zero interval")
	}
}
