package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewLocker(rdb, "test:"), mr
}

func TestLocker_ExclusiveUntilReleased(t *testing.T) {
	l, _ := newTestLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "sync", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "sync", time.Minute); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}

	release()
	release()

	again, err := l.Acquire(ctx, "sync", time.Minute)
	if err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
	again()
}

func TestLocker_ExpiresAfterTTL(t *testing.T) {
	l, mr := newTestLocker(t)
	ctx := context.Background()

	if _, err := l.Acquire(ctx, "sync", time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	mr.FastForward(2 * time.Second)

	release, err := l.Acquire(ctx, "sync", time.Second)
	if err != nil {
		t.Fatalf("expected expired lock to be re-acquirable, got %v", err)
	}
	release()
}

func TestLocker_RejectsBadInput(t *testing.T) {
	l, _ := newTestLocker(t)
	if _, err := l.Acquire(context.Background(), "", time.Second); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := l.Acquire(context.Background(), "k", 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}
