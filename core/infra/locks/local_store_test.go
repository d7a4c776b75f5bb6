package locks

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalStoreExclusive(t *testing.T) {
	s := NewLocalStore()
	ctx := context.Background()
	if ok, _ := s.Acquire(ctx, "customer:1", "a", time.Minute); !ok {
		t.Fatalf("expected acquire")
	}
	if ok, _ := s.Acquire(ctx, "customer:1", "b", time.Minute); ok {
		t.Fatalf("expected exclusive lock")
	}
	if ok, _ := s.Release(ctx, "customer:1", "b"); ok {
		t.Fatalf("expected foreign release refused")
	}
	if ok, _ := s.Renew(ctx, "customer:1", "a", time.Minute); !ok {
		t.Fatalf("expected renew by owner")
	}
	if ok, _ := s.Release(ctx, "customer:1", "a"); !ok {
		t.Fatalf("expected release by owner")
	}
	if ok, _ := s.Acquire(ctx, "customer:1", "b", time.Minute); !ok {
		t.Fatalf("expected acquire after release")
	}
}

func TestLocalStoreExpiry(t *testing.T) {
	s := NewLocalStore()
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()
	s.Acquire(ctx, "r", "a", time.Second)
	now = now.Add(2 * time.Second)
	if ok, _ := s.Acquire(ctx, "r", "b", time.Second); !ok {
		t.Fatalf("expected expired lock to be taken over")
	}
}

func TestWaitTimesOut(t *testing.T) {
	s := NewLocalStore()
	ctx := context.Background()
	s.Acquire(ctx, "r", "holder", time.Minute)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := Wait(waitCtx, s, "r", "waiter", time.Minute, 10*time.Millisecond)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestWaitAcquiresAfterRelease(t *testing.T) {
	s := NewLocalStore()
	ctx := context.Background()
	s.Acquire(ctx, "r", "holder", time.Minute)
	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Release(ctx, "r", "holder")
	}()
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := Wait(waitCtx, s, "r", "waiter", time.Minute, 5*time.Millisecond); err != nil {
		t.Fatalf("expected lock after release, got %v", err)
	}
}
