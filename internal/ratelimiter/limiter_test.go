package ratelimiter

import (
	"context"
	"testing"
	"time"
)

func TestThrottle_BurstIsImmediate(t *testing.T) {
	th := New(1, 3)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := th.Wait(context.Background()); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("burst should not block, took %v", elapsed)
	}
}

func TestThrottle_BlocksPastBurst(t *testing.T) {
	th := New(20, 1)
	ctx := context.Background()
	if err := th.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	start := time.Now()
	if err := th.Wait(ctx); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("expected the second token to wait ~50ms, took %v", elapsed)
	}
}

func TestThrottle_CancelledWhileWaiting(t *testing.T) {
	th := New(0.1, 1)
	_ = th.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := th.Wait(ctx); err == nil {
		t.Fatal("expected an error once ctx ends")
	}
}

func TestThrottle_Disabled(t *testing.T) {
	th := New(0, 0)
	for i := 0; i < 1000; i++ {
		if err := th.Wait(context.Background()); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
}
