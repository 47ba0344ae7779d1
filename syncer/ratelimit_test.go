package syncer

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucket_BurstThenWait(t *testing.T) {
	bucket := NewTokenBucket(10)
	ctx := context.Background()

	// Full capacity is available at cold start
	start := time.Now()
	for i := 0; i < 10; i++ {
		if !bucket.Take(ctx) {
			t.Fatalf("take %d failed", i)
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("burst of 10 took %v, expected no waiting", elapsed)
	}

	// The next take must wait about one refill interval (100ms at 10 rps)
	start = time.Now()
	if !bucket.Take(ctx) {
		t.Fatal("take after burst failed")
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Fatalf("take after burst returned in %v, expected >= ~100ms wait", elapsed)
	}
}

func TestTokenBucket_CancelledContext(t *testing.T) {
	bucket := NewTokenBucket(1)
	ctx := context.Background()

	if !bucket.Take(ctx) {
		t.Fatal("first take failed")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if bucket.Take(cancelled) {
		t.Fatal("take succeeded on cancelled context with empty bucket")
	}
}

func TestTokenBucket_NilDisablesLimiting(t *testing.T) {
	var bucket *TokenBucket
	for i := 0; i < 100; i++ {
		if !bucket.Take(context.Background()) {
			t.Fatal("nil bucket must always allow")
		}
	}
}
