package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGate_NeverExceedsLimit(t *testing.T) {
	const limit = 3
	const tasks = 20

	gate := NewGate(limit)
	ctx := context.Background()

	var inFlight, maxSeen, completed int64
	var wg sync.WaitGroup

	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !gate.Acquire(ctx) {
				t.Error("acquire failed")
				return
			}
			defer gate.Release()

			n := atomic.AddInt64(&inFlight, 1)
			for {
				seen := atomic.LoadInt64(&maxSeen)
				if n <= seen || atomic.CompareAndSwapInt64(&maxSeen, seen, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
			atomic.AddInt64(&completed, 1)
		}()
	}
	wg.Wait()

	if maxSeen > limit {
		t.Fatalf("observed %d concurrent tasks, limit is %d", maxSeen, limit)
	}
	if completed != tasks {
		t.Fatalf("completed %d of %d tasks", completed, tasks)
	}
	if gate.InFlight() != 0 {
		t.Fatalf("expected 0 in flight after drain, got %d", gate.InFlight())
	}
}

func TestGate_MinimumLimitOfOne(t *testing.T) {
	gate := NewGate(0)
	ctx := context.Background()

	if !gate.Acquire(ctx) {
		t.Fatal("acquire failed on fresh gate")
	}
	if gate.InFlight() != 1 {
		t.Fatalf("expected 1 in flight, got %d", gate.InFlight())
	}
	gate.Release()
}
