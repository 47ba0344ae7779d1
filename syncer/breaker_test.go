package syncer

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream down")

func failing(context.Context) error { return errUpstream }
func succeeding(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, failing); !errors.Is(err, errUpstream) {
			t.Fatalf("call %d: expected upstream error, got %v", i, err)
		}
	}
	if cb.State() != BreakerOpen {
		t.Fatalf("expected open after 3 failures, got %s", cb.State())
	}

	// Open breaker fails fast without invoking fn
	invoked := false
	err := cb.Execute(ctx, func(context.Context) error {
		invoked = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if invoked {
		t.Fatal("wrapped function ran while breaker was open")
	}
}

func TestCircuitBreaker_HalfOpenTrialAndRecovery(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	ctx := context.Background()

	now := time.Now()
	cb.now = func() time.Time { return now }

	cb.Execute(ctx, failing)
	cb.Execute(ctx, failing)
	if cb.State() != BreakerOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	// Cooldown elapses: the next call is permitted and a success closes
	now = now.Add(2 * time.Minute)
	if err := cb.Execute(ctx, succeeding); err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if cb.State() != BreakerClosed {
		t.Fatalf("expected closed after successful trial, got %s", cb.State())
	}

	// Failure counter reset: one new failure does not trip it
	if err := cb.Execute(ctx, failing); !errors.Is(err, errUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if cb.State() != BreakerClosed {
		t.Fatalf("expected closed after single post-recovery failure, got %s", cb.State())
	}
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	ctx := context.Background()

	now := time.Now()
	cb.now = func() time.Time { return now }

	cb.Execute(ctx, failing)
	if cb.State() != BreakerOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	now = now.Add(2 * time.Minute)
	if err := cb.Execute(ctx, failing); !errors.Is(err, errUpstream) {
		t.Fatalf("expected upstream error from trial, got %v", err)
	}
	if cb.State() != BreakerOpen {
		t.Fatalf("expected re-opened after failed trial, got %s", cb.State())
	}

	// Cooldown clock restarted: still failing fast
	now = now.Add(30 * time.Second)
	if err := cb.Execute(ctx, succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen during restarted cooldown, got %v", err)
	}
}
