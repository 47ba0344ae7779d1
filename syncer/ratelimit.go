package syncer

import (
	"context"
	"math"
	"sync"
	"time"
)

// TokenBucket throttles outbound API calls to a sustained requests-per-second
// budget while allowing a burst up to capacity at cold start. A nil bucket
// disables limiting.
type TokenBucket struct {
	mu           sync.Mutex
	capacity     float64
	tokens       float64
	refillPerSec float64
	last         time.Time
}

func NewTokenBucket(rps float64) *TokenBucket {
	if rps <= 0 {
		return nil
	}
	cap := math.Max(1, rps)
	return &TokenBucket{
		capacity:     cap,
		tokens:       cap,
		refillPerSec: rps,
		last:         time.Now(),
	}
}

// Take blocks until a token is available or ctx is done. Returns false only
// on cancellation. The wait is a bounded loop, one refill interval per pass.
func (b *TokenBucket) Take(ctx context.Context) bool {
	if b == nil {
		return true
	}
	for {
		b.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(b.last).Seconds()
		if elapsed > 0 {
			b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.refillPerSec)
			b.last = now
		}
		ok := false
		if b.tokens >= 1.0 {
			b.tokens -= 1.0
			ok = true
		}
		b.mu.Unlock()

		if ok {
			return true
		}

		toNext := time.Duration((1.0 / b.refillPerSec) * float64(time.Second))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(toNext):
		}
	}
}

// Available returns the current token count after refill. Test hook.
func (b *TokenBucket) Available() float64 {
	if b == nil {
		return math.Inf(1)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.refillPerSec)
		b.last = now
	}
	return b.tokens
}
