package syncer

import (
	"context"
	"sync"
)

// Gate bounds the number of page pipelines in flight at once. Waiters queue
// on the condition variable and are released in broadcast order as slots free.
type Gate struct {
	mu      sync.Mutex
	cond    *sync.Cond
	limit   int
	current int
}

func NewGate(n int) *Gate {
	if n < 1 {
		n = 1
	}
	g := &Gate{limit: n}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Acquire blocks until a slot is free or ctx is done. Returns false only on
// cancellation; a false return means no slot is held.
func (g *Gate) Acquire(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.current >= g.limit {
		if ctx.Err() != nil {
			return false
		}
		g.cond.Wait()
	}
	g.current++
	return true
}

func (g *Gate) Release() {
	g.mu.Lock()
	if g.current > 0 {
		g.current--
	}
	g.cond.Broadcast()
	g.mu.Unlock()
}

func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}
