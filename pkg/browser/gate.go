package browser

import (
	"context"

	"pressgate/pkg/faults"
)

// DefaultSessionLimit bounds simultaneously open browser sessions.
const DefaultSessionLimit = 10

// Gate bounds the number of concurrently open browser sessions.
// Acquire blocks until a slot is free or the context ends, so tasks
// queue instead of exhausting the browser pool.
type Gate struct {
	slots chan struct{}
}

func NewGate(limit int) *Gate {
	if limit <= 0 {
		limit = DefaultSessionLimit
	}
	return &Gate{slots: make(chan struct{}, limit)}
}

// Acquire blocks until a session slot is available.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return faults.NewTransient("acquire session slot", ctx.Err())
	}
}

// TryAcquire grabs a slot without blocking.
func (g *Gate) TryAcquire() bool {
	select {
	case g.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees a slot. Releasing more than was acquired is a
// programming error and panics.
func (g *Gate) Release() {
	select {
	case <-g.slots:
	default:
		panic("browser: gate release without acquire")
	}
}

// InUse reports how many slots are currently held.
func (g *Gate) InUse() int {
	return len(g.slots)
}

// Limit reports the configured slot count.
func (g *Gate) Limit() int {
	return cap(g.slots)
}
