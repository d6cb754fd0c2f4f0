// Package convert bounds and executes PDF page rasterization. The Gate caps
// how many conversions run at once; the Rasterizer shells out to poppler's
// pdftoppm and enumerates whatever page images actually landed on disk.
package convert

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrGateTimeout is returned when no conversion slot frees up in time. The
// pipeline treats it as a conversion failure and falls back.
var ErrGateTimeout = errors.New("conversion gate timeout: all conversion slots stayed busy")

// Gate is a counting semaphore over concurrent conversions. It tracks the
// arrival time of each waiter so monitoring can see how long the oldest
// pending request has been queued.
type Gate struct {
	slots   chan struct{}
	timeout time.Duration

	mu      sync.Mutex
	pending []time.Time // FIFO of waiter arrival times
}

// NewGate creates a gate admitting at most maxConcurrent conversions, with
// the given per-acquire timeout.
func NewGate(maxConcurrent int, timeout time.Duration) *Gate {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Gate{
		slots:   make(chan struct{}, maxConcurrent),
		timeout: timeout,
	}
}

// Acquire claims a conversion slot, waiting up to the gate timeout.
func (g *Gate) Acquire(ctx context.Context) error {
	arrived := time.Now()
	g.trackWaiter(arrived)
	defer g.untrackWaiter(arrived)

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case g.slots <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrGateTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a conversion slot. Must pair with a successful Acquire.
func (g *Gate) Release() {
	select {
	case <-g.slots:
	default:
		// Unbalanced release; ignore rather than block.
	}
}

// Active returns the number of conversions currently admitted.
func (g *Gate) Active() int { return len(g.slots) }

// MaxConcurrent returns the gate capacity.
func (g *Gate) MaxConcurrent() int { return cap(g.slots) }

// Pending returns the number of requests waiting for a slot.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// OldestWait reports how long the oldest pending request has been queued,
// zero when nothing is waiting.
func (g *Gate) OldestWait(now time.Time) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.pending) == 0 {
		return 0
	}
	return now.Sub(g.pending[0])
}

func (g *Gate) trackWaiter(arrived time.Time) {
	g.mu.Lock()
	g.pending = append(g.pending, arrived)
	g.mu.Unlock()
}

func (g *Gate) untrackWaiter(arrived time.Time) {
	g.mu.Lock()
	for i, t := range g.pending {
		if t.Equal(arrived) {
			g.pending = append(g.pending[:i], g.pending[i+1:]...)
			break
		}
	}
	g.mu.Unlock()
}
