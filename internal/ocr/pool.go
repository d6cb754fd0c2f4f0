package ocr

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"docextract/internal/logger"
)

// Worker is one pooled OCR engine instance. A worker is busy for at most one
// caller at a time; the pool enforces this through Acquire/Release.
type Worker struct {
	// ID is used for log correlation only; capacity bookkeeping is done by
	// slot index, not by id.
	ID string

	engine     Engine
	slot       int
	busy       bool
	lastUsedAt time.Time
}

// Recognize delegates to the worker's engine.
func (w *Worker) Recognize(ctx context.Context, req Request) (Recognition, error) {
	return w.engine.Recognize(ctx, req)
}

// EngineName reports the backing engine provider.
func (w *Worker) EngineName() string { return w.engine.Name() }

// PoolConfig configures a worker pool.
type PoolConfig struct {
	// Capacity is the maximum number of live workers.
	Capacity int

	// AcquireTimeout bounds how long Acquire waits for a freed worker.
	AcquireTimeout time.Duration

	// IdleTimeout is how long a worker may sit idle before the sweep
	// destroys it.
	IdleTimeout time.Duration

	// SweepInterval is how often the idle sweep runs. Zero disables the
	// background sweeper (tests drive sweeps manually).
	SweepInterval time.Duration

	// Factory constructs engine instances for new workers.
	Factory Factory
}

// Pool manages a bounded set of stateful OCR engine instances. Workers are
// created lazily up to Capacity, reused across pages, evicted after sitting
// idle, and all terminated on Shutdown.
//
// The pool is a fixed-capacity slot array: a worker's position is structural,
// and the capacity invariant is len(slots), not a hash map's size.
type Pool struct {
	mu       sync.Mutex
	slots    []*Worker // nil = free slot
	reserved []bool    // slot held by an in-flight engine init
	size     int       // live workers plus reservations, never > capacity

	factory        Factory
	acquireTimeout time.Duration
	idleTimeout    time.Duration

	// released is signaled on every Release so waiters in Acquire can retry
	// without polling. Buffered so Release never blocks.
	released chan struct{}
	done     chan struct{}
	closed   bool

	log zerolog.Logger
}

// sweepBatchSize bounds how many idle workers one sweep tick may destroy so
// the sweeper never starves foreground acquisitions.
const sweepBatchSize = 4

// NewPool creates a pool and, when SweepInterval is set, starts the idle
// eviction sweeper.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	p := &Pool{
		slots:          make([]*Worker, cfg.Capacity),
		reserved:       make([]bool, cfg.Capacity),
		factory:        cfg.Factory,
		acquireTimeout: cfg.AcquireTimeout,
		idleTimeout:    cfg.IdleTimeout,
		released:       make(chan struct{}, cfg.Capacity),
		done:           make(chan struct{}),
		log:            logger.WithComponent("ocr-pool"),
	}
	if cfg.SweepInterval > 0 {
		go p.runSweeper(cfg.SweepInterval)
	}
	return p
}

// Acquire returns an idle worker, creating one lazily while the pool is below
// capacity. When the pool is full it waits for a release signal until the
// acquire timeout elapses, then fails with ErrPoolExhausted.
//
// Waiters are not woken in FIFO order: whichever waiter the runtime schedules
// first after a release wins the freed worker. This is a deliberate
// relaxation; callers needing strict ordering must serialize externally.
func (p *Pool) Acquire(ctx context.Context) (*Worker, error) {
	const op = "Acquire"

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, NewOCRError(op, ErrPoolClosed, "")
		}

		// First free wins.
		for _, w := range p.slots {
			if w != nil && !w.busy {
				w.busy = true
				w.lastUsedAt = time.Now()
				p.mu.Unlock()
				return w, nil
			}
		}

		if p.size < len(p.slots) {
			slot := p.reserveSlotLocked()
			p.mu.Unlock()
			return p.createWorker(slot)
		}
		p.mu.Unlock()

		select {
		case <-p.released:
			// A worker was freed; retry the scan.
		case <-timer.C:
			return nil, NewOCRError(op, ErrPoolExhausted,
				"waited "+p.acquireTimeout.String())
		case <-ctx.Done():
			return nil, WrapOCRError(op, ctx.Err(), "canceled while waiting for a worker")
		case <-p.done:
			return nil, NewOCRError(op, ErrPoolClosed, "")
		}
	}
}

// reserveSlotLocked claims a free slot for an in-flight engine init so no
// competing Acquire can overshoot capacity while the factory runs unlocked.
func (p *Pool) reserveSlotLocked() int {
	for i, w := range p.slots {
		if w == nil && !p.reserved[i] {
			p.reserved[i] = true
			p.size++
			return i
		}
	}
	// size < len(slots) guarantees a free unreserved slot exists.
	panic("ocr: pool slot accounting out of sync")
}

func (p *Pool) createWorker(slot int) (*Worker, error) {
	const op = "Acquire"

	engine, err := p.factory()

	p.mu.Lock()
	p.reserved[slot] = false
	if err != nil {
		p.size--
		p.mu.Unlock()
		p.log.Warn().Err(err).Msg("Engine init failed; pool size unchanged")
		return nil, WrapOCRError(op, ErrWorkerInit, err.Error())
	}
	if p.closed {
		p.size--
		p.mu.Unlock()
		if closeErr := engine.Close(); closeErr != nil {
			p.log.Warn().Err(closeErr).Msg("Failed to close engine created during shutdown")
		}
		return nil, NewOCRError(op, ErrPoolClosed, "")
	}

	w := &Worker{
		ID:         uuid.NewString(),
		engine:     engine,
		slot:       slot,
		busy:       true,
		lastUsedAt: time.Now(),
	}
	p.slots[slot] = w
	p.mu.Unlock()

	p.log.Debug().
		Str("worker_id", w.ID).
		Str("engine", engine.Name()).
		Int("slot", slot).
		Msg("Created pool worker")
	return w, nil
}

// Release marks the worker idle and wakes one waiter. It never fails; a
// release of an already-idle worker is a no-op.
func (p *Pool) Release(w *Worker) {
	if w == nil {
		return
	}

	p.mu.Lock()
	if p.slots[w.slot] != w || !w.busy {
		p.mu.Unlock()
		return
	}
	w.busy = false
	w.lastUsedAt = time.Now()
	p.mu.Unlock()

	select {
	case p.released <- struct{}{}:
	default:
		// Signal buffer full; waiters will be woken by pending signals.
	}
}

// LiveWorkers returns the number of live workers.
func (p *Pool) LiveWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, w := range p.slots {
		if w != nil {
			n++
		}
	}
	return n
}

// IdleWorkers returns the number of live workers not currently held.
func (p *Pool) IdleWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, w := range p.slots {
		if w != nil && !w.busy {
			n++
		}
	}
	return n
}

func (p *Pool) runSweeper(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.sweepIdle(time.Now(), sweepBatchSize)
		case <-p.done:
			return
		}
	}
}

// sweepIdle destroys up to max workers whose idle time exceeds the idle
// timeout, but never reduces the pool below one live worker.
func (p *Pool) sweepIdle(now time.Time, max int) int {
	var evicted []*Worker

	p.mu.Lock()
	live := 0
	for _, w := range p.slots {
		if w != nil {
			live++
		}
	}
	for i, w := range p.slots {
		if len(evicted) >= max || live-len(evicted) <= 1 {
			break
		}
		if w != nil && !w.busy && now.Sub(w.lastUsedAt) > p.idleTimeout {
			p.slots[i] = nil
			p.size--
			evicted = append(evicted, w)
		}
	}
	p.mu.Unlock()

	for _, w := range evicted {
		if err := w.engine.Close(); err != nil {
			p.log.Warn().Err(err).Str("worker_id", w.ID).Msg("Failed to close evicted worker")
		} else {
			p.log.Debug().Str("worker_id", w.ID).Msg("Evicted idle worker")
		}
	}
	return len(evicted)
}

// Shutdown terminates all workers concurrently, waits for every termination,
// and clears the pool. Close failures are logged, not propagated. The pool
// cannot be used afterwards.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)

	var workers []*Worker
	for i, w := range p.slots {
		if w != nil {
			workers = append(workers, w)
			p.slots[i] = nil
		}
	}
	p.size = 0
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			if err := w.engine.Close(); err != nil {
				p.log.Warn().Err(err).Str("worker_id", w.ID).Msg("Failed to close worker during shutdown")
			}
		}(w)
	}
	wg.Wait()

	p.log.Info().Int("workers", len(workers)).Msg("Worker pool shut down")
}
