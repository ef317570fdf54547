package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const gateAcquireTimeout = 30 * time.Second

// maxStaleRebuilds caps how many times a single process-wide gate will be
// rebuilt in response to a suspiciously-timed-out acquire (§4.3.1).
const maxStaleRebuilds = 3

// urlLocks is a set of per-URL non-blocking try-locks (§4.3.1 gate 1).
type urlLocks struct {
	mu    sync.Mutex
	held  map[string]bool
}

func newURLLocks() *urlLocks {
	return &urlLocks{held: make(map[string]bool)}
}

// tryLock attempts to acquire the lock for url, returning false if already
// held.
func (l *urlLocks) tryLock(url string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[url] {
		return false
	}
	l.held[url] = true
	return true
}

// release is a no-op (logged by the caller) if the lock isn't held, per
// §4.3.1's "double-release is a no-op and logs a warning".
func (l *urlLocks) release(url string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held[url] {
		return false
	}
	delete(l.held, url)
	return true
}

// capacityGate wraps a counting semaphore with the stale-gate rebuild logic
// described in §4.3.1 gate 2/3: a 30s-timeout acquire that, when no jobs are
// active, assumes the gate is stale, rebuilds it, and retries once.
type capacityGate struct {
	mu    sync.Mutex
	sem   *semaphore.Weighted
	limit int64
	stale int
}

func newCapacityGate(limit int64) *capacityGate {
	if limit <= 0 {
		limit = 1
	}
	return &capacityGate{sem: semaphore.NewWeighted(limit), limit: limit}
}

// acquire blocks up to gateAcquireTimeout and returns the semaphore instance
// it actually acquired from, so the caller releases that same instance even
// if a stale rebuild swaps g.sem out from under it. activeJobs reports the
// current active-job count so a timeout can be classified as "gate is
// stale" (no jobs running) versus genuine contention.
func (g *capacityGate) acquire(ctx context.Context, activeJobs func() int) (*semaphore.Weighted, error) {
	sem := g.current()

	acqCtx, cancel := context.WithTimeout(ctx, gateAcquireTimeout)
	defer cancel()
	if err := sem.Acquire(acqCtx, 1); err == nil {
		g.resetStale()
		return sem, nil
	}

	if activeJobs() != 0 {
		return nil, fmt.Errorf("recorder: capacity gate timeout")
	}

	g.mu.Lock()
	if g.stale >= maxStaleRebuilds {
		g.mu.Unlock()
		return nil, fmt.Errorf("recorder: capacity gate timeout (stale-rebuild cap reached)")
	}
	g.stale++
	g.sem = semaphore.NewWeighted(g.limit)
	rebuilt := g.sem
	g.mu.Unlock()

	retryCtx, cancel2 := context.WithTimeout(ctx, gateAcquireTimeout)
	defer cancel2()
	if err := rebuilt.Acquire(retryCtx, 1); err != nil {
		return nil, fmt.Errorf("recorder: capacity gate timeout after rebuild: %w", err)
	}
	return rebuilt, nil
}

func (g *capacityGate) release(sem *semaphore.Weighted) {
	sem.Release(1)
}

func (g *capacityGate) current() *semaphore.Weighted {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sem
}

func (g *capacityGate) resetStale() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stale = 0
}
