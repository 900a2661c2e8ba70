// Package concurrency implements the per-worker mutual-exclusion registry.
// It guarantees at most one active invocation per worker and queues excess
// requests in FIFO order. The registry is process-local and in-memory; a
// restart clears all state, which is acceptable because the trigger producers
// re-derive work from external durable state.
package concurrency

import (
	"context"
	"sync"
	"time"
)

// Entry is a point-in-time snapshot of one worker's occupancy.
type Entry struct {
	Busy  bool
	Since time.Time
	Task  string
}

// entry holds live busy state for a worker.
type entry struct {
	since time.Time
	task  string
}

// waiter is one queued acquisition request. The channel is closed exactly
// once, when ownership of the busy slot has been transferred to this waiter.
type waiter struct {
	ch   chan struct{}
	task string
}

// Registry tracks busy/idle state and FIFO wait queues per worker. It is the
// sole mutual-exclusion primitive in the scheduler: it excludes invocations,
// not arbitrary critical sections.
type Registry struct {
	mu      sync.Mutex
	busy    map[string]*entry
	waiters map[string][]*waiter

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		busy:    make(map[string]*entry),
		waiters: make(map[string][]*waiter),
		nowFunc: time.Now,
	}
}

// IsBusy reports whether the worker currently holds an active invocation.
func (r *Registry) IsBusy(worker string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.busy[worker]
	return ok
}

// IsQueued reports whether anyone is already waiting for the worker. This is
// distinct from IsBusy: the coordinator uses it to refuse piling duplicate
// work onto a worker that already has a queued invocation.
func (r *Registry) IsQueued(worker string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters[worker]) > 0
}

// MarkBusy records the worker as busy with the given task label. If the
// worker is already busy the label and start time are refreshed; callers are
// expected to hold the slot (via WaitForFree) before calling this.
func (r *Registry) MarkBusy(worker, task string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy[worker] = &entry{since: r.nowFunc(), task: task}
}

// MarkFree releases the worker's busy slot. If waiters are queued, ownership
// is handed directly to the head waiter: the busy entry is replaced, not
// cleared, so no concurrent observer can see "not busy" between the release
// and the waiter's wake-up.
func (r *Registry) MarkFree(worker string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markFreeLocked(worker)
}

// markFreeLocked implements MarkFree. Caller must hold r.mu.
func (r *Registry) markFreeLocked(worker string) {
	q := r.waiters[worker]
	if len(q) == 0 {
		delete(r.busy, worker)
		return
	}
	head := q[0]
	if len(q) == 1 {
		delete(r.waiters, worker)
	} else {
		r.waiters[worker] = q[1:]
	}
	r.busy[worker] = &entry{since: r.nowFunc(), task: head.task}
	close(head.ch)
}

// WaitForFree blocks until the worker's busy slot can be acquired, then
// acquires it. If the worker is idle the slot is taken immediately; the
// busy re-check happens under the lock, so a concurrent MarkFree cannot
// slip between the check and the enqueue. Waiters are served in FIFO order.
//
// On success the caller owns the slot and must eventually call MarkFree.
// If ctx is cancelled before acquisition the waiter is removed from the
// queue; if cancellation races with a hand-off, the already-acquired slot
// is released so the next waiter is not stranded.
func (r *Registry) WaitForFree(ctx context.Context, worker, task string) error {
	r.mu.Lock()
	if _, ok := r.busy[worker]; !ok {
		r.busy[worker] = &entry{since: r.nowFunc(), task: task}
		r.mu.Unlock()
		return nil
	}
	w := &waiter{ch: make(chan struct{}), task: task}
	r.waiters[worker] = append(r.waiters[worker], w)
	r.mu.Unlock()

	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		r.mu.Lock()
		removed := r.removeWaiterLocked(worker, w)
		if !removed {
			// Hand-off won the race: we own the slot, pass it on.
			r.markFreeLocked(worker)
		}
		r.mu.Unlock()
		return ctx.Err()
	}
}

// removeWaiterLocked removes w from the worker's queue. Returns false if w
// was no longer queued (i.e. it was already handed the slot).
func (r *Registry) removeWaiterLocked(worker string, w *waiter) bool {
	q := r.waiters[worker]
	for i, cand := range q {
		if cand == w {
			r.waiters[worker] = append(q[:i:i], q[i+1:]...)
			if len(r.waiters[worker]) == 0 {
				delete(r.waiters, worker)
			}
			return true
		}
	}
	return false
}

// Status returns a snapshot of every tracked worker's occupancy. Workers
// with queued waiters but no busy entry do not occur (hand-off keeps the
// entry alive while the queue is non-empty).
func (r *Registry) Status() map[string]Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Entry, len(r.busy))
	for worker, e := range r.busy {
		out[worker] = Entry{Busy: true, Since: e.since, Task: e.task}
	}
	return out
}

// QueueLen returns the number of waiters queued for the worker.
func (r *Registry) QueueLen(worker string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters[worker])
}
