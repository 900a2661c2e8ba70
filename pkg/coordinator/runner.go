package coordinator

import "time"

// submit schedules fn on the bounded runner. Each dispatch takes a
// semaphore slot before running, so at most MaxParallelDispatch dispatches
// execute at once while the rest park cheaply in goroutines. Fire-and-forget
// by design: the caller's invocation finishes without waiting on children.
func (c *Coordinator) submit(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.sem <- struct{}{}
		defer func() { <-c.sem }()
		fn()
	}()
}

// Drain blocks until all in-flight dispatches finish or the timeout
// elapses. Returns true on a clean drain.
func (c *Coordinator) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
