// Package monitor implements object-level synchronization: the
// lazily-installed per-object lock and condition variable backing
// monitorenter/monitorexit and Object.wait/notify. See spec.md §4.11.
package monitor

import (
	"fmt"
	"sync"
	"time"
)

// Monitor is an inflated, owned lock with re-entrant enter/exit and
// wait/notify. A Monitor is only allocated once an object's header
// transitions out of the Hashed state (see pkg/object.Header).
type Monitor struct {
	mu    sync.Mutex
	cond  *sync.Cond
	owner int64 // thread ID; 0 means unowned
	count int
	hash  int32 // the hash value this monitor carries over from Hashed state
}

// New creates an unowned monitor carrying forward the given identity
// hash (installed while the header was in the Hashed state).
func New(hash int32) *Monitor {
	m := &Monitor{hash: hash}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Hash returns the identity hash this monitor carries.
func (m *Monitor) Hash() int32 { return m.hash }

// Enter acquires the monitor for thread id t, blocking if another
// thread owns it. Re-entrant: a thread that already owns it just
// increments its hold count.
func (m *Monitor) Enter(t int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.owner != 0 && m.owner != t {
		m.cond.Wait()
	}
	m.owner = t
	m.count++
}

// Exit releases one level of ownership. Returns IllegalMonitorStateException
// (as a plain error; the caller maps it to the Java exception type) if t
// does not own the monitor.
func (m *Monitor) Exit(t int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != t {
		return fmt.Errorf("illegal monitor state: thread %d does not own this monitor (owner=%d)", t, m.owner)
	}
	m.count--
	if m.count == 0 {
		m.owner = 0
		m.cond.Signal()
	}
	return nil
}

// Wait releases ownership (remembering the hold count), waits up to
// timeout (zero means unbounded) for a notification, then reacquires
// ownership at the same hold count.
func (m *Monitor) Wait(t int64, timeout time.Duration) error {
	m.mu.Lock()
	if m.owner != t {
		m.mu.Unlock()
		return fmt.Errorf("illegal monitor state: thread %d does not own this monitor (owner=%d)", t, m.owner)
	}
	savedCount := m.count
	m.count = 0
	m.owner = 0
	m.cond.Signal()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
		// sync.Cond has no timed wait; a periodic broadcast lets this
		// goroutine re-check the deadline instead of blocking forever.
		timer := time.AfterFunc(timeout, func() {
			m.mu.Lock()
			m.cond.Broadcast()
			m.mu.Unlock()
		})
		defer timer.Stop()
	}

	for notified := false; !notified; {
		if timeout > 0 && !time.Now().Before(deadline) {
			break
		}
		m.cond.Wait()
		notified = true
	}

	for m.owner != 0 && m.owner != t {
		m.cond.Wait()
	}
	m.owner = t
	m.count = savedCount
	m.mu.Unlock()
	return nil
}

// Notify wakes one waiter. t must currently own the monitor.
func (m *Monitor) Notify(t int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != t {
		return fmt.Errorf("illegal monitor state: thread %d does not own this monitor (owner=%d)", t, m.owner)
	}
	m.cond.Signal()
	return nil
}

// NotifyAll wakes every waiter. t must currently own the monitor.
func (m *Monitor) NotifyAll(t int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != t {
		return fmt.Errorf("illegal monitor state: thread %d does not own this monitor (owner=%d)", t, m.owner)
	}
	m.cond.Broadcast()
	return nil
}

// Owner reports the current owning thread id, or 0 if unowned. Intended
// for diagnostics only.
func (m *Monitor) Owner() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner
}
