// Package thread implements the per-OS-thread VM structure (spec.md §3
// "Thread"): the frame stack, program counter, pending-exception slot,
// and the thread-local identity-hash generator spec.md §4.11 describes.
package thread

import (
	"sync/atomic"

	"github.com/jacobin-core/jvmcore/pkg/frame"
	"github.com/jacobin-core/jvmcore/pkg/object"
)

var idCounter atomic.Int64

// nextID allocates a process-wide unique thread id, used as the
// Monitor/init-state-machine owner token (spec.md §4.5, §4.11).
func nextID() int64 { return idCounter.Add(1) }

// Thread is a single OS thread's VM-visible state (spec.md §3
// "Thread"). The runtime maps Java threads 1:1 onto OS threads (spec.md
// §5 "Scheduling model") — there is no green-thread scheduler here.
type Thread struct {
	ID int64

	Frames []*frame.Frame // top of stack is Frames[len(Frames)-1]

	Pending *object.Instance // non-nil while an exception is propagating (spec.md §4.12)

	Mirror *object.Instance // the backing java.lang.Thread instance

	// MonitorDepth counts, per currently-held object, how many times
	// this thread has entered its monitor — spec.md §3 "Thread": "entry
	// counts tracking nested monitor acquisitions". The monitor itself
	// also tracks a re-entrancy count (pkg/monitor); this one lets a
	// stack walk or deadlock diagnostic enumerate what a thread holds
	// without reaching into every monitor it might own.
	MonitorDepth map[*object.Header]int

	interrupted atomic.Bool
	hashSeed    uint32 // thread-local xorshift state for IdentityHash (spec.md §4.11)
}

// New creates a thread with a fresh id and a non-zero xorshift seed
// (a zero seed is a fixed point of xorshift32 and would never advance).
func New(mirror *object.Instance) *Thread {
	id := nextID()
	return &Thread{
		ID:           id,
		Mirror:       mirror,
		MonitorDepth: make(map[*object.Header]int),
		hashSeed:     uint32(id)*2654435761 + 1,
	}
}

// NextHashSeed advances this thread's xorshift generator and returns
// the next candidate identity hash (spec.md §4.11 state 1: "thread-local
// xorshift of the thread's hash seed, masked into the value bits").
func (t *Thread) NextHashSeed() int32 {
	x := t.hashSeed
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	t.hashSeed = x
	return int32(x & 0x7FFFFFFF)
}

// Push pushes a new top frame (spec.md §4.8 "pc discipline": the
// caller's pc is expected to already be stashed by the caller before
// this is called).
func (t *Thread) Push(f *frame.Frame) { t.Frames = append(t.Frames, f) }

// Pop removes and returns the top frame.
func (t *Thread) Pop() *frame.Frame {
	n := len(t.Frames)
	f := t.Frames[n-1]
	t.Frames = t.Frames[:n-1]
	return f
}

// Top returns the current top frame, or nil if the stack is empty.
func (t *Thread) Top() *frame.Frame {
	if len(t.Frames) == 0 {
		return nil
	}
	return t.Frames[len(t.Frames)-1]
}

// Depth reports the number of frames currently on the stack, for
// StackOverflowError detection.
func (t *Thread) Depth() int { return len(t.Frames) }

// Interrupt sets the flag Thread.interrupt consults at wait/sleep/park
// points (spec.md §5 "Cancellation and timeouts").
func (t *Thread) Interrupt() { t.interrupted.Store(true) }

// InterruptedAndClear reports and clears the interrupt flag, matching
// Thread.interrupted()'s clear-on-read semantics.
func (t *Thread) InterruptedAndClear() bool { return t.interrupted.Swap(false) }

// IsInterrupted reports the flag without clearing it, matching
// Thread.isInterrupted().
func (t *Thread) IsInterrupted() bool { return t.interrupted.Load() }

// EnterMonitor records one more re-entrant hold of obj's monitor by
// this thread (the bookkeeping half; pkg/monitor.Monitor.Enter does the
// actual blocking).
func (t *Thread) EnterMonitor(h *object.Header) { t.MonitorDepth[h]++ }

// ExitMonitor records one fewer hold, removing the entry once it drops
// to zero so MonitorDepth only holds currently-held objects.
func (t *Thread) ExitMonitor(h *object.Header) {
	t.MonitorDepth[h]--
	if t.MonitorDepth[h] <= 0 {
		delete(t.MonitorDepth, h)
	}
}
