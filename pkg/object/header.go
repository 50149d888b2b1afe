// Package object implements the runtime object model: classes, fields,
// methods, V-tables/I-tables, and heap references. See spec.md §3–4.4.
package object

import (
	"sync/atomic"

	"github.com/jacobin-core/jvmcore/pkg/monitor"
)

// Header is the two-word prefix every heap object carries: an
// identity-hash-and-monitor slot and a Class pointer (spec.md §4.4
// "Layout"). Go's garbage collector does not let us pack a real pointer
// into the bits of an integer the way the original tagged-word design
// does, so this splits the tagged word into two atomically-updated
// fields instead: `hash` holds the value once installed, and `mon`
// holds the inflated Monitor once one exists. Exactly one of "hash
// installed" / "mon installed" is meaningful at a time, matching the
// three states in spec.md §4.11 (Unused / Hashed / Inflated).
type Header struct {
	class *Class
	hash  atomic.Int32 // 0 = not yet installed; see IdentityHash
	mon   atomic.Pointer[monitor.Monitor]
}

// Class returns the object's class.
func (h *Header) Class() *Class { return h.class }

// initHeader sets up a freshly allocated object's header.
func initHeader(h *Header, class *Class) {
	h.class = class
}

// IdentityHash returns this object's identity hash, lazily generating
// one on first access via the supplied seed function (a thread-local
// xorshift generator per spec.md §4.11 state 1).
func (h *Header) IdentityHash(nextSeed func() int32) int32 {
	if mon := h.mon.Load(); mon != nil {
		return mon.Hash()
	}
	for {
		if v := h.hash.Load(); v != 0 {
			return v
		}
		candidate := nextSeed()
		if candidate == 0 {
			candidate = 1
		}
		if h.hash.CompareAndSwap(0, candidate) {
			return candidate
		}
	}
}

// Monitor returns the object's inflated monitor, allocating one (via
// the compare-and-swap transition described in spec.md §4.11) if the
// header is still in the Hashed or Unused state.
func (h *Header) Monitor(nextSeed func() int32) *monitor.Monitor {
	if mon := h.mon.Load(); mon != nil {
		return mon
	}
	hash := h.IdentityHash(nextSeed)
	fresh := monitor.New(hash)
	if h.mon.CompareAndSwap(nil, fresh) {
		return fresh
	}
	return h.mon.Load()
}
